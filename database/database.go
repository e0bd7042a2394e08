package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith-be/types"
)

// ResourceStore defines the interface for resource persistence
type ResourceStore interface {
	CreateResource(ctx context.Context, resource *types.Resource) error
	GetResource(ctx context.Context, id uuid.UUID) (*types.Resource, error)
	ListResources(ctx context.Context, collectionID uuid.UUID) ([]*types.Resource, error)
	// ListResourcesByStatus returns every resource currently in one of the
	// given statuses, across all collections. Used to requeue work that never
	// reached a terminal status.
	ListResourcesByStatus(ctx context.Context, statuses ...string) ([]*types.Resource, error)
	// UpdateStatus transitions the ingestion status and records the error
	// message (empty on success paths). Transitions are idempotent.
	UpdateStatus(ctx context.Context, id uuid.UUID, status, errorMessage string) error
	UpdatePageCount(ctx context.Context, id uuid.UUID, pageCount int) error
	// UpdateMetadata merges the given keys into the stored metadata. Each
	// value is written absolutely so redelivered jobs overwrite rather than
	// double-count, while keys set at upload time survive.
	UpdateMetadata(ctx context.Context, id uuid.UUID, metadata types.ResourceMetadata) error
}

// ChunkEmbedding pairs a chunk id with its computed vector for persistence.
type ChunkEmbedding struct {
	ChunkID uuid.UUID
	Vector  []float32
}

// ChunkStore defines the interface for chunk persistence and search
type ChunkStore interface {
	// ReplaceResourceChunks deletes any existing chunks for the resource and
	// inserts the new set in a single transaction, so a redelivered job
	// replaces rather than duplicates.
	ReplaceResourceChunks(ctx context.Context, resourceID uuid.UUID, chunks []*types.ResourceChunk) error
	// UpdateEmbeddingsTx writes all given vectors in one transaction; each
	// update only lands if the chunk's embedding is still null, which keeps
	// backfill idempotent.
	UpdateEmbeddingsTx(ctx context.Context, updates []ChunkEmbedding) error
	ListChunksMissingEmbedding(ctx context.Context, resourceID uuid.UUID) ([]*types.ResourceChunk, error)
	CountChunks(ctx context.Context, resourceID uuid.UUID) (int, error)
	CountChunksMissingEmbedding(ctx context.Context, resourceID uuid.UUID) (int, error)

	// Search operations
	VectorSearch(ctx context.Context, embedding []float32, req types.SearchRequest) ([]types.ScoredChunk, error)
	KeywordSearch(ctx context.Context, req types.SearchRequest) ([]types.ScoredChunk, error)
}
