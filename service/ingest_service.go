package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith-be/database"
	"github.com/loresmith/loresmith-be/types"
)

// IngestService runs the resource pipeline: extract, segment, chunk, persist,
// embed. Each job is processed sequentially and non-interruptibly; the whole
// pipeline is safe to re-run from the top when a job is redelivered, because
// chunk replacement and metadata writes are absolute rather than additive.
type IngestService struct {
	extractor *ExtractService
	chunker   *ChunkService
	embedder  *EmbedService
	resources database.ResourceStore
	chunks    database.ChunkStore
	logger    *slog.Logger
}

func NewIngestService(
	extractor *ExtractService,
	chunker *ChunkService,
	embedder *EmbedService,
	resources database.ResourceStore,
	chunks database.ChunkStore,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		resources: resources,
		chunks:    chunks,
		logger:    logger,
	}
}

// ProcessResource drives one ingest job to a terminal status. Extraction
// failures mark the resource failed with the message recorded; an embedding
// failure leaves the chunks persisted and the resource in
// completed_no_embeddings, recoverable via Backfill.
func (s *IngestService) ProcessResource(ctx context.Context, job types.IngestJob) error {
	logger := s.logger.With("resource_id", job.ResourceID.String())

	resource, err := s.resources.GetResource(ctx, job.ResourceID)
	if err != nil {
		return fmt.Errorf("failed to load resource: %w", err)
	}

	// Re-entering processing on a redelivered job is a no-op transition.
	if err := s.resources.UpdateStatus(ctx, job.ResourceID, types.ResourceStatusProcessing, ""); err != nil {
		return fmt.Errorf("failed to mark resource processing: %w", err)
	}

	doc, err := s.extractor.Extract(ctx, job.FilePath)
	if err != nil {
		logger.Error("extraction failed", "file", job.FilePath, "error", err)
		if uerr := s.resources.UpdateStatus(ctx, job.ResourceID, types.ResourceStatusFailed, err.Error()); uerr != nil {
			return fmt.Errorf("failed to record extraction failure: %w", uerr)
		}
		return err
	}

	chunks := s.chunker.ChunkDocument(doc)
	resourceChunks := s.buildResourceChunks(job, resource, chunks)

	if err := s.chunks.ReplaceResourceChunks(ctx, job.ResourceID, resourceChunks); err != nil {
		logger.Error("chunk persistence failed", "error", err)
		if uerr := s.resources.UpdateStatus(ctx, job.ResourceID, types.ResourceStatusFailed, err.Error()); uerr != nil {
			return fmt.Errorf("failed to record chunk persistence failure: %w", uerr)
		}
		return err
	}
	if err := s.resources.UpdatePageCount(ctx, job.ResourceID, len(doc.Pages)); err != nil {
		return fmt.Errorf("failed to update page count: %w", err)
	}

	usage, embedErr := s.embedder.EmbedChunks(ctx, job.ResourceID, resourceChunks)

	// Metadata values are absolute so a redelivered job overwrites rather
	// than double-counts.
	metadata := buildResourceMetadata(doc, len(resourceChunks), usage)
	if err := s.resources.UpdateMetadata(ctx, job.ResourceID, metadata); err != nil {
		return fmt.Errorf("failed to update resource metadata: %w", err)
	}

	if embedErr != nil {
		logger.Warn("embedding failed, chunks remain recoverable via backfill",
			"chunks", len(resourceChunks),
			"embedded_batches", usage.BatchCount,
			"error", embedErr,
		)
		if uerr := s.resources.UpdateStatus(ctx, job.ResourceID, types.ResourceStatusCompletedNoEmbeddings, embedErr.Error()); uerr != nil {
			return fmt.Errorf("failed to record embedding failure: %w", uerr)
		}
		return nil
	}

	logger.Info("resource ingested",
		"pages", len(doc.Pages),
		"chunks", len(resourceChunks),
		"provider_tokens", usage.ProviderTokens,
		"cost_usd", usage.CostUSD,
	)
	return s.resources.UpdateStatus(ctx, job.ResourceID, types.ResourceStatusCompleted, "")
}

// Backfill completes missing embeddings for one resource and flips a
// completed_no_embeddings status to completed once nothing is missing.
// Safe to re-run indefinitely.
func (s *IngestService) Backfill(ctx context.Context, resourceID uuid.UUID) (*types.EmbeddingUsage, int, error) {
	resource, err := s.resources.GetResource(ctx, resourceID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load resource: %w", err)
	}

	usage, embedded, err := s.embedder.Backfill(ctx, resourceID)
	if usage != nil && usage.BatchCount > 0 {
		if merr := s.resources.UpdateMetadata(ctx, resourceID, addUsage(resource.Metadata, usage)); merr != nil {
			s.logger.Error("failed to record backfill usage", "resource_id", resourceID.String(), "error", merr)
		}
	}
	if err != nil {
		return usage, embedded, err
	}

	missing, err := s.chunks.CountChunksMissingEmbedding(ctx, resourceID)
	if err != nil {
		return usage, embedded, fmt.Errorf("failed to count missing embeddings: %w", err)
	}
	if missing == 0 && resource.Status == types.ResourceStatusCompletedNoEmbeddings {
		if err := s.resources.UpdateStatus(ctx, resourceID, types.ResourceStatusCompleted, ""); err != nil {
			return usage, embedded, fmt.Errorf("failed to mark resource completed: %w", err)
		}
	}
	return usage, embedded, nil
}

func (s *IngestService) buildResourceChunks(job types.IngestJob, resource *types.Resource, chunks []types.Chunk) []*types.ResourceChunk {
	tags := resourceTags(resource)
	out := make([]*types.ResourceChunk, len(chunks))
	for i, chunk := range chunks {
		var heading *string
		if chunk.HasHeading {
			h := chunk.SectionHeading
			heading = &h
		}
		out[i] = &types.ResourceChunk{
			ID:             uuid.New(),
			ResourceID:     job.ResourceID,
			CollectionID:   job.CollectionID,
			ChunkIndex:     i,
			Content:        chunk.Content,
			TokenCount:     chunk.TokenCount,
			PageNumber:     chunk.PageNumber,
			SectionHeading: heading,
			StartOffset:    chunk.StartOffset,
			EndOffset:      chunk.EndOffset,
			Tags:           tags,
		}
	}
	return out
}

func buildResourceMetadata(doc *types.ExtractedDocument, chunkCount int, usage *types.EmbeddingUsage) types.ResourceMetadata {
	metadata := types.ResourceMetadata{
		"title":       doc.Title,
		"format":      doc.Format,
		"chunk_count": chunkCount,
	}
	if doc.Author != "" {
		metadata["author"] = doc.Author
	}
	if usage != nil {
		metadata["provider_tokens"] = usage.ProviderTokens
		metadata["approx_billable_tokens"] = usage.ApproxBillableTokens
		metadata["cost_usd"] = usage.CostUSD
		metadata["embed_batches"] = usage.BatchCount
	}
	return metadata
}

// addUsage sums backfill usage into the existing counters. Backfill only
// ever embeds chunks that were never counted, so addition cannot
// double-count. Only counter keys are returned; the store merges them.
func addUsage(metadata types.ResourceMetadata, usage *types.EmbeddingUsage) types.ResourceMetadata {
	return types.ResourceMetadata{
		"provider_tokens":        metadataInt(metadata["provider_tokens"]) + usage.ProviderTokens,
		"approx_billable_tokens": metadataInt(metadata["approx_billable_tokens"]) + usage.ApproxBillableTokens,
		"cost_usd":               metadataFloat(metadata["cost_usd"]) + usage.CostUSD,
		"embed_batches":          metadataInt(metadata["embed_batches"]) + usage.BatchCount,
	}
}

// resourceTags reads the optional tag list from resource metadata. JSONB
// round-trips arrays as []interface{}, so both forms are handled.
func resourceTags(resource *types.Resource) []string {
	if resource == nil || resource.Metadata == nil {
		return nil
	}
	switch v := resource.Metadata["tags"].(type) {
	case []string:
		return v
	case []interface{}:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				tags = append(tags, s)
			}
		}
		return tags
	default:
		return nil
	}
}

func metadataInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func metadataFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
