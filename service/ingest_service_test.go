package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith-be/types"
	"github.com/loresmith/loresmith-be/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const primerText = "CAMPAIGN PRIMER\nThe keep guards the pass. Its cellars hide a shrine."

type ingestHarness struct {
	ingest    *IngestService
	provider  *fakeEmbeddingProvider
	chunks    *fakeChunkStore
	resources *fakeResourceStore
}

func newIngestHarness() *ingestHarness {
	provider := &fakeEmbeddingProvider{promptTokens: 3}
	chunks := &fakeChunkStore{}
	resources := newFakeResourceStore()
	embedder := NewEmbedService(provider, chunks, 10, 0.02, testLogger()).WithTimer(newInstantTimer())
	chunker := NewChunkService(types.ChunkConfig{MinTokens: 2, MaxTokens: 40, TargetTokens: 10}, wordCounter{}, NewSegmentService())
	ingest := NewIngestService(NewExtractService(testLogger()), chunker, embedder, resources, chunks, testLogger())
	return &ingestHarness{ingest: ingest, provider: provider, chunks: chunks, resources: resources}
}

func (h *ingestHarness) createResource(t *testing.T, collectionID uuid.UUID, filename string, metadata types.ResourceMetadata) *types.Resource {
	t.Helper()
	resource := &types.Resource{
		ID:           uuid.New(),
		CollectionID: collectionID,
		Filename:     filename,
		Status:       types.ResourceStatusPending,
		Metadata:     metadata,
	}
	require.NoError(t, h.resources.CreateResource(context.Background(), resource))
	return resource
}

func alwaysRateLimited() []error {
	errs := make([]error, 6)
	for i := range errs {
		errs[i] = rateLimitErr()
	}
	return errs
}

func TestProcessResource(t *testing.T) {
	ctx := context.Background()
	collectionID := uuid.New()

	t.Run("Successful ingest walks the resource to completed", func(t *testing.T) {
		h := newIngestHarness()
		path := writeFixture(t, "primer.txt", []byte(primerText))
		resource := h.createResource(t, collectionID, "primer.txt", nil)
		job := types.IngestJob{ResourceID: resource.ID, CollectionID: collectionID, FilePath: path}

		err := h.ingest.ProcessResource(ctx, job)

		require.NoError(t, err)
		assert.Equal(t, []string{types.ResourceStatusProcessing, types.ResourceStatusCompleted}, h.resources.statusLog())

		updated, err := h.resources.GetResource(ctx, resource.ID)
		require.NoError(t, err)
		assert.Equal(t, types.ResourceStatusCompleted, updated.Status)
		assert.Empty(t, updated.ErrorMessage)
		assert.Equal(t, 1, updated.PageCount)
		assert.Equal(t, "primer", updated.Metadata["title"])
		assert.Equal(t, "txt", updated.Metadata["format"])
		assert.Equal(t, 1, updated.Metadata["chunk_count"])
		assert.Equal(t, 3, updated.Metadata["provider_tokens"])
		assert.Equal(t, 1, updated.Metadata["embed_batches"])

		stored := h.chunks.storedChunks(resource.ID)
		require.Len(t, stored, 1)
		chunk := stored[0]
		assert.Equal(t, collectionID, chunk.CollectionID)
		assert.Equal(t, 0, chunk.ChunkIndex)
		assert.Equal(t, 1, chunk.PageNumber)
		require.NotNil(t, chunk.SectionHeading)
		assert.Equal(t, "CAMPAIGN PRIMER", *chunk.SectionHeading)
		assert.NotNil(t, chunk.Embedding, "Chunk vectors are persisted during ingest")
		assert.Equal(t, utils.ApproxBillableTokens(chunk.Content), updated.Metadata["approx_billable_tokens"])
	})

	t.Run("Unsupported format marks the resource failed", func(t *testing.T) {
		h := newIngestHarness()
		path := writeFixture(t, "book.epub", []byte("not extractable"))
		resource := h.createResource(t, collectionID, "book.epub", nil)

		err := h.ingest.ProcessResource(ctx, types.IngestJob{ResourceID: resource.ID, CollectionID: collectionID, FilePath: path})

		require.Error(t, err)
		assert.Equal(t, []string{types.ResourceStatusProcessing, types.ResourceStatusFailed}, h.resources.statusLog())

		updated, err := h.resources.GetResource(ctx, resource.ID)
		require.NoError(t, err)
		assert.Contains(t, updated.ErrorMessage, "unsupported document format")
		assert.Empty(t, h.chunks.storedChunks(resource.ID))
	})

	t.Run("Embedding exhaustion still persists chunks", func(t *testing.T) {
		h := newIngestHarness()
		h.provider.errs = alwaysRateLimited()
		path := writeFixture(t, "primer.txt", []byte(primerText))
		resource := h.createResource(t, collectionID, "primer.txt", nil)

		err := h.ingest.ProcessResource(ctx, types.IngestJob{ResourceID: resource.ID, CollectionID: collectionID, FilePath: path})

		require.NoError(t, err, "An embedding failure is not a job failure")
		assert.Equal(t, []string{types.ResourceStatusProcessing, types.ResourceStatusCompletedNoEmbeddings}, h.resources.statusLog())

		stored := h.chunks.storedChunks(resource.ID)
		require.Len(t, stored, 1)
		assert.Nil(t, stored[0].Embedding, "Chunks persist without vectors, recoverable by backfill")

		updated, err := h.resources.GetResource(ctx, resource.ID)
		require.NoError(t, err)
		assert.Contains(t, updated.ErrorMessage, "exhausted")
		assert.Equal(t, 0, updated.Metadata["embed_batches"])
	})

	t.Run("Redelivered jobs replace chunks instead of duplicating", func(t *testing.T) {
		h := newIngestHarness()
		path := writeFixture(t, "primer.txt", []byte(primerText))
		resource := h.createResource(t, collectionID, "primer.txt", nil)
		job := types.IngestJob{ResourceID: resource.ID, CollectionID: collectionID, FilePath: path}

		require.NoError(t, h.ingest.ProcessResource(ctx, job))
		require.NoError(t, h.ingest.ProcessResource(ctx, job))

		assert.Len(t, h.chunks.storedChunks(resource.ID), 1, "Reprocessing must not duplicate chunks")

		updated, err := h.resources.GetResource(ctx, resource.ID)
		require.NoError(t, err)
		assert.Equal(t, types.ResourceStatusCompleted, updated.Status)
		assert.Equal(t, 1, updated.Metadata["chunk_count"], "Metadata counters are absolute, not additive")
	})

	t.Run("Tags from upload metadata flow to every chunk", func(t *testing.T) {
		h := newIngestHarness()
		path := writeFixture(t, "primer.txt", []byte(primerText))
		// JSONB round-trips string arrays as []interface{}.
		resource := h.createResource(t, collectionID, "primer.txt", types.ResourceMetadata{
			"tags": []interface{}{"maps", "lore"},
		})

		err := h.ingest.ProcessResource(ctx, types.IngestJob{ResourceID: resource.ID, CollectionID: collectionID, FilePath: path})

		require.NoError(t, err)
		stored := h.chunks.storedChunks(resource.ID)
		require.Len(t, stored, 1)
		assert.Equal(t, []string{"maps", "lore"}, stored[0].Tags)

		updated, err := h.resources.GetResource(ctx, resource.ID)
		require.NoError(t, err)
		assert.Equal(t, []interface{}{"maps", "lore"}, updated.Metadata["tags"],
			"Upload-time metadata keys survive the pipeline's metadata write")
	})
}

func TestIngestBackfill(t *testing.T) {
	ctx := context.Background()
	collectionID := uuid.New()

	t.Run("Backfill completes a resource stuck without embeddings", func(t *testing.T) {
		h := newIngestHarness()
		h.provider.errs = alwaysRateLimited()
		path := writeFixture(t, "primer.txt", []byte(primerText))
		resource := h.createResource(t, collectionID, "primer.txt", nil)
		require.NoError(t, h.ingest.ProcessResource(ctx, types.IngestJob{ResourceID: resource.ID, CollectionID: collectionID, FilePath: path}))

		// The provider has recovered by the time backfill runs.
		h.provider.errs = nil
		usage, embedded, err := h.ingest.Backfill(ctx, resource.ID)

		require.NoError(t, err)
		assert.Equal(t, 1, embedded)
		assert.Equal(t, 1, usage.BatchCount)

		updated, err := h.resources.GetResource(ctx, resource.ID)
		require.NoError(t, err)
		assert.Equal(t, types.ResourceStatusCompleted, updated.Status, "Backfill flips the status once nothing is missing")
		assert.Equal(t, 3, updated.Metadata["provider_tokens"], "Backfill usage is added to the stored counters")

		missing, err := h.chunks.CountChunksMissingEmbedding(ctx, resource.ID)
		require.NoError(t, err)
		assert.Zero(t, missing)
	})

	t.Run("Backfill on a fully embedded resource is a no-op", func(t *testing.T) {
		h := newIngestHarness()
		path := writeFixture(t, "primer.txt", []byte(primerText))
		resource := h.createResource(t, collectionID, "primer.txt", nil)
		require.NoError(t, h.ingest.ProcessResource(ctx, types.IngestJob{ResourceID: resource.ID, CollectionID: collectionID, FilePath: path}))
		callsAfterIngest := h.provider.callCount()

		usage, embedded, err := h.ingest.Backfill(ctx, resource.ID)

		require.NoError(t, err)
		assert.Zero(t, embedded)
		assert.Zero(t, usage.BatchCount)
		assert.Equal(t, callsAfterIngest, h.provider.callCount(), "Nothing missing means no provider calls")

		updated, err := h.resources.GetResource(ctx, resource.ID)
		require.NoError(t, err)
		assert.Equal(t, types.ResourceStatusCompleted, updated.Status)
	})

	t.Run("Backfill on an unknown resource fails", func(t *testing.T) {
		h := newIngestHarness()

		_, _, err := h.ingest.Backfill(ctx, uuid.New())

		require.Error(t, err)
	})
}
