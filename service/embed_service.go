package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/loresmith/loresmith-be/database"
	"github.com/loresmith/loresmith-be/types"
	"github.com/loresmith/loresmith-be/utils"
)

const (
	DefaultEmbedBatchSize = 100
	embedMaxRetries       = 5
	embedInitialBackoff   = time.Second
	embedMaxBackoff       = 16 * time.Second
)

// EmbedService drives the embedding provider in bounded batches. Rate-limit
// responses are retried with exponential backoff; every other provider error
// aborts immediately. Persistence is transactional per batch, so a failure
// never leaves a batch half embedded, and batches committed before a failure
// stay committed.
type EmbedService struct {
	provider       EmbeddingProvider
	store          database.ChunkStore
	batchSize      int
	costPerMillion float64
	timer          backoff.Timer
	logger         *slog.Logger
}

func NewEmbedService(provider EmbeddingProvider, store database.ChunkStore, batchSize int, costPerMillion float64, logger *slog.Logger) *EmbedService {
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}
	return &EmbedService{
		provider:       provider,
		store:          store,
		batchSize:      batchSize,
		costPerMillion: costPerMillion,
		logger:         logger,
	}
}

// WithTimer swaps the backoff timer; tests use it to make retries instant.
func (s *EmbedService) WithTimer(timer backoff.Timer) *EmbedService {
	s.timer = timer
	return s
}

// EmbedTexts embeds the given texts and returns vectors in input order,
// regardless of the order the provider answered in. Empty input returns an
// empty result without calling the provider.
func (s *EmbedService) EmbedTexts(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return [][]float32{}, 0, nil
	}

	vectors := make([][]float32, 0, len(texts))
	promptTokens := 0
	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))
		batch := texts[start:end]

		result, err := s.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, promptTokens, err
		}
		ordered, err := orderVectors(result.Items, len(batch))
		if err != nil {
			return nil, promptTokens, err
		}
		vectors = append(vectors, ordered...)
		promptTokens += result.PromptTokens
	}
	return vectors, promptTokens, nil
}

// EmbedChunks embeds chunk contents batch by batch, persisting each batch's
// vectors in one transaction before moving on. The returned usage covers the
// batches that were committed, even when a later batch fails.
func (s *EmbedService) EmbedChunks(ctx context.Context, resourceID uuid.UUID, chunks []*types.ResourceChunk) (*types.EmbeddingUsage, error) {
	usage := &types.EmbeddingUsage{}
	if len(chunks) == 0 {
		return usage, nil
	}

	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		approxTokens := 0
		for i, chunk := range batch {
			texts[i] = chunk.Content
			approxTokens += utils.ApproxBillableTokens(chunk.Content)
		}

		result, err := s.embedBatchWithRetry(ctx, texts)
		if err != nil {
			return usage, err
		}
		vectors, err := orderVectors(result.Items, len(batch))
		if err != nil {
			return usage, err
		}

		updates := make([]database.ChunkEmbedding, len(batch))
		for i, chunk := range batch {
			updates[i] = database.ChunkEmbedding{ChunkID: chunk.ID, Vector: vectors[i]}
		}
		if err := s.store.UpdateEmbeddingsTx(ctx, updates); err != nil {
			return usage, fmt.Errorf("failed to persist embeddings for resource %s: %w", resourceID, err)
		}

		usage.Add(types.EmbeddingUsage{
			ProviderTokens:       result.PromptTokens,
			ApproxBillableTokens: approxTokens,
			CostUSD:              float64(approxTokens) / 1e6 * s.costPerMillion,
			BatchCount:           1,
		})
	}
	return usage, nil
}

// Backfill embeds only the chunks of a resource that still have no vector.
// Safe to re-run indefinitely: the store's set-if-null update means a chunk
// embedded by an earlier run is never embedded again.
func (s *EmbedService) Backfill(ctx context.Context, resourceID uuid.UUID) (*types.EmbeddingUsage, int, error) {
	missing, err := s.store.ListChunksMissingEmbedding(ctx, resourceID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list chunks missing embedding: %w", err)
	}
	if len(missing) == 0 {
		return &types.EmbeddingUsage{}, 0, nil
	}
	usage, err := s.EmbedChunks(ctx, resourceID, missing)
	if err != nil {
		return usage, 0, err
	}
	return usage, len(missing), nil
}

func (s *EmbedService) embedBatchWithRetry(ctx context.Context, batch []string) (*types.EmbeddingResult, error) {
	var result *types.EmbeddingResult
	operation := func() error {
		res, err := s.provider.EmbedBatch(ctx, batch)
		if err != nil {
			if errors.Is(err, types.ErrProviderRateLimited) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("embedding provider rate limited, backing off",
			"wait", wait.String(),
			"error", err,
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), embedMaxRetries), ctx)
	if err := backoff.RetryNotifyWithTimer(operation, policy, notify, s.timer); err != nil {
		if errors.Is(err, types.ErrProviderRateLimited) {
			return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingProviderExhausted, err)
		}
		return nil, err
	}
	return result, nil
}

// newBackOff builds the 1s, 2s, 4s, 8s, 16s schedule. Randomization is off
// so the wait sequence is exact.
func (s *EmbedService) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = embedInitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = embedMaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func orderVectors(items []types.EmbeddingItem, expected int) ([][]float32, error) {
	if len(items) != expected {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", types.ErrEmbeddingProviderError, expected, len(items))
	}
	vectors := make([][]float32, expected)
	for _, item := range items {
		if item.Index < 0 || item.Index >= expected {
			return nil, fmt.Errorf("%w: embedding index %d out of range", types.ErrEmbeddingProviderError, item.Index)
		}
		if vectors[item.Index] != nil {
			return nil, fmt.Errorf("%w: duplicate embedding index %d", types.ErrEmbeddingProviderError, item.Index)
		}
		vectors[item.Index] = item.Vector
	}
	return vectors, nil
}
