package service

import (
	"context"

	"github.com/loresmith/loresmith-be/types"
)

// EmbeddingProvider turns batches of text into vectors. Implementations
// return exactly one item per input text, each carrying the index of the
// input it embeds, so callers can re-seat results that arrive out of order.
// Rate-limit failures are wrapped in types.ErrProviderRateLimited; everything
// else non-retryable is wrapped in types.ErrEmbeddingProviderError.
type EmbeddingProvider interface {
	EmbedBatch(ctx context.Context, texts []string) (*types.EmbeddingResult, error)
	Dimension() int
}

// CompletionProvider generates answers from an assembled prompt plus chat
// history. CompleteStream invokes the handler once per content delta and
// returns the accumulated result when the provider finishes.
type CompletionProvider interface {
	Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResult, error)
	CompleteStream(ctx context.Context, req *types.CompletionRequest, handler types.StreamHandler) (*types.CompletionResult, error)
	ModelName() string
}
