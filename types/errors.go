package types

import "errors"

var (
	// ErrFormatUnsupported indicates the uploaded file has an extension the
	// extractor cannot handle. Fatal to the resource.
	ErrFormatUnsupported = errors.New("unsupported document format")

	// ErrLikelyScannedDocument indicates a PDF produced almost no text across
	// multiple pages, which usually means it is a scan. OCR is not supported.
	ErrLikelyScannedDocument = errors.New("document appears to be scanned, no extractable text")

	// ErrPasswordProtected indicates the PDF requires a password to open.
	ErrPasswordProtected = errors.New("document is password protected")

	// ErrProviderRateLimited is the retryable rate-limit signal from an
	// embedding or completion provider. It is consumed by the retry loop and
	// should not escape the embedder.
	ErrProviderRateLimited = errors.New("provider rate limited")

	// ErrEmbeddingProviderExhausted indicates the embedding provider kept
	// rate-limiting through every backoff retry.
	ErrEmbeddingProviderExhausted = errors.New("embedding provider exhausted retries")

	// ErrEmbeddingProviderError is any non-rate-limit embedding failure.
	// Not retried.
	ErrEmbeddingProviderError = errors.New("embedding provider error")

	// ErrCompletionProviderError is a failure from the completion provider.
	// Fatal to the single query that triggered it.
	ErrCompletionProviderError = errors.New("completion provider error")

	// ErrLoggingFailure indicates the query log could not be persisted. An
	// answer that cannot be logged is treated as a failed query.
	ErrLoggingFailure = errors.New("query log persistence failed")
)
