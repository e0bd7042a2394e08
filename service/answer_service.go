package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith-be/repository"
	"github.com/loresmith/loresmith-be/types"
)

const (
	pagePlaceholder    = "Unknown Page"
	sectionPlaceholder = "Untitled"

	// Conversation history is capped at the last two exchanges to bound
	// prompt size.
	maxHistoryMessages = 4

	// The latency target is advisory: exceeding it logs a warning and
	// nothing else.
	queryLatencyTarget = 2 * time.Second

	streamBufferSize = 16

	groundedSystemPrompt = "You are a campaign knowledge assistant. Answer strictly from the " +
		"provided source excerpts. Cite the page and section for every claim. If the excerpts " +
		"do not answer the question, say so rather than speculating."

	noInformationAnswer = "I could not find anything about that in this collection's documents. " +
		"Try rephrasing the question or ingesting the material that covers it."
)

// AnswerService turns a question into a grounded answer: hybrid retrieval,
// prompt assembly, completion, and a mandatory query log write. An answer
// that cannot be logged is not returned as a success.
type AnswerService struct {
	retriever *RetrievalService
	provider  CompletionProvider
	queryLogs repository.QueryLogRepo
	logger    *slog.Logger
}

func NewAnswerService(retriever *RetrievalService, provider CompletionProvider, queryLogs repository.QueryLogRepo, logger *slog.Logger) *AnswerService {
	return &AnswerService{
		retriever: retriever,
		provider:  provider,
		queryLogs: queryLogs,
		logger:    logger,
	}
}

// Answer runs the full synchronous query path. A query that retrieves zero
// chunks never reaches the completion provider and is not logged; it still
// gets a query id so the caller has a stable handle.
func (s *AnswerService) Answer(ctx context.Context, req *types.QueryRequest) (*types.QueryAnswer, error) {
	started := time.Now()
	queryID := uuid.New()

	chunks, err := s.retriever.HybridSearch(ctx, s.searchRequest(req))
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return s.fallbackQueryAnswer(queryID, started), nil
	}

	result, err := s.provider.Complete(ctx, s.completionRequest(req, chunks))
	if err != nil {
		return nil, err
	}

	metadata := types.AnswerMetadata{
		Model:            s.provider.ModelName(),
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		ChunkCount:       len(chunks),
		LatencyMs:        time.Since(started).Milliseconds(),
	}

	if err := s.persistQueryLog(ctx, queryID, req, chunks, result.Text, metadata); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrLoggingFailure, err)
	}
	s.warnSlowQuery(queryID, metadata.LatencyMs)

	return &types.QueryAnswer{
		QueryID:  queryID,
		Answer:   result.Text,
		Sources:  chunks,
		Metadata: metadata,
	}, nil
}

// AnswerStream is the consumer's handle on one streamed answer: a sequence
// of chunk events ending in exactly one done or error event, after which the
// events channel is closed.
type AnswerStream struct {
	events     chan types.StreamEvent
	detach     chan struct{}
	detachOnce sync.Once
}

func (st *AnswerStream) Events() <-chan types.StreamEvent {
	return st.events
}

// Detach signals that the consumer has gone away. The producer stops
// forwarding events but keeps draining the provider, then finalizes and logs
// whatever partial answer was produced.
func (st *AnswerStream) Detach() {
	st.detachOnce.Do(func() {
		close(st.detach)
	})
}

func (st *AnswerStream) send(event types.StreamEvent) {
	select {
	case st.events <- event:
	case <-st.detach:
	}
}

func (st *AnswerStream) detached() bool {
	select {
	case <-st.detach:
		return true
	default:
		return false
	}
}

// AnswerStream runs the query path with incremental output. Both modes
// produce the same final answer text for the same inputs; only the delivery
// differs.
func (s *AnswerService) AnswerStream(ctx context.Context, req *types.QueryRequest) *AnswerStream {
	stream := &AnswerStream{
		events: make(chan types.StreamEvent, streamBufferSize),
		detach: make(chan struct{}),
	}
	go s.produceStream(ctx, req, stream)
	return stream
}

func (s *AnswerService) produceStream(ctx context.Context, req *types.QueryRequest, stream *AnswerStream) {
	defer close(stream.events)
	started := time.Now()
	queryID := uuid.New()

	chunks, err := s.retriever.HybridSearch(ctx, s.searchRequest(req))
	if err != nil {
		stream.send(types.StreamEvent{Type: types.StreamEventError, Error: err.Error()})
		return
	}

	if len(chunks) == 0 {
		fallback := s.fallbackQueryAnswer(queryID, started)
		stream.send(types.StreamEvent{Type: types.StreamEventChunk, Content: fallback.Answer})
		stream.send(types.StreamEvent{Type: types.StreamEventDone, Metadata: &fallback.Metadata})
		return
	}

	forward := func(fragment string) {
		stream.send(types.StreamEvent{Type: types.StreamEventChunk, Content: fragment})
	}
	result, provErr := s.provider.CompleteStream(ctx, s.completionRequest(req, chunks), forward)

	detached := stream.detached()
	if provErr != nil && !detached {
		stream.send(types.StreamEvent{Type: types.StreamEventError, Error: provErr.Error()})
		return
	}
	if provErr != nil {
		// Consumer is gone and the provider failed on top; there is no
		// complete answer to finalize.
		s.logger.Warn("stream aborted after consumer detach",
			"query_id", queryID.String(),
			"error", provErr,
		)
		return
	}

	metadata := types.AnswerMetadata{
		Model:            s.provider.ModelName(),
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		ChunkCount:       len(chunks),
		LatencyMs:        time.Since(started).Milliseconds(),
		Partial:          detached,
	}

	if err := s.persistQueryLog(ctx, queryID, req, chunks, result.Text, metadata); err != nil {
		stream.send(types.StreamEvent{Type: types.StreamEventError, Error: types.ErrLoggingFailure.Error()})
		s.logger.Error("failed to log streamed query",
			"query_id", queryID.String(),
			"error", err,
		)
		return
	}
	s.warnSlowQuery(queryID, metadata.LatencyMs)

	stream.send(types.StreamEvent{Type: types.StreamEventDone, Metadata: &metadata})
}

func (s *AnswerService) searchRequest(req *types.QueryRequest) types.SearchRequest {
	return types.SearchRequest{
		CollectionID: req.CollectionID,
		Query:        req.Question,
		Limit:        req.TopK,
		Filters:      req.Filters,
	}
}

func (s *AnswerService) completionRequest(req *types.QueryRequest, chunks []types.ScoredChunk) *types.CompletionRequest {
	messages := truncateHistory(req.History)
	messages = append(messages, types.Message{
		Role:    types.MessageRoleUser,
		Content: buildGroundedPrompt(req.Question, chunks),
	})
	return &types.CompletionRequest{
		System:   groundedSystemPrompt,
		Messages: messages,
	}
}

// buildGroundedPrompt lists each excerpt labeled with its rank, filename,
// page and section so the model can cite them. Missing page or section
// metadata renders as a literal placeholder rather than being omitted.
func buildGroundedPrompt(question string, chunks []types.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the source excerpts below.\n\nSources:\n")
	for i, chunk := range chunks {
		page := pagePlaceholder
		if chunk.PageNumber > 0 {
			page = fmt.Sprintf("Page %d", chunk.PageNumber)
		}
		section := chunk.SectionHeading
		if section == "" {
			section = sectionPlaceholder
		}
		fmt.Fprintf(&b, "[%d] %s (%s | %s)\n%s\n\n", i+1, chunk.Filename, page, section, chunk.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

func truncateHistory(history []types.Message) []types.Message {
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	out := make([]types.Message, len(history))
	copy(out, history)
	return out
}

func (s *AnswerService) fallbackQueryAnswer(queryID uuid.UUID, started time.Time) *types.QueryAnswer {
	return &types.QueryAnswer{
		QueryID: queryID,
		Answer:  noInformationAnswer,
		Sources: []types.ScoredChunk{},
		Metadata: types.AnswerMetadata{
			Model:     s.provider.ModelName(),
			LatencyMs: time.Since(started).Milliseconds(),
		},
	}
}

func (s *AnswerService) persistQueryLog(ctx context.Context, queryID uuid.UUID, req *types.QueryRequest, chunks []types.ScoredChunk, answer string, metadata types.AnswerMetadata) error {
	refs := make([]types.ChunkRef, len(chunks))
	for i, chunk := range chunks {
		refs[i] = types.ChunkRef{
			ChunkID:    chunk.ChunkID.String(),
			ResourceID: chunk.ResourceID.String(),
			Score:      chunk.Score,
			Origin:     chunk.Origin,
		}
	}
	return s.queryLogs.CreateQueryLog(ctx, &types.QueryLog{
		ID:               queryID.String(),
		CollectionID:     req.CollectionID.String(),
		Question:         req.Question,
		Chunks:           refs,
		Answer:           answer,
		Model:            metadata.Model,
		PromptTokens:     metadata.PromptTokens,
		CompletionTokens: metadata.CompletionTokens,
		LatencyMs:        metadata.LatencyMs,
		Partial:          metadata.Partial,
		CreatedAt:        time.Now().UTC(),
	})
}

func (s *AnswerService) warnSlowQuery(queryID uuid.UUID, latencyMs int64) {
	if latencyMs > queryLatencyTarget.Milliseconds() {
		s.logger.Warn("query exceeded latency target",
			"query_id", queryID.String(),
			"latency_ms", latencyMs,
			"target_ms", queryLatencyTarget.Milliseconds(),
		)
	}
}
