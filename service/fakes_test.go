package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith-be/database"
	"github.com/loresmith/loresmith-be/types"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wordCounter counts whitespace-separated words, so chunking tests can
// reason about sizes without a real tokenizer.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// instantTimer satisfies backoff.Timer and fires as soon as it is started,
// so retry tests run the full schedule without waiting it out.
type instantTimer struct {
	ch chan time.Time
}

func newInstantTimer() *instantTimer {
	return &instantTimer{ch: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(time.Duration) {
	select {
	case t.ch <- time.Now():
	default:
	}
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time {
	return t.ch
}

// fakeEmbeddingProvider returns one-dimensional vectors encoding the index of
// the text they embed, which makes ordering mistakes visible in the output.
// errs[n] is the error for call n; nil or out of range means success.
type fakeEmbeddingProvider struct {
	mu           sync.Mutex
	calls        [][]string
	errs         []error
	reversed     bool
	promptTokens int
}

func (p *fakeEmbeddingProvider) EmbedBatch(_ context.Context, texts []string) (*types.EmbeddingResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := len(p.calls)
	p.calls = append(p.calls, append([]string(nil), texts...))
	if call < len(p.errs) && p.errs[call] != nil {
		return nil, p.errs[call]
	}
	items := make([]types.EmbeddingItem, len(texts))
	for i := range texts {
		items[i] = types.EmbeddingItem{Index: i, Vector: []float32{float32(i)}}
	}
	if p.reversed {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	return &types.EmbeddingResult{Items: items, PromptTokens: p.promptTokens}, nil
}

func (p *fakeEmbeddingProvider) Dimension() int { return 1 }

func (p *fakeEmbeddingProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// fakeChunkStore keeps chunks in memory with the same replace and
// set-if-null semantics as the Postgres store. Search results are canned.
type fakeChunkStore struct {
	mu     sync.Mutex
	chunks []*types.ResourceChunk

	updateCalls [][]database.ChunkEmbedding
	updateErrs  []error

	vectorResults  []types.ScoredChunk
	vectorErr      error
	vectorReqs     []types.SearchRequest
	keywordResults []types.ScoredChunk
	keywordErr     error
	keywordReqs    []types.SearchRequest
}

func (s *fakeChunkStore) ReplaceResourceChunks(_ context.Context, resourceID uuid.UUID, chunks []*types.ResourceChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.chunks[:0]
	for _, chunk := range s.chunks {
		if chunk.ResourceID != resourceID {
			kept = append(kept, chunk)
		}
	}
	s.chunks = kept
	for _, chunk := range chunks {
		copied := *chunk
		s.chunks = append(s.chunks, &copied)
	}
	return nil
}

func (s *fakeChunkStore) UpdateEmbeddingsTx(_ context.Context, updates []database.ChunkEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := len(s.updateCalls)
	s.updateCalls = append(s.updateCalls, append([]database.ChunkEmbedding(nil), updates...))
	if call < len(s.updateErrs) && s.updateErrs[call] != nil {
		return s.updateErrs[call]
	}
	for _, update := range updates {
		for _, chunk := range s.chunks {
			if chunk.ID == update.ChunkID && chunk.Embedding == nil {
				chunk.Embedding = update.Vector
			}
		}
	}
	return nil
}

func (s *fakeChunkStore) ListChunksMissingEmbedding(_ context.Context, resourceID uuid.UUID) ([]*types.ResourceChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []*types.ResourceChunk
	for _, chunk := range s.chunks {
		if chunk.ResourceID == resourceID && chunk.Embedding == nil {
			missing = append(missing, chunk)
		}
	}
	return missing, nil
}

func (s *fakeChunkStore) CountChunks(_ context.Context, resourceID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, chunk := range s.chunks {
		if chunk.ResourceID == resourceID {
			count++
		}
	}
	return count, nil
}

func (s *fakeChunkStore) CountChunksMissingEmbedding(_ context.Context, resourceID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, chunk := range s.chunks {
		if chunk.ResourceID == resourceID && chunk.Embedding == nil {
			count++
		}
	}
	return count, nil
}

func (s *fakeChunkStore) VectorSearch(_ context.Context, _ []float32, req types.SearchRequest) ([]types.ScoredChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectorReqs = append(s.vectorReqs, req)
	if s.vectorErr != nil {
		return nil, s.vectorErr
	}
	return append([]types.ScoredChunk(nil), s.vectorResults...), nil
}

func (s *fakeChunkStore) KeywordSearch(_ context.Context, req types.SearchRequest) ([]types.ScoredChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywordReqs = append(s.keywordReqs, req)
	if s.keywordErr != nil {
		return nil, s.keywordErr
	}
	return append([]types.ScoredChunk(nil), s.keywordResults...), nil
}

func (s *fakeChunkStore) storedChunks(resourceID uuid.UUID) []*types.ResourceChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.ResourceChunk
	for _, chunk := range s.chunks {
		if chunk.ResourceID == resourceID {
			out = append(out, chunk)
		}
	}
	return out
}

// fakeResourceStore is an in-memory ResourceStore. It records the sequence
// of status transitions and merges metadata the way the JSONB store does.
type fakeResourceStore struct {
	mu        sync.Mutex
	resources map[uuid.UUID]*types.Resource
	statuses  []string
}

func newFakeResourceStore() *fakeResourceStore {
	return &fakeResourceStore{resources: make(map[uuid.UUID]*types.Resource)}
}

func (s *fakeResourceStore) CreateResource(_ context.Context, resource *types.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if resource.ID == uuid.Nil {
		resource.ID = uuid.New()
	}
	if resource.Status == "" {
		resource.Status = types.ResourceStatusPending
	}
	copied := *resource
	s.resources[resource.ID] = &copied
	return nil
}

func (s *fakeResourceStore) GetResource(_ context.Context, id uuid.UUID) (*types.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resource, ok := s.resources[id]
	if !ok {
		return nil, database.ErrResourceNotFound
	}
	copied := *resource
	return &copied, nil
}

func (s *fakeResourceStore) ListResources(_ context.Context, collectionID uuid.UUID) ([]*types.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Resource
	for _, resource := range s.resources {
		if resource.CollectionID == collectionID {
			copied := *resource
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeResourceStore) ListResourcesByStatus(_ context.Context, statuses ...string) ([]*types.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(statuses))
	for _, status := range statuses {
		wanted[status] = true
	}
	var out []*types.Resource
	for _, resource := range s.resources {
		if wanted[resource.Status] {
			copied := *resource
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeResourceStore) UpdateStatus(_ context.Context, id uuid.UUID, status, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	resource, ok := s.resources[id]
	if !ok {
		return database.ErrResourceNotFound
	}
	resource.Status = status
	resource.ErrorMessage = errorMessage
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeResourceStore) UpdatePageCount(_ context.Context, id uuid.UUID, pageCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	resource, ok := s.resources[id]
	if !ok {
		return database.ErrResourceNotFound
	}
	resource.PageCount = pageCount
	return nil
}

func (s *fakeResourceStore) UpdateMetadata(_ context.Context, id uuid.UUID, metadata types.ResourceMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	resource, ok := s.resources[id]
	if !ok {
		return database.ErrResourceNotFound
	}
	if resource.Metadata == nil {
		resource.Metadata = types.ResourceMetadata{}
	}
	for key, value := range metadata {
		resource.Metadata[key] = value
	}
	return nil
}

func (s *fakeResourceStore) statusLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses...)
}

// fakeCompletionProvider returns a canned completion and records every
// request. When pieces is set, CompleteStream emits them one at a time;
// resume, when non-nil, blocks the stream after the first piece until the
// channel is closed, letting tests detach mid-stream deterministically.
type fakeCompletionProvider struct {
	mu       sync.Mutex
	requests []*types.CompletionRequest

	text             string
	pieces           []string
	promptTokens     int
	completionTokens int
	err              error
	model            string
	resume           chan struct{}
}

func (p *fakeCompletionProvider) Complete(_ context.Context, req *types.CompletionRequest) (*types.CompletionResult, error) {
	p.record(req)
	if p.err != nil {
		return nil, p.err
	}
	return &types.CompletionResult{
		Text:             p.text,
		PromptTokens:     p.promptTokens,
		CompletionTokens: p.completionTokens,
	}, nil
}

func (p *fakeCompletionProvider) CompleteStream(_ context.Context, req *types.CompletionRequest, handler types.StreamHandler) (*types.CompletionResult, error) {
	p.record(req)
	if p.err != nil {
		return nil, p.err
	}
	pieces := p.pieces
	if len(pieces) == 0 {
		pieces = []string{p.text}
	}
	var full strings.Builder
	for i, piece := range pieces {
		if i == 1 && p.resume != nil {
			<-p.resume
		}
		handler(piece)
		full.WriteString(piece)
	}
	return &types.CompletionResult{
		Text:             full.String(),
		PromptTokens:     p.promptTokens,
		CompletionTokens: p.completionTokens,
	}, nil
}

func (p *fakeCompletionProvider) ModelName() string {
	if p.model == "" {
		return "fake-model"
	}
	return p.model
}

func (p *fakeCompletionProvider) record(req *types.CompletionRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
}

func (p *fakeCompletionProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *fakeCompletionProvider) lastRequest() *types.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}

// fakeQueryLogRepo keeps query logs in a slice.
type fakeQueryLogRepo struct {
	mu        sync.Mutex
	logs      []*types.QueryLog
	createErr error
}

func (r *fakeQueryLogRepo) CreateQueryLog(_ context.Context, queryLog *types.QueryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	copied := *queryLog
	r.logs = append(r.logs, &copied)
	return nil
}

func (r *fakeQueryLogRepo) GetQueryLog(_ context.Context, id string) (*types.QueryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, queryLog := range r.logs {
		if queryLog.ID == id {
			copied := *queryLog
			return &copied, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (r *fakeQueryLogRepo) ListQueryLogs(_ context.Context, collectionID string, limit, offset int) ([]*types.QueryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.QueryLog
	for _, queryLog := range r.logs {
		if collectionID != "" && queryLog.CollectionID != collectionID {
			continue
		}
		copied := *queryLog
		out = append(out, &copied)
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeQueryLogRepo) UpdateFeedback(_ context.Context, id string, rating int, comment string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, queryLog := range r.logs {
		if queryLog.ID == id {
			queryLog.Rating = &rating
			queryLog.FeedbackComment = comment
			return nil
		}
	}
	return mongo.ErrNoDocuments
}

func (r *fakeQueryLogRepo) logCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

func (r *fakeQueryLogRepo) lastLog() *types.QueryLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.logs) == 0 {
		return nil
	}
	copied := *r.logs[len(r.logs)-1]
	return &copied
}
