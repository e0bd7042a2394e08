package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/loresmith/loresmith-be/database"
	"github.com/loresmith/loresmith-be/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) types.DataResponse {
	t.Helper()
	var resp types.DataResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func dataMap(t *testing.T, resp types.DataResponse) map[string]interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T, want object", resp.Data)
	return m
}

// stubResourceStore is a map-backed ResourceStore recording status
// transitions.
type stubResourceStore struct {
	mu        sync.Mutex
	resources map[uuid.UUID]*types.Resource
	order     []uuid.UUID
	statuses  []string
	createErr error
}

func newStubResourceStore() *stubResourceStore {
	return &stubResourceStore{resources: map[uuid.UUID]*types.Resource{}}
}

func copyStubResource(r *types.Resource) *types.Resource {
	c := *r
	if r.Metadata != nil {
		c.Metadata = types.ResourceMetadata{}
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func (s *stubResourceStore) CreateResource(ctx context.Context, resource *types.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.resources[resource.ID] = copyStubResource(resource)
	s.order = append(s.order, resource.ID)
	return nil
}

func (s *stubResourceStore) GetResource(ctx context.Context, id uuid.UUID) (*types.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resource, ok := s.resources[id]
	if !ok {
		return nil, database.ErrResourceNotFound
	}
	return copyStubResource(resource), nil
}

func (s *stubResourceStore) ListResources(ctx context.Context, collectionID uuid.UUID) ([]*types.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Resource
	for _, id := range s.order {
		if r := s.resources[id]; r.CollectionID == collectionID {
			out = append(out, copyStubResource(r))
		}
	}
	return out, nil
}

func (s *stubResourceStore) ListResourcesByStatus(ctx context.Context, statuses ...string) ([]*types.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Resource
	for _, id := range s.order {
		r := s.resources[id]
		for _, status := range statuses {
			if r.Status == status {
				out = append(out, copyStubResource(r))
				break
			}
		}
	}
	return out, nil
}

func (s *stubResourceStore) UpdateStatus(ctx context.Context, id uuid.UUID, status, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	if r, ok := s.resources[id]; ok {
		r.Status = status
		r.ErrorMessage = errorMessage
	}
	return nil
}

func (s *stubResourceStore) UpdatePageCount(ctx context.Context, id uuid.UUID, pageCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.resources[id]; ok {
		r.PageCount = pageCount
	}
	return nil
}

func (s *stubResourceStore) UpdateMetadata(ctx context.Context, id uuid.UUID, metadata types.ResourceMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[id]
	if !ok {
		return database.ErrResourceNotFound
	}
	if r.Metadata == nil {
		r.Metadata = types.ResourceMetadata{}
	}
	for k, v := range metadata {
		r.Metadata[k] = v
	}
	return nil
}

func (s *stubResourceStore) created() []*types.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Resource, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyStubResource(s.resources[id]))
	}
	return out
}

func (s *stubResourceStore) statusLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.statuses))
	copy(out, s.statuses)
	return out
}

// stubChunkStore serves canned counts and search results.
type stubChunkStore struct {
	mu             sync.Mutex
	chunkCount     int
	countErr       error
	vectorResults  []types.ScoredChunk
	vectorErr      error
	keywordResults []types.ScoredChunk
	keywordErr     error
}

func (s *stubChunkStore) ReplaceResourceChunks(ctx context.Context, resourceID uuid.UUID, chunks []*types.ResourceChunk) error {
	return nil
}

func (s *stubChunkStore) UpdateEmbeddingsTx(ctx context.Context, updates []database.ChunkEmbedding) error {
	return nil
}

func (s *stubChunkStore) ListChunksMissingEmbedding(ctx context.Context, resourceID uuid.UUID) ([]*types.ResourceChunk, error) {
	return nil, nil
}

func (s *stubChunkStore) CountChunks(ctx context.Context, resourceID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkCount, s.countErr
}

func (s *stubChunkStore) CountChunksMissingEmbedding(ctx context.Context, resourceID uuid.UUID) (int, error) {
	return 0, nil
}

func (s *stubChunkStore) VectorSearch(ctx context.Context, embedding []float32, req types.SearchRequest) ([]types.ScoredChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ScoredChunk(nil), s.vectorResults...), s.vectorErr
}

func (s *stubChunkStore) KeywordSearch(ctx context.Context, req types.SearchRequest) ([]types.ScoredChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ScoredChunk(nil), s.keywordResults...), s.keywordErr
}

// stubQueryLogRepo is a map-backed QueryLogRepo recording feedback and list
// arguments.
type stubQueryLogRepo struct {
	mu        sync.Mutex
	logs      map[string]*types.QueryLog
	feedback  []feedbackCall
	listCalls []listCall
	createErr error
}

type feedbackCall struct {
	id      string
	rating  int
	comment string
}

type listCall struct {
	collectionID string
	limit        int
	offset       int
}

func newStubQueryLogRepo() *stubQueryLogRepo {
	return &stubQueryLogRepo{logs: map[string]*types.QueryLog{}}
}

func (r *stubQueryLogRepo) CreateQueryLog(ctx context.Context, queryLog *types.QueryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	c := *queryLog
	r.logs[queryLog.ID] = &c
	return nil
}

func (r *stubQueryLogRepo) GetQueryLog(ctx context.Context, id string) (*types.QueryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queryLog, ok := r.logs[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	c := *queryLog
	return &c, nil
}

func (r *stubQueryLogRepo) ListQueryLogs(ctx context.Context, collectionID string, limit, offset int) ([]*types.QueryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls = append(r.listCalls, listCall{collectionID: collectionID, limit: limit, offset: offset})
	var out []*types.QueryLog
	for _, queryLog := range r.logs {
		if queryLog.CollectionID == collectionID {
			c := *queryLog
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *stubQueryLogRepo) UpdateFeedback(ctx context.Context, id string, rating int, comment string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logs[id]; !ok {
		return mongo.ErrNoDocuments
	}
	r.feedback = append(r.feedback, feedbackCall{id: id, rating: rating, comment: comment})
	return nil
}

func (r *stubQueryLogRepo) feedbackCalls() []feedbackCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]feedbackCall, len(r.feedback))
	copy(out, r.feedback)
	return out
}

func (r *stubQueryLogRepo) lastListCall(t *testing.T) listCall {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.listCalls)
	return r.listCalls[len(r.listCalls)-1]
}

func (r *stubQueryLogRepo) logCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

// stubEmbeddingProvider returns a fixed unit vector per text.
type stubEmbeddingProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *stubEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) (*types.EmbeddingResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	items := make([]types.EmbeddingItem, len(texts))
	for i := range texts {
		items[i] = types.EmbeddingItem{Index: i, Vector: []float32{1, 0, 0}}
	}
	return &types.EmbeddingResult{Items: items, PromptTokens: len(texts)}, nil
}

func (p *stubEmbeddingProvider) Dimension() int { return 3 }

// stubCompletionProvider returns a canned answer.
type stubCompletionProvider struct {
	mu       sync.Mutex
	requests []*types.CompletionRequest
	text     string
	err      error
}

func (p *stubCompletionProvider) Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return &types.CompletionResult{Text: p.text, PromptTokens: 40, CompletionTokens: 12}, nil
}

func (p *stubCompletionProvider) CompleteStream(ctx context.Context, req *types.CompletionRequest, handler types.StreamHandler) (*types.CompletionResult, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	err := p.err
	text := p.text
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	handler(text)
	return &types.CompletionResult{Text: text, PromptTokens: 40, CompletionTokens: 12}, nil
}

func (p *stubCompletionProvider) ModelName() string { return "stub-model" }

func (p *stubCompletionProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// stubJobQueue fails every enqueue, for exercising the queue-unavailable
// path.
type stubJobQueue struct{ err error }

func (q *stubJobQueue) Enqueue(ctx context.Context, job types.IngestJob) error {
	if q.err != nil {
		return q.err
	}
	return errors.New("enqueue not supported")
}

func (q *stubJobQueue) Jobs() <-chan types.IngestJob { return nil }

func (q *stubJobQueue) Close() {}
