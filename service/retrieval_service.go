package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/loresmith/loresmith-be/database"
	"github.com/loresmith/loresmith-be/types"
)

// rrfConstant dampens the influence of top ranks when fusing ranked lists.
const rrfConstant = 60

const DefaultSearchTopK = 10

// RetrievalService answers "find me relevant chunks": vector similarity and
// keyword relevance run in parallel and their rankings are fused with
// reciprocal rank fusion. If one leg fails the other's results are used
// alone; only a double failure fails the search.
type RetrievalService struct {
	embedder *EmbedService
	store    database.ChunkStore
	topK     int
	logger   *slog.Logger
}

func NewRetrievalService(embedder *EmbedService, store database.ChunkStore, topK int, logger *slog.Logger) *RetrievalService {
	if topK <= 0 {
		topK = DefaultSearchTopK
	}
	return &RetrievalService{
		embedder: embedder,
		store:    store,
		topK:     topK,
		logger:   logger,
	}
}

func (s *RetrievalService) VectorSearch(ctx context.Context, req types.SearchRequest) ([]types.ScoredChunk, error) {
	vectors, _, err := s.embedder.EmbedTexts(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.store.VectorSearch(ctx, vectors[0], req)
}

func (s *RetrievalService) KeywordSearch(ctx context.Context, req types.SearchRequest) ([]types.ScoredChunk, error) {
	return s.store.KeywordSearch(ctx, req)
}

func (s *RetrievalService) HybridSearch(ctx context.Context, req types.SearchRequest) ([]types.ScoredChunk, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return []types.ScoredChunk{}, nil
	}
	if req.Limit <= 0 {
		req.Limit = s.topK
	}

	var vectorResults, keywordResults []types.ScoredChunk
	var vectorErr, keywordErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorResults, vectorErr = s.VectorSearch(ctx, req)
	}()
	go func() {
		defer wg.Done()
		keywordResults, keywordErr = s.KeywordSearch(ctx, req)
	}()
	wg.Wait()

	if vectorErr != nil && keywordErr != nil {
		return nil, fmt.Errorf("hybrid search failed: vector=%v, keyword=%w", vectorErr, keywordErr)
	}
	if vectorErr != nil {
		s.logger.Warn("vector search failed, using keyword results only", "error", vectorErr)
		return truncateResults(keywordResults, req.Limit), nil
	}
	if keywordErr != nil {
		s.logger.Warn("keyword search failed, using vector results only", "error", keywordErr)
		return truncateResults(vectorResults, req.Limit), nil
	}

	return fuseResults(vectorResults, keywordResults, req.Limit), nil
}

// fuseResults merges two ranked lists with reciprocal rank fusion: each
// chunk's fused score is the sum of 1/(rank+constant) over the lists it
// appears in, so a chunk present in both lists outranks an equally-placed
// chunk present in one.
func fuseResults(vectorResults, keywordResults []types.ScoredChunk, limit int) []types.ScoredChunk {
	scores := make(map[uuid.UUID]float64)
	chunks := make(map[uuid.UUID]types.ScoredChunk)
	appearances := make(map[uuid.UUID]int)

	accumulate := func(list []types.ScoredChunk) {
		for rank, chunk := range list {
			scores[chunk.ChunkID] += 1.0 / float64(rrfConstant+rank+1)
			appearances[chunk.ChunkID]++
			if _, ok := chunks[chunk.ChunkID]; !ok {
				chunks[chunk.ChunkID] = chunk
			}
		}
	}
	accumulate(vectorResults)
	accumulate(keywordResults)

	results := make([]types.ScoredChunk, 0, len(chunks))
	for id, chunk := range chunks {
		chunk.Score = scores[id]
		if appearances[id] > 1 {
			chunk.Origin = types.RetrievalOriginHybrid
		}
		results = append(results, chunk)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID.String() < results[j].ChunkID.String()
	})
	return truncateResults(results, limit)
}

func truncateResults(results []types.ScoredChunk, limit int) []types.ScoredChunk {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
