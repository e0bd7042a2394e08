package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/loresmith/loresmith-be/types"
	"github.com/pgvector/pgvector-go"
)

const DefaultSearchLimit = 10

// ChunkDBStore implements ChunkStore on Postgres. Vector similarity uses the
// pgvector cosine operator, keyword relevance uses the built-in full text
// ranking, both against the same resource_chunks rows.
type ChunkDBStore struct {
	db *Postgres
}

func NewChunkDBStore(db *Postgres) (*ChunkDBStore, error) {
	if db == nil || db.DB == nil {
		return nil, errors.New("database connection is nil")
	}
	return &ChunkDBStore{db: db}, nil
}

func (s *ChunkDBStore) ReplaceResourceChunks(ctx context.Context, resourceID uuid.UUID, chunks []*types.ResourceChunk) error {
	tx, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin chunk insert: %w", err)
	}
	defer tx.Rollback()

	// Redelivered jobs land here twice; replacing the whole set keeps the
	// chunk index stable without cross-resource locking.
	if _, err := tx.ExecContext(ctx, `DELETE FROM resource_chunks WHERE resource_id = $1`, resourceID); err != nil {
		return fmt.Errorf("failed to clear existing chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(
		ctx,
		`INSERT INTO resource_chunks
		 (id, resource_id, collection_id, chunk_index, content, token_count, page_number, section_heading, start_offset, end_offset, tags, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if chunk.ID == uuid.Nil {
			chunk.ID = uuid.New()
		}
		var embedding interface{}
		if len(chunk.Embedding) > 0 {
			embedding = pgvector.NewVector(chunk.Embedding)
		}
		tags := chunk.Tags
		if tags == nil {
			tags = []string{}
		}
		if _, err := stmt.ExecContext(
			ctx,
			chunk.ID,
			resourceID,
			chunk.CollectionID,
			chunk.ChunkIndex,
			chunk.Content,
			chunk.TokenCount,
			chunk.PageNumber,
			chunk.SectionHeading,
			chunk.StartOffset,
			chunk.EndOffset,
			pq.Array(tags),
			embedding,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk insert: %w", err)
	}
	return nil
}

func (s *ChunkDBStore) UpdateEmbeddingsTx(ctx context.Context, updates []ChunkEmbedding) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin embedding update: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(
		ctx,
		`UPDATE resource_chunks SET embedding = $2 WHERE id = $1 AND embedding IS NULL`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare embedding update: %w", err)
	}
	defer stmt.Close()

	for _, update := range updates {
		if _, err := stmt.ExecContext(ctx, update.ChunkID, pgvector.NewVector(update.Vector)); err != nil {
			return fmt.Errorf("failed to update embedding for chunk %s: %w", update.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit embedding update: %w", err)
	}
	return nil
}

func (s *ChunkDBStore) ListChunksMissingEmbedding(ctx context.Context, resourceID uuid.UUID) ([]*types.ResourceChunk, error) {
	rows, err := s.db.DB.QueryContext(
		ctx,
		`SELECT id, resource_id, collection_id, chunk_index, content, token_count, page_number, section_heading, start_offset, end_offset, created_at
		 FROM resource_chunks
		 WHERE resource_id = $1 AND embedding IS NULL
		 ORDER BY chunk_index`,
		resourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks missing embedding: %w", err)
	}
	defer rows.Close()

	var chunks []*types.ResourceChunk
	for rows.Next() {
		chunk := &types.ResourceChunk{}
		var heading sql.NullString
		if err := rows.Scan(
			&chunk.ID,
			&chunk.ResourceID,
			&chunk.CollectionID,
			&chunk.ChunkIndex,
			&chunk.Content,
			&chunk.TokenCount,
			&chunk.PageNumber,
			&heading,
			&chunk.StartOffset,
			&chunk.EndOffset,
			&chunk.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if heading.Valid {
			chunk.SectionHeading = &heading.String
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *ChunkDBStore) CountChunks(ctx context.Context, resourceID uuid.UUID) (int, error) {
	var count int
	err := s.db.DB.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM resource_chunks WHERE resource_id = $1`,
		resourceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

func (s *ChunkDBStore) CountChunksMissingEmbedding(ctx context.Context, resourceID uuid.UUID) (int, error) {
	var count int
	err := s.db.DB.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM resource_chunks WHERE resource_id = $1 AND embedding IS NULL`,
		resourceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks missing embedding: %w", err)
	}
	return count, nil
}

func (s *ChunkDBStore) VectorSearch(ctx context.Context, embedding []float32, req types.SearchRequest) ([]types.ScoredChunk, error) {
	args := []interface{}{pgvector.NewVector(embedding), req.CollectionID}
	conds := []string{"c.collection_id = $2", "c.embedding IS NOT NULL"}
	conds, args = appendFilterConds(conds, args, req.Filters)
	args = append(args, searchLimit(req.Limit))

	query := fmt.Sprintf(
		`SELECT c.id, c.resource_id, c.content, c.page_number, c.section_heading, r.filename,
		        1 - (c.embedding <=> $1) AS score
		 FROM resource_chunks c
		 JOIN resources r ON r.id = c.resource_id
		 WHERE %s
		 ORDER BY c.embedding <=> $1
		 LIMIT $%d`,
		strings.Join(conds, " AND "), len(args),
	)

	return s.queryScoredChunks(ctx, query, args, types.RetrievalOriginVector)
}

func (s *ChunkDBStore) KeywordSearch(ctx context.Context, req types.SearchRequest) ([]types.ScoredChunk, error) {
	args := []interface{}{req.Query, req.CollectionID}
	conds := []string{
		"c.collection_id = $2",
		"to_tsvector('english', c.content) @@ plainto_tsquery('english', $1)",
	}
	conds, args = appendFilterConds(conds, args, req.Filters)
	args = append(args, searchLimit(req.Limit))

	query := fmt.Sprintf(
		`SELECT c.id, c.resource_id, c.content, c.page_number, c.section_heading, r.filename,
		        ts_rank_cd(to_tsvector('english', c.content), plainto_tsquery('english', $1)) AS score
		 FROM resource_chunks c
		 JOIN resources r ON r.id = c.resource_id
		 WHERE %s
		 ORDER BY score DESC
		 LIMIT $%d`,
		strings.Join(conds, " AND "), len(args),
	)

	return s.queryScoredChunks(ctx, query, args, types.RetrievalOriginKeyword)
}

func (s *ChunkDBStore) queryScoredChunks(ctx context.Context, query string, args []interface{}, origin string) ([]types.ScoredChunk, error) {
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run %s search: %w", origin, err)
	}
	defer rows.Close()

	var results []types.ScoredChunk
	for rows.Next() {
		var chunk types.ScoredChunk
		var heading sql.NullString
		if err := rows.Scan(
			&chunk.ChunkID,
			&chunk.ResourceID,
			&chunk.Content,
			&chunk.PageNumber,
			&heading,
			&chunk.Filename,
			&chunk.Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan %s search result: %w", origin, err)
		}
		chunk.SectionHeading = heading.String
		chunk.Origin = origin
		results = append(results, chunk)
	}
	return results, rows.Err()
}

func appendFilterConds(conds []string, args []interface{}, filters types.SearchFilters) ([]string, []interface{}) {
	if len(filters.ResourceIDs) > 0 {
		ids := make([]string, len(filters.ResourceIDs))
		for i, id := range filters.ResourceIDs {
			ids[i] = id.String()
		}
		args = append(args, pq.Array(ids))
		conds = append(conds, fmt.Sprintf("c.resource_id = ANY($%d::uuid[])", len(args)))
	}
	if len(filters.Pages) > 0 {
		pages := make([]int64, len(filters.Pages))
		for i, p := range filters.Pages {
			pages[i] = int64(p)
		}
		args = append(args, pq.Array(pages))
		conds = append(conds, fmt.Sprintf("c.page_number = ANY($%d)", len(args)))
	}
	if len(filters.Tags) > 0 {
		args = append(args, pq.Array(filters.Tags))
		conds = append(conds, fmt.Sprintf("c.tags && $%d", len(args)))
	}
	return conds, args
}

func searchLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	return limit
}
