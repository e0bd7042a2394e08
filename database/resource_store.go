package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/loresmith/loresmith-be/types"
)

// ErrResourceNotFound is returned when a resource id has no row.
var ErrResourceNotFound = errors.New("resource not found")

// ResourceDBStore implements ResourceStore on Postgres.
type ResourceDBStore struct {
	db *Postgres
}

func NewResourceDBStore(db *Postgres) (*ResourceDBStore, error) {
	if db == nil || db.DB == nil {
		return nil, errors.New("database connection is nil")
	}
	return &ResourceDBStore{db: db}, nil
}

func (s *ResourceDBStore) CreateResource(ctx context.Context, resource *types.Resource) error {
	if resource.ID == uuid.Nil {
		resource.ID = uuid.New()
	}
	if resource.Status == "" {
		resource.Status = types.ResourceStatusPending
	}
	row := s.db.DB.QueryRowContext(
		ctx,
		`INSERT INTO resources (id, collection_id, filename, page_count, status, error_message, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		resource.ID,
		resource.CollectionID,
		resource.Filename,
		resource.PageCount,
		resource.Status,
		resource.ErrorMessage,
		resource.Metadata,
	)
	if err := row.Scan(&resource.CreatedAt, &resource.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert resource: %w", err)
	}
	return nil
}

func (s *ResourceDBStore) GetResource(ctx context.Context, id uuid.UUID) (*types.Resource, error) {
	resource := &types.Resource{}
	row := s.db.DB.QueryRowContext(
		ctx,
		`SELECT id, collection_id, filename, page_count, status, error_message, metadata, created_at, updated_at
		 FROM resources WHERE id = $1`,
		id,
	)
	err := row.Scan(
		&resource.ID,
		&resource.CollectionID,
		&resource.Filename,
		&resource.PageCount,
		&resource.Status,
		&resource.ErrorMessage,
		&resource.Metadata,
		&resource.CreatedAt,
		&resource.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return resource, nil
}

func (s *ResourceDBStore) ListResources(ctx context.Context, collectionID uuid.UUID) ([]*types.Resource, error) {
	rows, err := s.db.DB.QueryContext(
		ctx,
		`SELECT id, collection_id, filename, page_count, status, error_message, metadata, created_at, updated_at
		 FROM resources WHERE collection_id = $1 ORDER BY created_at`,
		collectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()
	return scanResources(rows)
}

// ListResourcesByStatus finds resources in any of the given statuses across
// all collections. The server uses it at startup to requeue work a previous
// process never finished.
func (s *ResourceDBStore) ListResourcesByStatus(ctx context.Context, statuses ...string) ([]*types.Resource, error) {
	rows, err := s.db.DB.QueryContext(
		ctx,
		`SELECT id, collection_id, filename, page_count, status, error_message, metadata, created_at, updated_at
		 FROM resources WHERE status = ANY($1) ORDER BY created_at`,
		pq.Array(statuses),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources by status: %w", err)
	}
	defer rows.Close()
	return scanResources(rows)
}

func scanResources(rows *sql.Rows) ([]*types.Resource, error) {
	var resources []*types.Resource
	for rows.Next() {
		resource := &types.Resource{}
		if err := rows.Scan(
			&resource.ID,
			&resource.CollectionID,
			&resource.Filename,
			&resource.PageCount,
			&resource.Status,
			&resource.ErrorMessage,
			&resource.Metadata,
			&resource.CreatedAt,
			&resource.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, resource)
	}
	return resources, rows.Err()
}

func (s *ResourceDBStore) UpdateStatus(ctx context.Context, id uuid.UUID, status, errorMessage string) error {
	result, err := s.db.DB.ExecContext(
		ctx,
		`UPDATE resources SET status = $2, error_message = $3, updated_at = now() WHERE id = $1`,
		id, status, errorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to update resource status: %w", err)
	}
	return requireOneRow(result)
}

func (s *ResourceDBStore) UpdatePageCount(ctx context.Context, id uuid.UUID, pageCount int) error {
	result, err := s.db.DB.ExecContext(
		ctx,
		`UPDATE resources SET page_count = $2, updated_at = now() WHERE id = $1`,
		id, pageCount,
	)
	if err != nil {
		return fmt.Errorf("failed to update resource page count: %w", err)
	}
	return requireOneRow(result)
}

// UpdateMetadata merges the given keys into the stored metadata. Each key's
// value is set absolutely (no read-modify-write), so a redelivered job
// overwrites counters instead of double-counting them, while keys written at
// upload time survive.
func (s *ResourceDBStore) UpdateMetadata(ctx context.Context, id uuid.UUID, metadata types.ResourceMetadata) error {
	result, err := s.db.DB.ExecContext(
		ctx,
		`UPDATE resources SET metadata = COALESCE(metadata, '{}'::jsonb) || $2, updated_at = now() WHERE id = $1`,
		id, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to update resource metadata: %w", err)
	}
	return requireOneRow(result)
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrResourceNotFound
	}
	return nil
}
