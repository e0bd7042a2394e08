package database

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// Postgres wraps the relational store holding resources and chunks. The
// chunk table carries the pgvector embedding column, so vector and keyword
// search run against the same rows.
type Postgres struct {
	DB *sql.DB
}

// NewPostgres opens the database and applies the schema. The embedding
// dimension is baked into the vector column at creation time and must match
// the configured embedding model.
func NewPostgres(url string, embeddingDimension int) (*Postgres, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ApplySchema(embeddingDimension); err != nil {
		return nil, err
	}
	return p, nil
}

// ApplySchema creates the extension, tables and indexes if missing.
func (p *Postgres) ApplySchema(embeddingDimension int) error {
	if embeddingDimension <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", embeddingDimension)
	}
	stmt := strings.ReplaceAll(schemaSQL, "$EMBEDDING_DIM", strconv.Itoa(embeddingDimension))
	if _, err := p.DB.Exec(stmt); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.DB.Close()
}
