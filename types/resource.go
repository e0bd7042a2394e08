package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	ResourceStatusPending               = "pending"
	ResourceStatusProcessing            = "processing"
	ResourceStatusCompleted             = "completed"
	ResourceStatusCompletedNoEmbeddings = "completed_no_embeddings"
	ResourceStatusFailed                = "failed"
)

// Resource is an uploaded document owned by a collection (one collection per
// campaign). It is created on upload and mutated only by the ingestion
// pipeline.
type Resource struct {
	ID           uuid.UUID        `json:"id"`
	CollectionID uuid.UUID        `json:"collection_id"`
	Filename     string           `json:"filename"`
	PageCount    int              `json:"page_count"`
	Status       string           `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Metadata     ResourceMetadata `json:"metadata"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ResourceMetadata is a free-form map stored as JSONB. The pipeline sets
// title, author, chunk_count, embedding token totals and the cost estimate;
// values are always set absolutely so a redelivered job cannot double-count.
type ResourceMetadata map[string]interface{}

func (m ResourceMetadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *ResourceMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = ResourceMetadata{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into ResourceMetadata", value)
	}
	return json.Unmarshal(b, m)
}

// ExtractedPage is one page of plain text produced by the extractor. Pages
// are 1-based and never persisted.
type ExtractedPage struct {
	PageNumber int
	Text       string
	HasImages  bool
	HasTables  bool
}

// ExtractedDocument is the full extractor output for one file.
type ExtractedDocument struct {
	Pages  []ExtractedPage
	Title  string
	Author string
	Format string
}

// Section is a heading-delimited region of the concatenated document text.
// Start/end are line indices; sections are ordered and non-overlapping, each
// ending on the line before the next heading.
type Section struct {
	Heading   string
	Level     int
	StartLine int
	EndLine   int
}

// Chunk is a token-bounded passage, the unit of retrieval. Offsets are byte
// positions into the immutable concatenated document text.
type Chunk struct {
	Content        string
	TokenCount     int
	PageNumber     int
	SectionHeading string
	HasHeading     bool
	StartOffset    int
	EndOffset      int
}

// ResourceChunk is the persisted form of a Chunk. Embedding stays nil until
// the embedder commits the batch containing it.
type ResourceChunk struct {
	ID             uuid.UUID `json:"id"`
	ResourceID     uuid.UUID `json:"resource_id"`
	CollectionID   uuid.UUID `json:"collection_id"`
	ChunkIndex     int       `json:"chunk_index"`
	Content        string    `json:"content"`
	TokenCount     int       `json:"token_count"`
	PageNumber     int       `json:"page_number"`
	SectionHeading *string   `json:"section_heading,omitempty"`
	StartOffset    int       `json:"start_offset"`
	EndOffset      int       `json:"end_offset"`
	Tags           []string  `json:"tags,omitempty"`
	Embedding      []float32 `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChunkConfig bounds chunk sizes in exact tokenizer tokens.
type ChunkConfig struct {
	MinTokens     int `mapstructure:"min_tokens"`
	MaxTokens     int `mapstructure:"max_tokens"`
	TargetTokens  int `mapstructure:"target_tokens"`
	OverlapTokens int `mapstructure:"overlap_tokens"`
}

var DefaultChunkConfig = ChunkConfig{
	MinTokens:     300,
	MaxTokens:     800,
	TargetTokens:  500,
	OverlapTokens: 50,
}

// IngestJob is the unit of work delivered to pipeline workers. Delivery is
// at-least-once, so processing must tolerate redelivery.
type IngestJob struct {
	ResourceID   uuid.UUID `json:"resource_id"`
	CollectionID uuid.UUID `json:"collection_id"`
	FilePath     string    `json:"file_path"`
}
