package types

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a single message in the conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// Handle stream responses
type StreamHandler func(response string)

// Origin of a retrieved chunk: which search produced it.
const (
	RetrievalOriginVector  = "vector"
	RetrievalOriginKeyword = "keyword"
	RetrievalOriginHybrid  = "hybrid"
)

// SearchFilters narrows a search inside a collection.
type SearchFilters struct {
	ResourceIDs []uuid.UUID `json:"resource_ids,omitempty"`
	Pages       []int       `json:"pages,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
}

// SearchRequest is the input to vector, keyword and hybrid search.
type SearchRequest struct {
	CollectionID uuid.UUID     `json:"collection_id"`
	Query        string        `json:"query"`
	Limit        int           `json:"limit,omitempty"`
	Filters      SearchFilters `json:"filters,omitempty"`
}

// ScoredChunk is a retrieval result. Produced fresh per query; persisted only
// as a reference list on the query log.
type ScoredChunk struct {
	ChunkID        uuid.UUID `json:"chunk_id"`
	ResourceID     uuid.UUID `json:"resource_id"`
	Content        string    `json:"content"`
	PageNumber     int       `json:"page_number"`
	SectionHeading string    `json:"section_heading,omitempty"`
	Filename       string    `json:"filename"`
	Score          float64   `json:"score"`
	Origin         string    `json:"origin"`
}

// QueryRequest is one question against a collection, with optional
// conversation history and search filters.
type QueryRequest struct {
	CollectionID uuid.UUID     `json:"collection_id"`
	Question     string        `json:"question"`
	History      []Message     `json:"history,omitempty"`
	TopK         int           `json:"top_k,omitempty"`
	Filters      SearchFilters `json:"filters,omitempty"`
}

// AnswerMetadata is the usage/latency report attached to every answer.
type AnswerMetadata struct {
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	ChunkCount       int    `json:"chunk_count"`
	LatencyMs        int64  `json:"latency_ms"`
	Partial          bool   `json:"partial,omitempty"`
}

// QueryAnswer is the full synchronous answer to a query.
type QueryAnswer struct {
	QueryID  uuid.UUID      `json:"query_id"`
	Answer   string         `json:"answer"`
	Sources  []ScoredChunk  `json:"sources"`
	Metadata AnswerMetadata `json:"metadata"`
}

// Stream event types emitted by the streaming query endpoint.
const (
	StreamEventChunk = "chunk"
	StreamEventDone  = "done"
	StreamEventError = "error"
)

// StreamEvent is one frame of a streamed answer: zero or more "chunk" events
// followed by exactly one "done" or "error".
type StreamEvent struct {
	Type     string          `json:"type"`
	Content  string          `json:"content,omitempty"`
	Metadata *AnswerMetadata `json:"metadata,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// ChunkRef records one retrieved chunk and its fused score on a query log.
type ChunkRef struct {
	ChunkID    string  `json:"chunk_id" bson:"chunk_id"`
	ResourceID string  `json:"resource_id" bson:"resource_id"`
	Score      float64 `json:"score" bson:"score"`
	Origin     string  `json:"origin" bson:"origin"`
}

// QueryLog is the persisted record of a completed query. Immutable after
// creation except for the feedback fields.
type QueryLog struct {
	ID               string     `json:"id" bson:"_id"`
	CollectionID     string     `json:"collection_id" bson:"collection_id"`
	Question         string     `json:"question" bson:"question"`
	Chunks           []ChunkRef `json:"chunks" bson:"chunks"`
	Answer           string     `json:"answer" bson:"answer"`
	Model            string     `json:"model" bson:"model"`
	PromptTokens     int        `json:"prompt_tokens" bson:"prompt_tokens"`
	CompletionTokens int        `json:"completion_tokens" bson:"completion_tokens"`
	LatencyMs        int64      `json:"latency_ms" bson:"latency_ms"`
	Partial          bool       `json:"partial" bson:"partial"`
	Rating           *int       `json:"rating,omitempty" bson:"rating,omitempty"`
	FeedbackComment  string     `json:"feedback_comment,omitempty" bson:"feedback_comment,omitempty"`
	CreatedAt        time.Time  `json:"created_at" bson:"created_at"`
}
