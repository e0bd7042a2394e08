package types

type DataResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ResourceStatusResponse is the ingestion-progress view of a resource.
type ResourceStatusResponse struct {
	ID           string           `json:"id"`
	CollectionID string           `json:"collection_id"`
	Filename     string           `json:"filename"`
	Status       string           `json:"status"`
	PageCount    int              `json:"page_count"`
	ChunkCount   int              `json:"chunk_count"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Metadata     ResourceMetadata `json:"metadata,omitempty"`
}

// UploadResponse acknowledges an accepted upload. Processing continues in
// the background; poll the resource for status.
type UploadResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// SearchResponse wraps retrieval results.
type SearchResponse struct {
	Chunks []ScoredChunk `json:"chunks"`
}
