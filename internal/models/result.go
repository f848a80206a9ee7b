package models

// SearchResult is a single retrieval hit. Position is the chunk's insertion
// position in the vector index; ties on Score sort by lowest Position.
type SearchResult struct {
	Chunk    Chunk   `json:"chunk"`
	Score    float64 `json:"score"`
	Position int     `json:"position"`
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Question   string `json:"question"`
	MaxResults int    `json:"max_results,omitempty"`
}

// DocumentSource identifies a source document backing an answer.
type DocumentSource struct {
	Filename       string  `json:"filename"`
	RelevanceScore float64 `json:"relevance_score"`
}

// QueryResponse is the response of POST /query.
type QueryResponse struct {
	Answer          string           `json:"answer"`
	Sources         []DocumentSource `json:"sources"`
	ConfidenceScore float64          `json:"confidence_score"`
}

// IngestionStatus is the response of GET /status.
type IngestionStatus struct {
	Status             string `json:"status"`
	Message            string `json:"message"`
	DocumentsProcessed int64  `json:"documents_processed"`
	TotalChunks        int    `json:"total_chunks"`
}

// UploadResponse is the response of POST /upload.
type UploadResponse struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// DocumentListing is one entry of GET /documents: chunk count per source filename.
type DocumentListing struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
}
