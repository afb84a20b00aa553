package models

// Wire shapes of the HTTP API, shared by the server and the CLI client.

// IndexRequest is the body of POST /index.
type IndexRequest struct {
	Documents *[]DocumentInput `json:"documents"`
}

// IndexResponse is returned by POST /index.
type IndexResponse struct {
	OK           bool   `json:"ok"`
	IndexedCount int    `json:"indexed_count"`
	TotalVectors int    `json:"total_vectors"`
	Message      string `json:"message,omitempty"`
}

// QueryRequest is the body of POST /query. A nil TopK selects the server default.
type QueryRequest struct {
	Query *string `json:"query"`
	TopK  *int    `json:"top_k,omitempty"`
}

// QueryResponse is returned by POST /query. Distances[i] belongs to Results[i].
type QueryResponse struct {
	OK        bool       `json:"ok"`
	Results   []Document `json:"results"`
	Distances []float64  `json:"distances"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	OK               bool   `json:"ok"`
	ModelName        string `json:"model_name"`
	IndexReady       bool   `json:"index_ready"`
	IndexedDocuments int    `json:"indexed_documents"`
	VectorCount      int    `json:"vector_count"`
	Dimension        int    `json:"dimension"`
	Storage          string `json:"storage,omitempty"`
	DiskUsageBytes   *int64 `json:"disk_usage_bytes,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}
