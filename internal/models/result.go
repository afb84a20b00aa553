package models

// IndexResult is the outcome of adding a batch of documents.
type IndexResult struct {
	IndexedCount int
	TotalCount   int
	// Message is set for a no-op (empty) batch.
	Message string
}

// Hit is a single nearest-neighbor result.
type Hit struct {
	Position int
	Distance float64 // squared L2 distance to the query vector
	Document Document
}

// Status describes the catalog.
type Status struct {
	Ready      bool // startup load has completed
	TotalCount int
	Dimensions int
	ModelName  string
}
