package domain

// Retrieval defaults
const (
	DefaultTopK     = 5
	DefaultMinScore = 0.3
)

// ScoredChunk is a VectorIndex hit
type ScoredChunk struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"` // Cosine similarity, higher is closer
}

// RetrievedPassage is a ranked chunk with its source filename
type RetrievedPassage struct {
	Chunk    *Chunk  `json:"chunk"`
	Score    float64 `json:"score"`
	Filename string  `json:"filename"`
}

// RetrieveOptions scopes a retrieval
type RetrieveOptions struct {
	OwnerID     string
	DocumentIDs []string // Optional further restriction within the owner scope
	K           int
	MinScore    *float64 // nil uses the service threshold
}

// ScoreThreshold returns v as an explicit MinScore. Zero and negative values are kept.
func ScoreThreshold(v float64) *float64 {
	return &v
}
