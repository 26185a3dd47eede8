package core

import "context"

// Passage is a retrieved knowledge-store excerpt with a relevance score.
// Higher scores mean closer matches.
type Passage struct {
	Text      string  `json:"text"`
	SourceRef string  `json:"source_ref"`
	Score     float64 `json:"score"`
}

// KnowledgeStore is the interface to the external course-material index.
// Embedding generation and vector-index internals live behind it; the
// pipeline only depends on scored, course-scoped search.
//
// Course scoping is mandatory: implementations must never return passages
// from outside courseID.
type KnowledgeStore interface {
	Query(ctx context.Context, text, courseID string, topK int) ([]Passage, error)
}
