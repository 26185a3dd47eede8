// Package knowledge provides KnowledgeStore implementations: a process-local
// lexical index for tests and development, and an HTTP client for a remote
// vector-search service. Embedding generation and index internals stay behind
// the core.KnowledgeStore interface.
package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tutorflow/tutorflow/core"
)

// document is the internal representation stored by InMemoryStore.
type document struct {
	SourceRef string
	Text      string
}

// InMemoryStore is a naive process-local KnowledgeStore. Documents are
// indexed per course; Query scores each document by the fraction of query
// terms it contains. Suitable only for tests / demos; production retrieval
// runs against a real vector index behind HTTPStore.
//
// Concurrency: protected by RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	courses map[string][]document // courseID -> documents
}

// NewInMemoryStore creates an empty in-memory knowledge store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{courses: make(map[string][]document)}
}

// Add indexes a passage under a course, generating a source ref when none is
// supplied.
func (s *InMemoryStore) Add(courseID, sourceRef, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sourceRef == "" {
		sourceRef = fmt.Sprintf("%s/doc_%d", courseID, len(s.courses[courseID]))
	}
	s.courses[courseID] = append(s.courses[courseID], document{SourceRef: sourceRef, Text: text})
}

// Query implements core.KnowledgeStore with term-overlap scoring. Results are
// sorted by score descending (ties by source ref for determinism) and cut to
// topK. An empty result is valid, not an error.
func (s *InMemoryStore) Query(ctx context.Context, text, courseID string, topK int) ([]core.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if courseID == "" {
		return nil, fmt.Errorf("course id is required")
	}
	if topK <= 0 {
		topK = 5
	}

	terms := tokenize(text)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []core.Passage
	for _, doc := range s.courses[courseID] {
		score := overlapScore(terms, doc.Text)
		if score <= 0 {
			continue
		}
		results = append(results, core.Passage{Text: doc.Text, SourceRef: doc.SourceRef, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].SourceRef < results[j].SourceRef
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

// overlapScore returns the fraction of query terms present in the document.
func overlapScore(terms []string, docText string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(docText)
	matched := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}
