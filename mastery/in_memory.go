package mastery

import (
	"context"
	"sort"
	"sync"

	"github.com/tutorflow/tutorflow/core"
)

// InMemoryStore is a process-local MasteryStore for development and tests.
// Rows are copied on the way in and out so callers can never alias internal
// state. Concurrency: protected by RWMutex.
type InMemoryStore struct {
	mu   sync.RWMutex
	rows map[string]map[string]core.ConceptMastery // studentID -> concept -> row
}

// NewInMemoryStore creates an empty in-memory mastery store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[string]map[string]core.ConceptMastery)}
}

// Get implements core.MasteryStore.
func (s *InMemoryStore) Get(ctx context.Context, studentID, concept string) (core.ConceptMastery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[studentID][concept]
	if !ok {
		return core.ConceptMastery{}, core.ErrMasteryNotFound
	}
	return row, nil
}

// Put implements core.MasteryStore.
func (s *InMemoryStore) Put(ctx context.Context, row core.ConceptMastery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[row.StudentID]; !ok {
		s.rows[row.StudentID] = make(map[string]core.ConceptMastery)
	}
	s.rows[row.StudentID][row.Concept] = row
	return nil
}

// List implements core.MasteryStore: ascending by score, concept name as the
// deterministic tiebreaker.
func (s *InMemoryStore) List(ctx context.Context, studentID string) ([]core.ConceptMastery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]core.ConceptMastery, 0, len(s.rows[studentID]))
	for _, row := range s.rows[studentID] {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score < rows[j].Score
		}
		return rows[i].Concept < rows[j].Concept
	})
	return rows, nil
}
