package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore() *InMemoryStore {
	s := NewInMemoryStore()
	s.Add("cs101", "cs101/pointers", "Pointers hold the memory address of another variable. Dereferencing follows the address.")
	s.Add("cs101", "cs101/arrays", "Arrays are contiguous memory blocks indexed from zero.")
	s.Add("cs101", "cs101/syllabus", "Syllabus: weekly schedule, grading policy and assignment deadlines.")
	s.Add("bio200", "bio200/cells", "Cells are the basic structural unit of living organisms.")
	return s
}

func TestInMemoryStore_QueryRanksByOverlap(t *testing.T) {
	s := seededStore()

	results, err := s.Query(context.Background(), "how do pointers and memory address work", "cs101", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "cs101/pointers", results[0].SourceRef)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
}

func TestInMemoryStore_QueryIsCourseScoped(t *testing.T) {
	s := seededStore()

	results, err := s.Query(context.Background(), "cells living organisms", "cs101", 5)
	require.NoError(t, err)
	for _, p := range results {
		assert.NotEqual(t, "bio200/cells", p.SourceRef)
	}
}

func TestInMemoryStore_QueryHonorsTopK(t *testing.T) {
	s := seededStore()

	results, err := s.Query(context.Background(), "memory", "cs101", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestInMemoryStore_EmptyResultIsNotAnError(t *testing.T) {
	s := seededStore()

	results, err := s.Query(context.Background(), "quantum chromodynamics", "cs101", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInMemoryStore_RequiresCourseID(t *testing.T) {
	s := seededStore()

	_, err := s.Query(context.Background(), "pointers", "", 5)
	assert.Error(t, err)
}

func TestInMemoryStore_CancelledContext(t *testing.T) {
	s := seededStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Query(ctx, "pointers", "cs101", 5)
	assert.ErrorIs(t, err, context.Canceled)
}
