package core

import (
	"context"
	"time"
)

// ConceptMastery is one decayed confidence row per (student, concept).
// Score is always clamped to [0,1]; DecayFactor is validated strictly within
// (0,1) on write. Rows are mutated only by the mastery tracker, and decay is
// applied only when a new observation arrives, never on a background timer.
type ConceptMastery struct {
	StudentID      string    `json:"student_id"`
	Concept        string    `json:"concept"`
	Score          float64   `json:"score"`
	DecayFactor    float64   `json:"decay_factor"`
	LastAssessedAt time.Time `json:"last_assessed_at"`
}

// MasteryStore persists ConceptMastery rows. Per-row atomicity is required;
// no multi-row transactions are assumed. Writes for one student are
// serialized by the session-level ordering guarantee, not by the store.
type MasteryStore interface {
	// Get returns the row for (studentID, concept) or ErrMasteryNotFound.
	Get(ctx context.Context, studentID, concept string) (ConceptMastery, error)

	// Put inserts or replaces the row for (row.StudentID, row.Concept).
	Put(ctx context.Context, row ConceptMastery) error

	// List returns all rows for a student ascending by score (weakest first).
	List(ctx context.Context, studentID string) ([]ConceptMastery, error)
}
