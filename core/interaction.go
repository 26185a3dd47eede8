package core

import (
	"context"
	"time"
)

// InteractionLogEntry records the terminal disposition of one turn. Entries
// are append-only and written exactly once per terminal turn; replaying an
// already-logged turn ID must be a no-op (ErrDuplicateTurn).
type InteractionLogEntry struct {
	TurnID       string    `json:"turn_id"`
	StudentID    string    `json:"student_id"`
	Type         Intent    `json:"type"`
	ConceptFocus string    `json:"concept_focus,omitempty"`
	Outcome      Outcome   `json:"outcome"`
	Timestamp    time.Time `json:"timestamp"`
}

// InteractionLog is the append-only record of terminal turns. It doubles as
// the idempotency authority for mastery updates: a turn whose ID is already
// present must not produce a second mastery write.
type InteractionLog interface {
	// Append writes the entry, or returns ErrDuplicateTurn if entry.TurnID
	// was already logged.
	Append(ctx context.Context, entry InteractionLogEntry) error

	// Seen reports whether a turn ID has already been logged.
	Seen(ctx context.Context, turnID string) (bool, error)
}
