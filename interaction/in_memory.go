// Package interaction persists the append-only record of terminal turns.
// The log doubles as the idempotency authority for mastery updates: a turn
// ID can be appended exactly once.
package interaction

import (
	"context"
	"sync"

	"github.com/tutorflow/tutorflow/core"
)

// InMemoryLog is a process-local InteractionLog for development and tests.
type InMemoryLog struct {
	mu      sync.RWMutex
	entries []core.InteractionLogEntry
	byTurn  map[string]bool
}

// NewInMemoryLog creates an empty in-memory log.
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{byTurn: make(map[string]bool)}
}

// Append implements core.InteractionLog.
func (l *InMemoryLog) Append(ctx context.Context, entry core.InteractionLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.byTurn[entry.TurnID] {
		return core.ErrDuplicateTurn
	}
	l.byTurn[entry.TurnID] = true
	l.entries = append(l.entries, entry)
	return nil
}

// Seen implements core.InteractionLog.
func (l *InMemoryLog) Seen(ctx context.Context, turnID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byTurn[turnID], nil
}

// Entries returns a defensive copy of the log, oldest first. Test helper.
func (l *InMemoryLog) Entries() []core.InteractionLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.InteractionLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
