package pipeline

import (
	"sync"
	"time"

	"github.com/tutorflow/tutorflow/core"
)

// TurnRecord is the bounded-lifetime tracking entry for one turn. It holds
// disposition only, never PipelineState: per-turn state dies with the turn.
type TurnRecord struct {
	TurnID     string
	SessionID  string
	StudentID  string
	Outcome    core.Outcome // empty while in flight
	StartedAt  time.Time
	FinishedAt time.Time
}

// TurnRegistry tracks in-flight and recently finished turns keyed by turn ID.
// Finished records expire after the configured TTL; expiry is enforced
// lazily on access rather than by a background timer, so an idle registry
// costs nothing.
type TurnRegistry struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]TurnRecord
}

// NewTurnRegistry creates a registry whose finished records live for ttl.
func NewTurnRegistry(ttl time.Duration) *TurnRegistry {
	return &TurnRegistry{ttl: ttl, records: make(map[string]TurnRecord)}
}

// Begin records a turn as in flight.
func (r *TurnRegistry) Begin(turn core.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeLocked(time.Now())
	r.records[turn.ID] = TurnRecord{
		TurnID:    turn.ID,
		SessionID: turn.SessionID,
		StudentID: turn.StudentID,
		StartedAt: time.Now().UTC(),
	}
}

// Finish stamps the terminal outcome, starting the record's TTL clock.
func (r *TurnRegistry) Finish(turnID string, outcome core.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[turnID]
	if !ok {
		return
	}
	rec.Outcome = outcome
	rec.FinishedAt = time.Now().UTC()
	r.records[turnID] = rec
}

// Get returns the record for a turn if it is in flight or not yet expired.
func (r *TurnRegistry) Get(turnID string) (TurnRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeLocked(time.Now())
	rec, ok := r.records[turnID]
	return rec, ok
}

// Len reports the current number of tracked records after purging.
func (r *TurnRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeLocked(time.Now())
	return len(r.records)
}

// purgeLocked drops finished records older than the TTL. Callers hold mu.
func (r *TurnRegistry) purgeLocked(now time.Time) {
	for id, rec := range r.records {
		if rec.Outcome != "" && now.Sub(rec.FinishedAt) > r.ttl {
			delete(r.records, id)
		}
	}
}
