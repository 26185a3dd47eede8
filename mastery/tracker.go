// Package mastery maintains the decayed per-student, per-concept confidence
// rows that carry learning state across sessions. The tracker owns all
// mutations; stores only persist rows.
package mastery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tutorflow/tutorflow/config"
	"github.com/tutorflow/tutorflow/core"
)

// Tracker applies observation blending with temporal decay. Observations for
// one student must arrive in submission order (the session-level serialization
// guarantee); the tracker does not compare-and-swap.
type Tracker struct {
	cfg   config.MasteryConfig
	store core.MasteryStore
}

// NewTracker creates a tracker over the given store.
func NewTracker(cfg config.MasteryConfig, store core.MasteryStore) *Tracker {
	return &Tracker{cfg: cfg, store: store}
}

// Update records one observation for (studentID, concept). The first
// observation becomes the score verbatim, with no decay applied; later
// observations blend as prior*d + confidence*(1-d), clamped to [0,1]. The
// decay factor is validated strictly within (0,1) on every write.
func (t *Tracker) Update(ctx context.Context, studentID, concept string, eval core.Evaluation) (core.MasteryDelta, error) {
	if concept == "" {
		return core.MasteryDelta{}, fmt.Errorf("%w: empty concept", core.ErrPersistence)
	}
	d := t.cfg.DecayFactor
	if d <= 0 || d >= 1 {
		return core.MasteryDelta{}, fmt.Errorf("%w: decay factor %v outside (0,1)", core.ErrPersistence, d)
	}
	confidence := clamp01(eval.Confidence)

	prior, err := t.store.Get(ctx, studentID, concept)
	switch {
	case errors.Is(err, core.ErrMasteryNotFound):
		row := core.ConceptMastery{
			StudentID:      studentID,
			Concept:        concept,
			Score:          confidence,
			DecayFactor:    d,
			LastAssessedAt: time.Now().UTC(),
		}
		if err := t.store.Put(ctx, row); err != nil {
			return core.MasteryDelta{}, fmt.Errorf("%w: %v", core.ErrPersistence, err)
		}
		return core.MasteryDelta{Concept: concept, Previous: 0, Current: row.Score, FirstObservation: true}, nil
	case err != nil:
		return core.MasteryDelta{}, fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}

	updated := prior
	updated.Score = clamp01(prior.Score*d + confidence*(1-d))
	updated.DecayFactor = d
	updated.LastAssessedAt = time.Now().UTC()
	if err := t.store.Put(ctx, updated); err != nil {
		return core.MasteryDelta{}, fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}
	return core.MasteryDelta{Concept: concept, Previous: prior.Score, Current: updated.Score}, nil
}

// List returns the student's rows ascending by score, weakest first.
func (t *Tracker) List(ctx context.Context, studentID string) ([]core.ConceptMastery, error) {
	return t.store.List(ctx, studentID)
}

// WeakTopics filters the student's rows strictly below threshold, preserving
// the weakest-first ordering.
func (t *Tracker) WeakTopics(ctx context.Context, studentID string, threshold float64) ([]core.ConceptMastery, error) {
	rows, err := t.store.List(ctx, studentID)
	if err != nil {
		return nil, err
	}
	var weak []core.ConceptMastery
	for _, row := range rows {
		if row.Score < threshold {
			weak = append(weak, row)
		}
	}
	return weak, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
