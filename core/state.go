package core

import "fmt"

// Outcome is the terminal classification of a turn. Exactly one outcome is
// recorded per turn; the empty value means the turn is still in flight.
type Outcome string

const (
	// OutcomeCompleted means the full pipeline ran and a response was scored.
	OutcomeCompleted Outcome = "completed"
	// OutcomeRejected means the policy gate short-circuited the turn.
	OutcomeRejected Outcome = "rejected"
	// OutcomeCancelled means the caller disconnected mid-stream.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeFailed means a stage failed after its retry budget.
	OutcomeFailed Outcome = "failed"
)

// PipelineState is the execution record for exactly one turn. It is
// exclusively owned by the goroutine running that turn and is never shared or
// reused; cross-turn continuity lives only in mastery rows and the
// interaction log.
type PipelineState struct {
	Turn       Turn
	Policy     *PolicyDecision
	Route      *Route
	Context    *ContextBundle
	Draft      string
	Citations  []Citation
	Evaluation *Evaluation
	Mastery    *MasteryDelta

	terminal Outcome
}

// NewPipelineState creates the state record for one turn.
func NewPipelineState(turn Turn) *PipelineState {
	return &PipelineState{Turn: turn}
}

// MarkTerminal records the turn's terminal outcome. It may be called exactly
// once; a second call is a programming error and is reported so the
// orchestrator can refuse to write after termination.
func (s *PipelineState) MarkTerminal(o Outcome) error {
	if s.terminal != "" {
		return fmt.Errorf("turn %s already terminal (%s), cannot set %s", s.Turn.ID, s.terminal, o)
	}
	if o == "" {
		return fmt.Errorf("turn %s: empty outcome", s.Turn.ID)
	}
	s.terminal = o
	return nil
}

// Terminal returns the recorded outcome, or "" while the turn is in flight.
func (s *PipelineState) Terminal() Outcome { return s.terminal }

// IsTerminal reports whether a terminal outcome has been recorded.
func (s *PipelineState) IsTerminal() bool { return s.terminal != "" }
