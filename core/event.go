package core

import "time"

// TurnEventType discriminates the events streamed to a caller for one turn.
type TurnEventType string

const (
	// TurnEventFragment carries an incremental piece of the generated answer.
	TurnEventFragment TurnEventType = "fragment"
	// TurnEventCompleted is the terminal event of a fully scored turn.
	TurnEventCompleted TurnEventType = "completed"
	// TurnEventRejected is the terminal event of a policy-rejected turn.
	TurnEventRejected TurnEventType = "rejected"
	// TurnEventCancelled is the terminal event of a caller-cancelled turn.
	TurnEventCancelled TurnEventType = "cancelled"
	// TurnEventFailed is the terminal event of a turn that exhausted retries.
	TurnEventFailed TurnEventType = "failed"
)

// TurnEvent is the unit of the caller streaming contract: an ordered,
// non-reorderable sequence of fragment events followed by exactly one
// terminal event. After emission an event is immutable.
//
// Terminal events carry the citations, the evaluation summary and the mastery
// delta when the turn completed, the user-visible rejection reason when the
// policy gate rejected, or an opaque error message when the turn failed.
// Internal error text never crosses this boundary.
type TurnEvent struct {
	ID         string        `json:"id"`
	TurnID     string        `json:"turn_id"`
	SessionID  string        `json:"session_id"`
	Type       TurnEventType `json:"type"`
	Text       string        `json:"text,omitempty"`
	Citations  []Citation    `json:"citations,omitempty"`
	Evaluation *Evaluation   `json:"evaluation,omitempty"`
	Mastery    *MasteryDelta `json:"mastery,omitempty"`
	// ErrorMessage is an opaque, user-safe message on failed events.
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewFragmentEvent creates an incremental text event for a turn.
func NewFragmentEvent(turn Turn, text string) TurnEvent {
	return TurnEvent{
		ID:        NewID(),
		TurnID:    turn.ID,
		SessionID: turn.SessionID,
		Type:      TurnEventFragment,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

// NewCompletedEvent creates the terminal event for a scored turn. Text holds
// the finalized (post-processed) answer.
func NewCompletedEvent(state *PipelineState) TurnEvent {
	return TurnEvent{
		ID:         NewID(),
		TurnID:     state.Turn.ID,
		SessionID:  state.Turn.SessionID,
		Type:       TurnEventCompleted,
		Text:       state.Draft,
		Citations:  state.Citations,
		Evaluation: state.Evaluation,
		Mastery:    state.Mastery,
		Timestamp:  time.Now().UTC(),
	}
}

// NewRejectedEvent creates the terminal event for a policy-rejected turn.
// Reason is the user-visible rejection text.
func NewRejectedEvent(turn Turn, reason string) TurnEvent {
	return TurnEvent{
		ID:        NewID(),
		TurnID:    turn.ID,
		SessionID: turn.SessionID,
		Type:      TurnEventRejected,
		Text:      reason,
		Timestamp: time.Now().UTC(),
	}
}

// NewCancelledEvent creates the terminal event for a caller-cancelled turn.
func NewCancelledEvent(turn Turn) TurnEvent {
	return TurnEvent{
		ID:        NewID(),
		TurnID:    turn.ID,
		SessionID: turn.SessionID,
		Type:      TurnEventCancelled,
		Timestamp: time.Now().UTC(),
	}
}

// NewFailedEvent creates the terminal event for a failed turn. The message is
// the generic retry prompt, never internal error text.
func NewFailedEvent(turn Turn, message string) TurnEvent {
	return TurnEvent{
		ID:           NewID(),
		TurnID:       turn.ID,
		SessionID:    turn.SessionID,
		Type:         TurnEventFailed,
		ErrorMessage: message,
		Timestamp:    time.Now().UTC(),
	}
}

// IsTerminal reports whether the event closes the turn's stream.
func (e TurnEvent) IsTerminal() bool { return e.Type != TurnEventFragment }

// Outcome maps a terminal event type to the turn outcome it represents.
// Fragment events return the empty outcome.
func (e TurnEvent) Outcome() Outcome {
	switch e.Type {
	case TurnEventCompleted:
		return OutcomeCompleted
	case TurnEventRejected:
		return OutcomeRejected
	case TurnEventCancelled:
		return OutcomeCancelled
	case TurnEventFailed:
		return OutcomeFailed
	default:
		return ""
	}
}
