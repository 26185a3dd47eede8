package core

import (
	"time"

	"github.com/google/uuid"
)

// Turn captures a single student input entering the pipeline. A Turn is
// immutable once created; every downstream stage reads it and records its
// results on the owning PipelineState instead.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	StudentID string    `json:"student_id"`
	CourseID  string    `json:"course_id"`
	Input     string    `json:"input"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn creates a Turn with a generated ID and a UTC timestamp.
func NewTurn(sessionID, studentID, courseID, input string) Turn {
	return Turn{
		ID:        NewID(),
		SessionID: sessionID,
		StudentID: studentID,
		CourseID:  courseID,
		Input:     input,
		Timestamp: time.Now().UTC(),
	}
}

// NewID generates a new unique identifier for turns and events.
func NewID() string { return uuid.NewString() }

// Intent is the closed classification set produced by the model router.
type Intent string

const (
	// IntentCode covers programming and implementation questions.
	IntentCode Intent = "code"
	// IntentMath covers mathematical and conceptual reasoning questions.
	IntentMath Intent = "math"
	// IntentLogistics covers course-administration questions (deadlines,
	// grading policy, schedules).
	IntentLogistics Intent = "logistics"
	// IntentDefault is the fallback when no rule matches.
	IntentDefault Intent = "default"
)

// PolicyLaw identifies which tutoring law a rejection (or annotation) came from.
type PolicyLaw string

const (
	// LawNone means no law was violated.
	LawNone PolicyLaw = "none"
	// LawScope rejects questions outside the current course.
	LawScope PolicyLaw = "scope"
	// LawIntegrity rejects requests for complete graded solutions.
	LawIntegrity PolicyLaw = "integrity"
	// LawMastery is a soft law: it annotates eligibility, it never rejects.
	LawMastery PolicyLaw = "mastery"
)

// PolicyDecision is the transient outcome of the policy gate, embedded in
// PipelineState for the lifetime of one turn.
type PolicyDecision struct {
	Approved    bool      `json:"approved"`
	ViolatedLaw PolicyLaw `json:"violated_law"`
	// Reason is the only policy text ever shown to the student.
	Reason string `json:"reason,omitempty"`
	// MasteryNote carries the soft mastery annotation consumed by the
	// composer prompt (e.g. "student is weak on recursion").
	MasteryNote string `json:"mastery_note,omitempty"`
}

// Route is the deterministic model selection produced by the router.
type Route struct {
	Intent    Intent `json:"intent"`
	Model     string `json:"model"`
	Rationale string `json:"rationale"`
}

// ContextItem is one ranked passage in the context bundle backing a response.
type ContextItem struct {
	SourceRef string  `json:"source_ref"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

// ContextBundle is the merged, deduplicated, ranked retrieval result.
// Truncated reports that the configured cap cut the merged list.
type ContextBundle struct {
	Items     []ContextItem `json:"items"`
	Truncated bool          `json:"truncated"`
}

// Citation links a marker in generated text to a context bundle source.
type Citation struct {
	Marker    int    `json:"marker"`
	SourceRef string `json:"source_ref"`
}

// Evaluation is the advisory confidence signal produced by the outcome
// evaluator. It is never a provably correct grade.
type Evaluation struct {
	Confidence float64 `json:"confidence"`
	Passed     bool    `json:"passed"`
	Feedback   string  `json:"feedback,omitempty"`
	Concept    string  `json:"concept,omitempty"`
}

// MasteryDelta reports the mastery change applied for one completed turn.
type MasteryDelta struct {
	Concept          string  `json:"concept"`
	Previous         float64 `json:"previous"`
	Current          float64 `json:"current"`
	FirstObservation bool    `json:"first_observation"`
}
