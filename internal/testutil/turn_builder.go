package testutil

import (
	"fmt"

	"github.com/tutorflow/tutorflow/core"
)

// TurnBuilder is a fluent helper for constructing turns in tests.
// Example:
//
//	turn := NewTurnBuilder().Student("stu-1").Course("cs101").Input("how does recursion work").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type TurnBuilder struct {
	id        string
	sessionID string
	studentID string
	courseID  string
	input     string
}

// NewTurnBuilder creates a builder with default session, student and course.
func NewTurnBuilder() *TurnBuilder {
	return &TurnBuilder{sessionID: "sess-test", studentID: "stu-test", courseID: "course-test"}
}

// ID overrides the auto-generated turn ID (chainable). Use mainly where
// determinism matters.
func (b *TurnBuilder) ID(id string) *TurnBuilder { b.id = id; return b }

// Session sets the session ID (chainable).
func (b *TurnBuilder) Session(id string) *TurnBuilder { b.sessionID = id; return b }

// Student sets the student ID (chainable).
func (b *TurnBuilder) Student(id string) *TurnBuilder { b.studentID = id; return b }

// Course sets the course ID (chainable).
func (b *TurnBuilder) Course(id string) *TurnBuilder { b.courseID = id; return b }

// Input sets the student's question text (chainable).
func (b *TurnBuilder) Input(text string) *TurnBuilder { b.input = text; return b }

// Build materializes the turn.
func (b *TurnBuilder) Build() core.Turn {
	turn := core.NewTurn(b.sessionID, b.studentID, b.courseID, b.input)
	if b.id != "" {
		turn.ID = b.id
	}
	return turn
}

// BundleBuilder assembles context bundles for composer and citation tests.
type BundleBuilder struct {
	items     []core.ContextItem
	truncated bool
}

// NewBundleBuilder creates an empty bundle builder.
func NewBundleBuilder() *BundleBuilder { return &BundleBuilder{} }

// Item appends a context item; the source ref is generated from its position
// when empty (chainable).
func (b *BundleBuilder) Item(sourceRef, text string, score float64) *BundleBuilder {
	if sourceRef == "" {
		sourceRef = fmt.Sprintf("test/doc_%d", len(b.items)+1)
	}
	b.items = append(b.items, core.ContextItem{SourceRef: sourceRef, Text: text, Score: score})
	return b
}

// Truncated marks the bundle as cut to the retrieval cap (chainable).
func (b *BundleBuilder) Truncated() *BundleBuilder { b.truncated = true; return b }

// Build materializes the bundle.
func (b *BundleBuilder) Build() core.ContextBundle {
	return core.ContextBundle{Items: b.items, Truncated: b.truncated}
}
