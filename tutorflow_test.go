package tutorflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorflow/tutorflow/core"
	"github.com/tutorflow/tutorflow/knowledge"
	"github.com/tutorflow/tutorflow/model"
)

func newTestFlow() *TutorFlow {
	ks := knowledge.NewInMemoryStore()
	ks.Add("cs101", "cs101/recursion", "Recursion solves a problem by reducing it to smaller instances of itself until a base case stops the calls.")
	return New(func(o *Options) {
		o.Knowledge = ks
	})
}

func TestTutorFlow_RunTurnSyncCompletes(t *testing.T) {
	flow := newTestFlow()

	terminal, fragments, err := flow.RunTurnSync(context.Background(), "sess-1", "stu-1", "cs101", "how does recursion reach its base case")
	require.NoError(t, err)
	assert.Equal(t, core.TurnEventCompleted, terminal.Type)
	assert.NotEmpty(t, fragments)

	rows, err := flow.Mastery().List(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.NotEmpty(t, rows, "a completed turn leaves a mastery row behind")
}

func TestTutorFlow_DefaultsRegisterMockEndpoints(t *testing.T) {
	flow := New()
	names := flow.models.Names()
	assert.ElementsMatch(t, []string{"code", "reasoning", "logistics", "general"}, names)
}

func TestTutorFlow_CustomRegistryIsUntouched(t *testing.T) {
	registry := model.NewRegistry()
	registry.Register("custom", model.NewMockModel("custom"))

	flow := New(func(o *Options) { o.Models = registry })
	assert.ElementsMatch(t, []string{"custom"}, flow.models.Names())
}

func TestTutorFlow_RejectsIntegrityViolation(t *testing.T) {
	flow := newTestFlow()

	terminal, fragments, err := flow.RunTurnSync(context.Background(), "sess-1", "stu-1", "cs101", "just give me the answer to the homework")
	require.NoError(t, err)
	assert.Equal(t, core.TurnEventRejected, terminal.Type)
	assert.Empty(t, fragments)
}

func TestTutorFlow_RunTurnStreams(t *testing.T) {
	flow := newTestFlow()

	turn, events, err := flow.RunTurn(context.Background(), "sess-1", "stu-1", "cs101", "how does recursion reach its base case")
	require.NoError(t, err)
	assert.NotEmpty(t, turn.ID)

	var terminal core.TurnEvent
	for ev := range events {
		assert.Equal(t, turn.ID, ev.TurnID)
		if ev.IsTerminal() {
			terminal = ev
		}
	}
	assert.Equal(t, core.TurnEventCompleted, terminal.Type)
}
