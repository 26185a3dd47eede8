package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorflow/tutorflow/compose"
	"github.com/tutorflow/tutorflow/config"
	"github.com/tutorflow/tutorflow/core"
	"github.com/tutorflow/tutorflow/evaluate"
	"github.com/tutorflow/tutorflow/interaction"
	"github.com/tutorflow/tutorflow/knowledge"
	"github.com/tutorflow/tutorflow/mastery"
	"github.com/tutorflow/tutorflow/model"
	"github.com/tutorflow/tutorflow/policy"
	"github.com/tutorflow/tutorflow/retrieval"
	"github.com/tutorflow/tutorflow/router"
)

// flakyStore fails the first n queries, then delegates.
type flakyStore struct {
	inner    core.KnowledgeStore
	failures int
}

func (s *flakyStore) Query(ctx context.Context, text, courseID string, topK int) ([]core.Passage, error) {
	if s.failures > 0 {
		s.failures--
		return nil, context.DeadlineExceeded
	}
	return s.inner.Query(ctx, text, courseID, topK)
}

type testEnv struct {
	orch         *Orchestrator
	mock         *model.MockModel
	masteryStore *mastery.InMemoryStore
	log          *interaction.InMemoryLog
}

func seededKnowledge() *knowledge.InMemoryStore {
	ks := knowledge.NewInMemoryStore()
	ks.Add("cs101", "cs101/recursion", "Recursion solves a problem by reducing it to smaller instances of itself until a base case stops the calls.")
	ks.Add("cs101", "cs101/pointers", "Pointers hold the memory address of another variable.")
	return ks
}

func newTestEnv(t *testing.T, store core.KnowledgeStore) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.RetryBackoffBase = 2 * time.Millisecond
	cfg.Pipeline.RetryBackoffCap = 5 * time.Millisecond

	registry := model.NewRegistry()
	mock := model.NewMockModel("mock")
	for _, name := range []string{"code", "reasoning", "logistics", "general"} {
		registry.Register(name, mock)
	}

	masteryStore := mastery.NewInMemoryStore()
	tracker := mastery.NewTracker(cfg.Mastery, masteryStore)
	log := interaction.NewInMemoryLog()

	orch := New(Options{
		Config:    cfg.Pipeline,
		Gate:      policy.NewGate(cfg.Policy, store, tracker, nil),
		Router:    router.New(cfg.Router),
		Retriever: retrieval.New(cfg.Retrieval, store),
		Composer:  compose.New(cfg.Compose, registry),
		Evaluator: evaluate.New(cfg.Evaluate),
		Tracker:   tracker,
		Log:       log,
	})
	return &testEnv{orch: orch, mock: mock, masteryStore: masteryStore, log: log}
}

func TestOrchestrator_CompletedTurn(t *testing.T) {
	env := newTestEnv(t, seededKnowledge())
	turn := core.NewTurn("sess", "stu-1", "cs101", "how does recursion reach its base case")
	env.mock.AddResponse(turn.Input,
		"Recursion shrinks the input on every call until the base case answers directly [1]. For example, factorial(0) returns 1.")

	terminal, fragments, err := env.orch.SubmitSync(context.Background(), turn)
	require.NoError(t, err)

	assert.Equal(t, core.TurnEventCompleted, terminal.Type)
	assert.NotEmpty(t, fragments, "streaming turns deliver fragments before the terminal event")
	require.NotNil(t, terminal.Evaluation)
	assert.Equal(t, "recursion", terminal.Evaluation.Concept)
	require.NotNil(t, terminal.Mastery, "a scored turn blends into mastery")
	assert.True(t, terminal.Mastery.FirstObservation)
	require.Len(t, terminal.Citations, 1)

	entries := env.log.Entries()
	require.Len(t, entries, 1, "exactly one log entry per terminal turn")
	assert.Equal(t, turn.ID, entries[0].TurnID)
	assert.Equal(t, core.OutcomeCompleted, entries[0].Outcome)
	assert.Equal(t, "recursion", entries[0].ConceptFocus)

	rec, ok := env.orch.Registry().Get(turn.ID)
	require.True(t, ok)
	assert.Equal(t, core.OutcomeCompleted, rec.Outcome)
}

func TestOrchestrator_IntegrityRejectionShortCircuits(t *testing.T) {
	env := newTestEnv(t, seededKnowledge())
	turn := core.NewTurn("sess", "stu-1", "cs101", "just give me the answer to the recursion homework")

	terminal, fragments, err := env.orch.SubmitSync(context.Background(), turn)
	require.NoError(t, err)

	assert.Equal(t, core.TurnEventRejected, terminal.Type)
	assert.Empty(t, fragments, "rejected turns never reach the model")
	assert.Contains(t, terminal.Text, "complete solutions")

	rows, err := env.masteryStore.List(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Empty(t, rows, "rejections never touch mastery")

	entries := env.log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, core.OutcomeRejected, entries[0].Outcome)
}

func TestOrchestrator_OutOfScopeRejection(t *testing.T) {
	env := newTestEnv(t, seededKnowledge())
	turn := core.NewTurn("sess", "stu-1", "cs101", "boiling temperature mercury chemistry")

	terminal, _, err := env.orch.SubmitSync(context.Background(), turn)
	require.NoError(t, err)
	assert.Equal(t, core.TurnEventRejected, terminal.Type)
	assert.Contains(t, terminal.Text, "scope")
}

func TestOrchestrator_ComposeRetriesOnceThenSucceeds(t *testing.T) {
	env := newTestEnv(t, seededKnowledge())
	turn := core.NewTurn("sess", "stu-1", "cs101", "how does recursion reach its base case")
	env.mock.AddResponse(turn.Input, "Recursion narrows toward the base case.")
	env.mock.FailNext(1)

	terminal, _, err := env.orch.SubmitSync(context.Background(), turn)
	require.NoError(t, err)
	assert.Equal(t, core.TurnEventCompleted, terminal.Type)
}

func TestOrchestrator_ComposeFailureAfterRetryFailsTurn(t *testing.T) {
	env := newTestEnv(t, seededKnowledge())
	turn := core.NewTurn("sess", "stu-1", "cs101", "how does recursion reach its base case")
	env.mock.FailNext(2)

	terminal, _, err := env.orch.SubmitSync(context.Background(), turn)
	require.NoError(t, err)

	assert.Equal(t, core.TurnEventFailed, terminal.Type)
	assert.Equal(t, core.GenericRetryMessage, terminal.ErrorMessage,
		"internal error text never reaches the student")

	rows, err := env.masteryStore.List(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Empty(t, rows, "failed turns record no mastery")

	entries := env.log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, core.OutcomeFailed, entries[0].Outcome)
}

func TestOrchestrator_ScopeQueryRetryRecovers(t *testing.T) {
	env := newTestEnv(t, &flakyStore{inner: seededKnowledge(), failures: 1})
	turn := core.NewTurn("sess", "stu-1", "cs101", "how does recursion reach its base case")
	env.mock.AddResponse(turn.Input, "Recursion narrows toward the base case.")

	terminal, _, err := env.orch.SubmitSync(context.Background(), turn)
	require.NoError(t, err)
	assert.Equal(t, core.TurnEventCompleted, terminal.Type)
}

func TestOrchestrator_CancelMidStream(t *testing.T) {
	env := newTestEnv(t, seededKnowledge())
	turn := core.NewTurn("sess", "stu-1", "cs101", "how does recursion reach its base case")
	env.mock.AddResponse(turn.Input, strings.Repeat("Recursion recursion recursion. ", 40))

	events, err := env.orch.Submit(context.Background(), turn)
	require.NoError(t, err)

	var terminal core.TurnEvent
	sawFragment := false
	for ev := range events {
		if !ev.IsTerminal() {
			if !sawFragment {
				sawFragment = true
				require.NoError(t, env.orch.Cancel(turn.ID))
			}
			continue
		}
		terminal = ev
	}

	require.True(t, sawFragment)
	assert.Equal(t, core.TurnEventCancelled, terminal.Type)

	rows, err := env.masteryStore.List(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Empty(t, rows, "cancelled turns never blend into mastery")

	entries := env.log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, core.OutcomeCancelled, entries[0].Outcome)
}

func TestOrchestrator_DuplicateTurnIDSkipsSecondMasteryBlend(t *testing.T) {
	env := newTestEnv(t, seededKnowledge())
	turn := core.NewTurn("sess", "stu-1", "cs101", "how does recursion reach its base case")
	env.mock.AddResponse(turn.Input, "Recursion narrows toward the base case until it answers.")

	first, _, err := env.orch.SubmitSync(context.Background(), turn)
	require.NoError(t, err)
	require.Equal(t, core.TurnEventCompleted, first.Type)
	require.NotNil(t, first.Mastery)

	// A redelivered turn with the same ID completes again but must not
	// re-blend the observation or duplicate the log entry.
	second, _, err := env.orch.SubmitSync(context.Background(), turn)
	require.NoError(t, err)
	assert.Equal(t, core.TurnEventCompleted, second.Type)
	assert.Nil(t, second.Mastery)

	rows, err := env.masteryStore.List(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, first.Mastery.Current, rows[0].Score, 1e-9)

	assert.Len(t, env.log.Entries(), 1)
}

func TestOrchestrator_CancelUnknownTurn(t *testing.T) {
	env := newTestEnv(t, seededKnowledge())
	assert.Error(t, env.orch.Cancel("not-running"))
}
