package evaluate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorflow/tutorflow/config"
	"github.com/tutorflow/tutorflow/core"
)

func newEvaluator() *Evaluator {
	return New(config.Default().Evaluate)
}

func TestEvaluator_EmptyDraftIsEvaluationError(t *testing.T) {
	_, err := newEvaluator().Evaluate(core.NewTurn("s", "stu", "c", "q"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEvaluation)
}

func TestEvaluator_StructuredOnTopicAnswerScoresHigh(t *testing.T) {
	turn := core.NewTurn("s", "stu", "c", "how does recursion use a base case")
	draft := strings.Repeat("Recursion reduces the problem until the base case stops it. ", 6) +
		"\n- a recursion call shrinks the input\n- the base case returns directly\n" +
		"For example, factorial(0) returns 1 [1]."

	eval, err := newEvaluator().Evaluate(turn, draft)
	require.NoError(t, err)
	assert.Greater(t, eval.Confidence, 0.7)
	assert.True(t, eval.Passed)
	assert.Equal(t, "recursion", eval.Concept)
}

func TestEvaluator_ThinAnswerScoresLow(t *testing.T) {
	turn := core.NewTurn("s", "stu", "c", "how does recursion use a base case")

	eval, err := newEvaluator().Evaluate(turn, "It just calls itself.")
	require.NoError(t, err)
	assert.Less(t, eval.Confidence, 0.5)
	assert.False(t, eval.Passed)
	assert.Contains(t, eval.Feedback, "weak signals")
}

func TestEvaluator_ConfidenceStaysInRange(t *testing.T) {
	turn := core.NewTurn("s", "stu", "c", "explain pointers memory addresses dereferencing")
	huge := strings.Repeat("pointers memory addresses dereferencing ", 100) +
		"\n- bullet\n1. step\n[1] <code>x</code> for example e.g."

	eval, err := newEvaluator().Evaluate(turn, huge)
	require.NoError(t, err)
	assert.LessOrEqual(t, eval.Confidence, 1.0)
	assert.GreaterOrEqual(t, eval.Confidence, 0.0)
}

func TestEvaluator_ConceptIsLongestSubstantiveTerm(t *testing.T) {
	turn := core.NewTurn("s", "stu", "c", "can you explain backpropagation to me")

	eval, err := newEvaluator().Evaluate(turn, "Backpropagation pushes gradients backwards through the network.")
	require.NoError(t, err)
	assert.Equal(t, "backpropagation", eval.Concept)
}

func TestEvaluator_ConservativeDefault(t *testing.T) {
	e := newEvaluator()
	turn := core.NewTurn("s", "stu", "c", "how does recursion work")

	eval := e.ConservativeDefault(turn)
	assert.Zero(t, eval.Confidence)
	assert.False(t, eval.Passed)
	assert.Equal(t, "recursion", eval.Concept, "concept detection still runs so mastery stays addressable")
}

func TestEvaluator_NoSubstantiveTermsNoConcept(t *testing.T) {
	e := newEvaluator()
	turn := core.NewTurn("s", "stu", "c", "why is it so")

	eval := e.ConservativeDefault(turn)
	assert.Empty(t, eval.Concept)
}
