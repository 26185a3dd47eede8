// Package policy implements the gate every turn passes before any model
// call. Three laws apply in a fixed order: Integrity (hard, checked first so
// its verdict is independent of scope), Scope (hard, backed by a course-scoped
// knowledge-store probe), and Mastery (soft, annotation only).
package policy

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/tutorflow/tutorflow/config"
	"github.com/tutorflow/tutorflow/core"
	"github.com/tutorflow/tutorflow/logging"
)

// integrityPatterns classify "give me the complete graded solution" requests.
// Ordered, first match wins; extend here rather than scattering string checks.
var integrityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(give|send|show|write|provide)\s+(me\s+)?(the\s+)?(full|complete|entire|whole|working)\s+(code|solution|answer|essay|proof|implementation)\b`),
	regexp.MustCompile(`(?i)\b(full|complete|entire)\s+(code|solution|answer)\s+(for|to)\s+(the\s+)?(assignment|homework|hw|problem\s+set|pset|exam|quiz|lab|project)\b`),
	regexp.MustCompile(`(?i)\b(solve|do|finish|complete)\s+(my|the|this)\s+(assignment|homework|hw|problem\s+set|pset|exam|quiz|take[- ]home)\b`),
	regexp.MustCompile(`(?i)\bjust\s+(give|tell)\s+me\s+the\s+answer\b`),
	regexp.MustCompile(`(?i)\banswer\s+key\b`),
}

// MasteryReader is the slice of the mastery tracker the gate consults for the
// soft law.
type MasteryReader interface {
	WeakTopics(ctx context.Context, studentID string, threshold float64) ([]core.ConceptMastery, error)
}

// Gate evaluates the three tutoring laws for a turn.
type Gate struct {
	cfg       config.PolicyConfig
	knowledge core.KnowledgeStore
	mastery   MasteryReader
	logger    *logging.TurnLogger
}

// NewGate creates a policy gate. mastery may be nil, which disables the soft
// mastery annotation but never affects approval.
func NewGate(cfg config.PolicyConfig, knowledge core.KnowledgeStore, mastery MasteryReader, logger *logging.TurnLogger) *Gate {
	if logger == nil {
		logger = logging.NewTurnLogger(&logging.LoggerConfig{Level: logging.LogLevelError, Output: io.Discard, Component: "policy"})
	}
	return &Gate{cfg: cfg, knowledge: knowledge, mastery: mastery, logger: logger}
}

// Evaluate applies the laws in order and returns the decision. On a
// scope-query error the behavior follows cfg.FailOpen: fail-open approves the
// turn, fail-closed (the default) returns the error so the orchestrator
// surfaces a retriable failure instead of silently approving or rejecting.
func (g *Gate) Evaluate(ctx context.Context, turn core.Turn) (core.PolicyDecision, error) {
	start := time.Now()

	// Law 2 first: an integrity violation rejects regardless of scope.
	if matchesIntegrityPattern(turn.Input) {
		decision := core.PolicyDecision{
			Approved:    false,
			ViolatedLaw: core.LawIntegrity,
			Reason:      g.cfg.RedirectMessage,
		}
		g.logger.WithTurn(turn.SessionID, turn.ID).LogPolicyDecision(false, string(core.LawIntegrity), time.Since(start))
		return decision, nil
	}

	// Law 1: the question must relate to the current course.
	passages, err := g.knowledge.Query(ctx, turn.Input, turn.CourseID, 1)
	if err != nil {
		if g.cfg.FailOpen {
			g.logger.WithTurn(turn.SessionID, turn.ID).Warn("scope query failed, policy configured fail-open: %v", err)
			return g.approve(ctx, turn, start), nil
		}
		return core.PolicyDecision{}, fmt.Errorf("%w: scope query: %v", core.ErrRetrieval, err)
	}
	if len(passages) == 0 || passages[0].Score < g.cfg.ScopeThreshold {
		decision := core.PolicyDecision{
			Approved:    false,
			ViolatedLaw: core.LawScope,
			Reason:      "That question looks outside the scope of this course. Try asking about the current course material.",
		}
		g.logger.WithTurn(turn.SessionID, turn.ID).LogPolicyDecision(false, string(core.LawScope), time.Since(start))
		return decision, nil
	}

	return g.approve(ctx, turn, start), nil
}

// approve builds an approved decision carrying the soft mastery annotation.
// Law 3 never rejects; a failed mastery read only drops the annotation.
func (g *Gate) approve(ctx context.Context, turn core.Turn, start time.Time) core.PolicyDecision {
	decision := core.PolicyDecision{Approved: true, ViolatedLaw: core.LawNone}
	if g.mastery != nil {
		weak, err := g.mastery.WeakTopics(ctx, turn.StudentID, g.cfg.MasteryNoteThreshold)
		if err != nil {
			g.logger.WithTurn(turn.SessionID, turn.ID).Warn("mastery lookup failed, skipping annotation: %v", err)
		} else if len(weak) > 0 {
			decision.MasteryNote = masteryNote(weak)
		}
	}
	g.logger.WithTurn(turn.SessionID, turn.ID).LogPolicyDecision(true, string(core.LawNone), time.Since(start))
	return decision
}

func matchesIntegrityPattern(input string) bool {
	for _, re := range integrityPatterns {
		if re.MatchString(input) {
			return true
		}
	}
	return false
}

// masteryNote summarizes weak concepts for the composer prompt.
func masteryNote(weak []core.ConceptMastery) string {
	names := make([]string, 0, len(weak))
	for _, row := range weak {
		names = append(names, row.Concept)
	}
	return fmt.Sprintf("The student has shown low mastery of: %s. Favor foundational explanations over shortcuts.", strings.Join(names, ", "))
}
