// Package router classifies a turn's intent and deterministically maps it to
// a configured generation endpoint. Classification is an ordered rule table
// (code > math > logistics > default, first match wins); routing is a pure
// function of the input text and configuration.
package router

import (
	"regexp"

	"github.com/tutorflow/tutorflow/config"
	"github.com/tutorflow/tutorflow/core"
)

// rule pairs a predicate with the intent it yields.
type rule struct {
	intent  core.Intent
	pattern *regexp.Regexp
}

// The table order is the precedence order. A question mentioning both code
// and a deadline routes to the code model.
var rules = []rule{
	{core.IntentCode, regexp.MustCompile(`(?i)\b(code|function|bug|debug|compile|syntax|implement|program|script|stack\s*trace|segfault|exception|api|library|class|method|loop|array|pointer)\b`)},
	{core.IntentMath, regexp.MustCompile(`(?i)\b(prove|proof|theorem|derivative|integral|matrix|equation|probability|gradient|calculus|algebra|derive|formula|converge|optimi[sz]e|backpropagation|algorithm|complexity)\b`)},
	{core.IntentLogistics, regexp.MustCompile(`(?i)\b(deadline|due\s+date|syllabus|exam\s+date|office\s+hours|grading|grade\s+policy|schedule|extension|late\s+polic|submission|enroll|registration)\b`)},
}

// Router selects generation endpoints by intent.
type Router struct {
	cfg config.RouterConfig
}

// New creates a router over the configured intent→model mapping.
func New(cfg config.RouterConfig) *Router {
	return &Router{cfg: cfg}
}

// ClassifyIntent runs the rule table over the input. Exposed separately so
// the retriever can branch on intent without re-deriving it.
func ClassifyIntent(input string) core.Intent {
	for _, r := range rules {
		if r.pattern.MatchString(input) {
			return r.intent
		}
	}
	return core.IntentDefault
}

// Route classifies the turn and maps its intent to a model identifier.
// Identical input text and configuration always yield the identical route.
func (r *Router) Route(turn core.Turn, decision core.PolicyDecision) core.Route {
	intent := ClassifyIntent(turn.Input)
	return core.Route{
		Intent:    intent,
		Model:     r.modelFor(intent),
		Rationale: rationale(intent),
	}
}

func (r *Router) modelFor(intent core.Intent) string {
	switch intent {
	case core.IntentCode:
		return r.cfg.CodeModel
	case core.IntentMath:
		return r.cfg.MathModel
	case core.IntentLogistics:
		return r.cfg.LogisticsModel
	default:
		return r.cfg.DefaultModel
	}
}

func rationale(intent core.Intent) string {
	switch intent {
	case core.IntentCode:
		return "programming terms matched the code rule"
	case core.IntentMath:
		return "mathematical terms matched the reasoning rule"
	case core.IntentLogistics:
		return "course-administration terms matched the logistics rule"
	default:
		return "no rule matched, using the default model"
	}
}
