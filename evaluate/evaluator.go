// Package evaluate scores a finished exchange into an advisory confidence
// signal. Scoring is a pure function over named, independently weighted
// signals held in configuration; it never claims provably correct grading.
package evaluate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tutorflow/tutorflow/config"
	"github.com/tutorflow/tutorflow/core"
)

// Evaluator blends normalized [0,1] signals under configured weights.
type Evaluator struct {
	cfg config.EvaluateConfig
}

// New creates an evaluator with the given signal weights.
func New(cfg config.EvaluateConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate scores the draft for the turn. Errors are reported but callers
// must treat them as non-fatal: ConservativeDefault supplies the fallback.
func (e *Evaluator) Evaluate(turn core.Turn, draft string) (core.Evaluation, error) {
	if draft == "" {
		return core.Evaluation{}, fmt.Errorf("%w: empty draft", core.ErrEvaluation)
	}

	length := lengthSignal(draft, e.cfg.TargetLength)
	structure := structureSignal(draft)
	concept, detected := conceptSignal(turn.Input, draft)

	totalWeight := e.cfg.LengthWeight + e.cfg.StructureWeight + e.cfg.ConceptWeight
	confidence := (length*e.cfg.LengthWeight + structure*e.cfg.StructureWeight + concept*e.cfg.ConceptWeight) / totalWeight
	confidence = clamp01(confidence)

	return core.Evaluation{
		Confidence: confidence,
		Passed:     confidence >= e.cfg.PassThreshold,
		Feedback:   feedback(length, structure, concept),
		Concept:    detected,
	}, nil
}

// ConservativeDefault is the zero-confidence evaluation used when the
// evaluator itself fails; the turn proceeds with it rather than aborting.
func (e *Evaluator) ConservativeDefault(turn core.Turn) core.Evaluation {
	_, detected := conceptSignal(turn.Input, "")
	return core.Evaluation{
		Confidence: 0,
		Passed:     false,
		Feedback:   "evaluation unavailable, recorded conservatively",
		Concept:    detected,
	}
}

// lengthSignal saturates at the configured target length.
func lengthSignal(draft string, target int) float64 {
	return clamp01(float64(utf8.RuneCountInString(draft)) / float64(target))
}

var structureMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*[-*]\s`),           // bullet list
	regexp.MustCompile(`(?m)^\s*\d+[.)]\s`),        // numbered steps
	regexp.MustCompile(`\[(\d+)\]`),                // citation marker
	regexp.MustCompile(`<(reasoning|quiz|code)>`),  // structured block
	regexp.MustCompile(`(?i)\bfor example\b|\be\.g\.\b`), // worked example
}

// structureSignal counts distinct structural markers present in the draft.
func structureSignal(draft string) float64 {
	hits := 0
	for _, re := range structureMarkers {
		if re.MatchString(draft) {
			hits++
		}
	}
	return clamp01(float64(hits) / 3)
}

// stopwords excluded from concept detection.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "what": true, "how": true,
	"why": true, "does": true, "this": true, "that": true, "with": true,
	"about": true, "can": true, "you": true, "explain": true, "tell": true,
	"please": true, "help": true, "understand": true, "is": true, "are": true,
	"of": true, "in": true, "to": true, "a": true, "an": true, "me": true,
	"my": true, "do": true, "it": true, "work": true, "works": true,
}

// conceptSignal measures how much of the question's substantive vocabulary
// the draft covers, and names the dominant concept (the longest substantive
// input term, a cheap but deterministic focus heuristic).
func conceptSignal(input, draft string) (float64, string) {
	terms := substantiveTerms(input)
	if len(terms) == 0 {
		return 0, ""
	}

	concept := terms[0]
	for _, t := range terms {
		if len(t) > len(concept) {
			concept = t
		}
	}

	if draft == "" {
		return 0, concept
	}
	lower := strings.ToLower(draft)
	covered := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			covered++
		}
	}
	return clamp01(float64(covered) / float64(len(terms))), concept
}

func substantiveTerms(input string) []string {
	fields := strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	var terms []string
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

func feedback(length, structure, concept float64) string {
	var weak []string
	if length < 0.5 {
		weak = append(weak, "brevity")
	}
	if structure < 0.5 {
		weak = append(weak, "structure")
	}
	if concept < 0.5 {
		weak = append(weak, "concept coverage")
	}
	if len(weak) == 0 {
		return "response adequate across all signals"
	}
	return "weak signals: " + strings.Join(weak, ", ")
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
