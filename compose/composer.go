// Package compose turns a routed, context-backed turn into a streamed answer.
// The composer builds the generation request (standing tutoring directive,
// citation-tagged context, student input), forwards model output incrementally
// and post-processes the final text: citation markers are resolved against the
// context bundle (unresolvable markers are dropped, never fabricated) and
// malformed structured sub-blocks are stripped.
package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tutorflow/tutorflow/config"
	"github.com/tutorflow/tutorflow/core"
	"github.com/tutorflow/tutorflow/model"
)

// directive is the standing policy instruction embedded in every prompt.
const directive = `You are a university course tutor. Guide the student toward understanding.
Never provide complete solutions to graded work; explain concepts, give hints
and small illustrative examples instead. Cite supporting passages with [n]
markers referring to the numbered context below. You may structure parts of
your answer in <reasoning>, <quiz> or <code> blocks when it helps.`

// EmitFunc receives incremental text fragments as the model produces them.
// Returning an error aborts consumption (used on caller disconnect).
type EmitFunc func(text string) error

// Composer drives the routed model and finalizes its output.
type Composer struct {
	cfg      config.ComposeConfig
	registry *model.Registry
}

// New creates a composer resolving endpoints from the registry.
func New(cfg config.ComposeConfig, registry *model.Registry) *Composer {
	return &Composer{cfg: cfg, registry: registry}
}

// Compose streams the routed model's answer via emit and returns the
// finalized text with its resolved citations. Model errors and timeouts are
// wrapped as core.ErrComposition; caller cancellation is returned as the
// context error so the orchestrator can tell Cancelled from Failed.
func (c *Composer) Compose(
	ctx context.Context,
	turn core.Turn,
	route core.Route,
	decision core.PolicyDecision,
	bundle core.ContextBundle,
	emit EmitFunc,
) (string, []core.Citation, error) {
	m, err := c.registry.Resolve(route.Model)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", core.ErrComposition, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req := model.Request{
		System: BuildSystemPrompt(decision, bundle),
		Input:  turn.Input,
		Stream: true,
	}

	var full strings.Builder
	respCh, errCh := m.Generate(ctx, req)

	// Drain both channels to the end: a pending error must win over a
	// closed response stream, whichever the select sees first.
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return "", nil, classifyCtxErr(ctx.Err())
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return "", nil, classifyCtxErr(err)
				}
				return "", nil, fmt.Errorf("%w: %v", core.ErrComposition, err)
			}
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				full.WriteString(resp.Text)
				if err := emit(resp.Text); err != nil {
					return "", nil, err
				}
				continue
			}
			// Final chunk carries the authoritative accumulated text.
			if resp.Text != "" {
				full.Reset()
				full.WriteString(resp.Text)
			}
		}
	}
	return Finalize(full.String(), bundle)
}

// classifyCtxErr maps deadline expiry to a composition failure (retriable
// once, then Failed) and passes caller cancellation through untouched.
func classifyCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: generation timed out", core.ErrComposition)
	}
	return err
}

// BuildSystemPrompt assembles the standing directive, the soft mastery note
// and the numbered context items.
func BuildSystemPrompt(decision core.PolicyDecision, bundle core.ContextBundle) string {
	var b strings.Builder
	b.WriteString(directive)
	if decision.MasteryNote != "" {
		b.WriteString("\n\n")
		b.WriteString(decision.MasteryNote)
	}
	if len(bundle.Items) > 0 {
		b.WriteString("\n\nContext:\n")
		for i, item := range bundle.Items {
			fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, item.SourceRef, item.Text)
		}
	}
	return b.String()
}

// Finalize post-processes raw model output: malformed sub-blocks are stripped
// first, then citation markers are resolved against the bundle.
func Finalize(raw string, bundle core.ContextBundle) (string, []core.Citation, error) {
	text := StripMalformedBlocks(raw)
	text, citations := ResolveCitations(text, bundle)
	return text, citations, nil
}
