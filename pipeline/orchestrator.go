// Package pipeline sequences one turn through the policy-gated decision
// pipeline: PolicyCheck → Routed → Retrieving → Composing → Evaluating →
// MasteryUpdate, with Rejected, Cancelled and Failed as the other terminal
// states. Each turn executes as an isolated unit of work owning its
// PipelineState; cross-turn continuity lives only in mastery rows and the
// interaction log, and Start is simply re-entered for the next turn of a
// session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tutorflow/tutorflow/compose"
	"github.com/tutorflow/tutorflow/config"
	"github.com/tutorflow/tutorflow/core"
	"github.com/tutorflow/tutorflow/evaluate"
	"github.com/tutorflow/tutorflow/logging"
	"github.com/tutorflow/tutorflow/mastery"
	"github.com/tutorflow/tutorflow/observability"
	"github.com/tutorflow/tutorflow/policy"
	"github.com/tutorflow/tutorflow/retrieval"
	"github.com/tutorflow/tutorflow/router"
)

// terminalSendTimeout bounds how long a finished turn waits for its caller
// to drain the terminal event.
const terminalSendTimeout = 30 * time.Second

// Options wires the pipeline stages and services into an orchestrator. Gate,
// Router, Retriever, Composer, Evaluator, Tracker and Log are required;
// Logger and Metrics may be nil.
type Options struct {
	Config    config.PipelineConfig
	Gate      *policy.Gate
	Router    *router.Router
	Retriever *retrieval.Retriever
	Composer  *compose.Composer
	Evaluator *evaluate.Evaluator
	Tracker   *mastery.Tracker
	Log       core.InteractionLog
	Logger    *logging.TurnLogger
	Metrics   *observability.Metrics
}

// Orchestrator runs turns through the state machine. Turns across sessions
// run independently under a fixed-size worker pool; turns within one session
// must be serialized by the caller so mastery blending applies observations
// in submission order.
type Orchestrator struct {
	cfg       config.PipelineConfig
	gate      *policy.Gate
	router    *router.Router
	retriever *retrieval.Retriever
	composer  *compose.Composer
	evaluator *evaluate.Evaluator
	tracker   *mastery.Tracker
	log       core.InteractionLog
	logger    *logging.TurnLogger
	metrics   *observability.Metrics
	registry  *TurnRegistry

	sem *semaphore.Weighted

	activeMu sync.Mutex
	active   map[string]context.CancelFunc
}

// New creates an orchestrator from wired options.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewTurnLogger(&logging.LoggerConfig{
			Level:     logging.LogLevelError,
			Output:    io.Discard,
			Component: "pipeline",
		})
	}
	return &Orchestrator{
		cfg:       opts.Config,
		gate:      opts.Gate,
		router:    opts.Router,
		retriever: opts.Retriever,
		composer:  opts.Composer,
		evaluator: opts.Evaluator,
		tracker:   opts.Tracker,
		log:       opts.Log,
		logger:    logger,
		metrics:   opts.Metrics,
		registry:  NewTurnRegistry(opts.Config.TurnRecordTTL),
		sem:       semaphore.NewWeighted(int64(opts.Config.MaxConcurrentTurns)),
		active:    make(map[string]context.CancelFunc),
	}
}

// Submit starts a turn and returns its ordered event stream: zero or more
// fragment events followed by exactly one terminal event, after which the
// channel closes. Submission blocks while the worker pool is saturated.
// Cancelling ctx after submission cancels the turn mid-stream.
func (o *Orchestrator) Submit(ctx context.Context, turn core.Turn) (<-chan core.TurnEvent, error) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire worker: %w", err)
	}

	events := make(chan core.TurnEvent, o.cfg.EventBufferSize)
	turnCtx, cancel := context.WithCancel(ctx)

	o.activeMu.Lock()
	o.active[turn.ID] = cancel
	o.activeMu.Unlock()

	go func() {
		defer func() {
			o.sem.Release(1)
			close(events)
			o.activeMu.Lock()
			delete(o.active, turn.ID)
			o.activeMu.Unlock()
			cancel()
		}()
		o.run(turnCtx, turn, events)
	}()

	return events, nil
}

// SubmitSync executes a turn to completion, collecting fragments, and
// returns the terminal event.
func (o *Orchestrator) SubmitSync(ctx context.Context, turn core.Turn) (core.TurnEvent, []core.TurnEvent, error) {
	events, err := o.Submit(ctx, turn)
	if err != nil {
		return core.TurnEvent{}, nil, err
	}
	var fragments []core.TurnEvent
	var terminal core.TurnEvent
	for ev := range events {
		if ev.IsTerminal() {
			terminal = ev
			continue
		}
		fragments = append(fragments, ev)
	}
	if terminal.Type == "" {
		return core.TurnEvent{}, fragments, ctx.Err()
	}
	return terminal, fragments, nil
}

// Cancel halts a specific in-flight turn by ID.
func (o *Orchestrator) Cancel(turnID string) error {
	o.activeMu.Lock()
	cancel, ok := o.active[turnID]
	o.activeMu.Unlock()
	if !ok {
		return fmt.Errorf("turn %s not active", turnID)
	}
	cancel()
	return nil
}

// Registry exposes the bounded turn-record store (for status endpoints).
func (o *Orchestrator) Registry() *TurnRegistry { return o.registry }

// run drives one turn through the state machine. It always records exactly
// one terminal outcome and one interaction log entry.
func (o *Orchestrator) run(ctx context.Context, turn core.Turn, events chan<- core.TurnEvent) {
	start := time.Now()
	log := o.logger.WithTurn(turn.SessionID, turn.ID)
	state := core.NewPipelineState(turn)

	o.metrics.TurnStarted()
	o.registry.Begin(turn)
	defer func() {
		o.registry.Finish(turn.ID, state.Terminal())
		o.metrics.TurnFinished(string(state.Terminal()))
		log.LogTurn(string(state.Terminal()), time.Since(start))
	}()

	// PolicyCheck. A scope-query error is retriable once like any other
	// knowledge-store failure.
	decision, err := o.policyCheck(ctx, turn)
	if err != nil {
		o.terminate(ctx, state, events, err, log)
		return
	}
	state.Policy = &decision
	if !decision.Approved {
		// Rejected short-circuits: no model call, no retrieval, no
		// mastery write.
		o.metrics.RejectedByLaw(string(decision.ViolatedLaw))
		o.finish(ctx, state, events, core.NewRejectedEvent(turn, decision.Reason), core.OutcomeRejected, log)
		return
	}

	// Routed.
	route := o.router.Route(turn, decision)
	state.Route = &route

	// Retrieving.
	bundle, err := o.retrieve(ctx, turn, route, log)
	if err != nil {
		o.terminate(ctx, state, events, err, log)
		return
	}
	state.Context = &bundle

	// Composing.
	draft, citations, err := o.composeStage(ctx, state, events, log)
	if err != nil {
		o.terminate(ctx, state, events, err, log)
		return
	}
	state.Draft = draft
	state.Citations = citations

	// Evaluating. Evaluator errors never abort the turn; the conservative
	// default continues to the mastery update.
	evalStart := time.Now()
	eval, err := o.evaluator.Evaluate(turn, draft)
	if err != nil {
		log.Warn("evaluation failed, recording conservative default: %v", err)
		eval = o.evaluator.ConservativeDefault(turn)
	}
	o.metrics.ObserveStage("evaluate", time.Since(evalStart))
	state.Evaluation = &eval

	// MasteryUpdate. Idempotent on turn ID: a turn already logged as
	// terminal never produces a second blending.
	o.masteryStage(ctx, state, eval, log)

	o.finish(ctx, state, events, core.NewCompletedEvent(state), core.OutcomeCompleted, log)
}

// policyCheck evaluates the gate, retrying once with backoff when the scope
// query itself failed.
func (o *Orchestrator) policyCheck(ctx context.Context, turn core.Turn) (core.PolicyDecision, error) {
	stageStart := time.Now()
	defer func() { o.metrics.ObserveStage("policy", time.Since(stageStart)) }()

	decision, err := o.gate.Evaluate(ctx, turn)
	if err != nil && errors.Is(err, core.ErrRetrieval) && ctx.Err() == nil {
		o.metrics.StageRetried("policy")
		if !sleep(ctx, backoff(0, o.cfg.RetryBackoffBase, o.cfg.RetryBackoffCap)) {
			return core.PolicyDecision{}, ctx.Err()
		}
		decision, err = o.gate.Evaluate(ctx, turn)
	}
	return decision, err
}

// retrieve runs the context retriever with a single retry. Empty bundles are
// valid and never retried; only transport failures are.
func (o *Orchestrator) retrieve(ctx context.Context, turn core.Turn, route core.Route, log *logging.TurnLogger) (core.ContextBundle, error) {
	stageStart := time.Now()
	defer func() { o.metrics.ObserveStage("retrieval", time.Since(stageStart)) }()

	bundle, err := o.retriever.Retrieve(ctx, turn, route)
	if err != nil && errors.Is(err, core.ErrRetrieval) && ctx.Err() == nil {
		o.metrics.StageRetried("retrieval")
		if !sleep(ctx, backoff(0, o.cfg.RetryBackoffBase, o.cfg.RetryBackoffCap)) {
			return core.ContextBundle{}, ctx.Err()
		}
		bundle, err = o.retriever.Retrieve(ctx, turn, route)
	}
	log.LogRetrieval(len(bundle.Items), bundle.Truncated, time.Since(stageStart), err)
	return bundle, err
}

// composeStage streams the answer, forwarding fragments to the caller. A
// composition failure is retried once only while nothing has been streamed
// yet; fragments already delivered cannot be retracted, so a failure after
// first output fails the turn.
func (o *Orchestrator) composeStage(ctx context.Context, state *core.PipelineState, events chan<- core.TurnEvent, log *logging.TurnLogger) (string, []core.Citation, error) {
	stageStart := time.Now()
	defer func() { o.metrics.ObserveStage("compose", time.Since(stageStart)) }()

	turn := state.Turn
	streamed := 0
	emit := func(text string) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case events <- core.NewFragmentEvent(turn, text):
			streamed++
			return nil
		}
	}

	attempt := func() (string, []core.Citation, error) {
		return o.composer.Compose(ctx, turn, *state.Route, *state.Policy, *state.Context, emit)
	}

	draft, citations, err := attempt()
	if err != nil && errors.Is(err, core.ErrComposition) && streamed == 0 && ctx.Err() == nil {
		o.metrics.StageRetried("compose")
		if !sleep(ctx, backoff(0, o.cfg.RetryBackoffBase, o.cfg.RetryBackoffCap)) {
			return "", nil, ctx.Err()
		}
		draft, citations, err = attempt()
	}
	log.LogModelCall(state.Route.Model, time.Since(stageStart), err)
	return draft, citations, err
}

// masteryStage blends the evaluation into the student's mastery row.
// Persistence failures are logged and never retract the delivered response.
func (o *Orchestrator) masteryStage(ctx context.Context, state *core.PipelineState, eval core.Evaluation, log *logging.TurnLogger) {
	stageStart := time.Now()
	defer func() { o.metrics.ObserveStage("mastery", time.Since(stageStart)) }()

	if eval.Concept == "" {
		return
	}
	seen, err := o.log.Seen(ctx, state.Turn.ID)
	if err != nil {
		log.Warn("interaction log lookup failed: %v", err)
	}
	if seen {
		log.Debug("turn already logged, skipping mastery update")
		return
	}
	delta, err := o.tracker.Update(ctx, state.Turn.StudentID, eval.Concept, eval)
	if err != nil {
		log.Error("mastery update failed (response already delivered): %v", err)
		return
	}
	state.Mastery = &delta
}

// terminate classifies a stage error into Cancelled or Failed and closes out
// the turn. Internal error text is logged, never surfaced to the caller.
func (o *Orchestrator) terminate(ctx context.Context, state *core.PipelineState, events chan<- core.TurnEvent, err error, log *logging.TurnLogger) {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		o.finish(ctx, state, events, core.NewCancelledEvent(state.Turn), core.OutcomeCancelled, log)
		return
	}
	log.Error("turn failed: %v", err)
	o.finish(ctx, state, events, core.NewFailedEvent(state.Turn, core.GenericRetryMessage), core.OutcomeFailed, log)
}

// finish marks the terminal state, appends the single interaction log entry
// and emits the terminal event. No node writes to the state afterwards.
func (o *Orchestrator) finish(ctx context.Context, state *core.PipelineState, events chan<- core.TurnEvent, ev core.TurnEvent, outcome core.Outcome, log *logging.TurnLogger) {
	if err := state.MarkTerminal(outcome); err != nil {
		log.Error("terminal state conflict: %v", err)
		return
	}

	entry := core.InteractionLogEntry{
		TurnID:    state.Turn.ID,
		StudentID: state.Turn.StudentID,
		Type:      router.ClassifyIntent(state.Turn.Input),
		Outcome:   outcome,
		Timestamp: time.Now().UTC(),
	}
	if state.Evaluation != nil {
		entry.ConceptFocus = state.Evaluation.Concept
	}
	if err := o.log.Append(context.WithoutCancel(ctx), entry); err != nil && !errors.Is(err, core.ErrDuplicateTurn) {
		log.Error("interaction log append failed: %v", err)
	}

	// Deliver the terminal event. The send must not depend on ctx: a
	// cancelled caller that still drains the stream gets its cancelled
	// event. The timer bounds the goroutine when nobody is reading.
	timer := time.NewTimer(terminalSendTimeout)
	defer timer.Stop()
	select {
	case events <- ev:
	case <-timer.C:
		log.Warn("terminal event dropped: stream not drained")
	}
}

// sleep waits for d or until ctx is done, reporting whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
