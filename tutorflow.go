// Package tutorflow provides a high-level façade over the turn pipeline and
// its services (policy gate, router, retrieval, composer, evaluator, mastery
// tracker) enabling rapid construction of a course tutoring backend. Most
// applications interact with this package by:
//  1. Creating a TutorFlow via New() (optionally overriding default in-memory stores)
//  2. Registering one or more generation endpoints under the configured names
//  3. Running turns asynchronously (RunTurn) or synchronously (RunTurnSync)
//
// The façade delegates orchestration to pipeline.Orchestrator while keeping
// setup ergonomics concise. All defaults are safe for local development and
// testing; production deployments supply Postgres-backed stores, a remote
// knowledge store and a structured logger.
package tutorflow

import (
	"context"

	"github.com/tutorflow/tutorflow/compose"
	"github.com/tutorflow/tutorflow/config"
	"github.com/tutorflow/tutorflow/core"
	"github.com/tutorflow/tutorflow/evaluate"
	"github.com/tutorflow/tutorflow/interaction"
	"github.com/tutorflow/tutorflow/knowledge"
	"github.com/tutorflow/tutorflow/logging"
	"github.com/tutorflow/tutorflow/mastery"
	"github.com/tutorflow/tutorflow/model"
	"github.com/tutorflow/tutorflow/observability"
	"github.com/tutorflow/tutorflow/pipeline"
	"github.com/tutorflow/tutorflow/policy"
	"github.com/tutorflow/tutorflow/retrieval"
	"github.com/tutorflow/tutorflow/router"
)

// Options configures the TutorFlow instance.
type Options struct {
	// Config is the full runtime configuration (defaults to config.Default()).
	Config config.Config

	// Stores (default to in-memory implementations if not provided)
	Knowledge      core.KnowledgeStore
	MasteryStore   core.MasteryStore
	InteractionLog core.InteractionLog

	// Models is the named-endpoint registry the router selects from.
	Models *model.Registry

	// Logger (defaults to a silent logger if nil)
	Logger *logging.TurnLogger

	// Metrics (defaults to none)
	Metrics *observability.Metrics
}

// TutorFlow is the high-level façade aggregating the pipeline and services.
type TutorFlow struct {
	opts         Options
	orchestrator *pipeline.Orchestrator
	tracker      *mastery.Tracker
	models       *model.Registry
}

// New creates a TutorFlow instance with optional overrides. Any unset store
// is initialized with an in-memory implementation; if the model registry is
// empty, mock models are registered under the configured endpoint names so
// the instance works out of the box for development and tests.
func New(optFns ...func(o *Options)) *TutorFlow {
	opts := Options{
		Config:         config.Default(),
		Knowledge:      knowledge.NewInMemoryStore(),
		MasteryStore:   mastery.NewInMemoryStore(),
		InteractionLog: interaction.NewInMemoryLog(),
		Models:         model.NewRegistry(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if len(opts.Models.Names()) == 0 {
		for _, name := range endpointNames(opts.Config.Router) {
			opts.Models.Register(name, model.NewMockModel(name))
		}
	}

	tracker := mastery.NewTracker(opts.Config.Mastery, opts.MasteryStore)
	gate := policy.NewGate(opts.Config.Policy, opts.Knowledge, tracker, opts.Logger)

	orch := pipeline.New(pipeline.Options{
		Config:    opts.Config.Pipeline,
		Gate:      gate,
		Router:    router.New(opts.Config.Router),
		Retriever: retrieval.New(opts.Config.Retrieval, opts.Knowledge),
		Composer:  compose.New(opts.Config.Compose, opts.Models),
		Evaluator: evaluate.New(opts.Config.Evaluate),
		Tracker:   tracker,
		Log:       opts.InteractionLog,
		Logger:    opts.Logger,
		Metrics:   opts.Metrics,
	})

	return &TutorFlow{opts: opts, orchestrator: orch, tracker: tracker, models: opts.Models}
}

// endpointNames deduplicates the configured intent→model mapping.
func endpointNames(cfg config.RouterConfig) []string {
	seen := map[string]bool{}
	var names []string
	for _, name := range []string{cfg.CodeModel, cfg.MathModel, cfg.LogisticsModel, cfg.DefaultModel} {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// RegisterModel adds a generation endpoint under a configured identifier.
func (t *TutorFlow) RegisterModel(name string, m model.Model) { t.models.Register(name, m) }

// RunTurn starts a turn and returns it with its ordered event stream.
// Callers must serialize turns belonging to one session.
func (t *TutorFlow) RunTurn(ctx context.Context, sessionID, studentID, courseID, input string) (core.Turn, <-chan core.TurnEvent, error) {
	turn := core.NewTurn(sessionID, studentID, courseID, input)
	events, err := t.orchestrator.Submit(ctx, turn)
	if err != nil {
		return core.Turn{}, nil, err
	}
	return turn, events, nil
}

// RunTurnSync executes a turn to completion and returns the terminal event
// plus the streamed fragments.
func (t *TutorFlow) RunTurnSync(ctx context.Context, sessionID, studentID, courseID, input string) (core.TurnEvent, []core.TurnEvent, error) {
	turn := core.NewTurn(sessionID, studentID, courseID, input)
	return t.orchestrator.SubmitSync(ctx, turn)
}

// CancelTurn halts an in-flight turn by ID.
func (t *TutorFlow) CancelTurn(turnID string) error { return t.orchestrator.Cancel(turnID) }

// Mastery exposes the tracker for readouts (weak topics, per-student rows).
func (t *TutorFlow) Mastery() *mastery.Tracker { return t.tracker }

// Orchestrator exposes the underlying pipeline (status endpoints, tests).
func (t *TutorFlow) Orchestrator() *pipeline.Orchestrator { return t.orchestrator }
