package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/tutorflow/tutorflow"
	"github.com/tutorflow/tutorflow/config"
	"github.com/tutorflow/tutorflow/core"
	"github.com/tutorflow/tutorflow/httpapi"
	"github.com/tutorflow/tutorflow/interaction"
	"github.com/tutorflow/tutorflow/knowledge"
	"github.com/tutorflow/tutorflow/logging"
	"github.com/tutorflow/tutorflow/mastery"
	"github.com/tutorflow/tutorflow/model"
	"github.com/tutorflow/tutorflow/model/anthropic"
	"github.com/tutorflow/tutorflow/model/openai"
	"github.com/tutorflow/tutorflow/observability"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "tutorflow",
	Short: "TutorFlow - policy-gated tutoring pipeline",
	Long: `TutorFlow runs a policy-gated tutoring pipeline: every student turn is
checked against course policy, routed to a generation endpoint, grounded in
retrieved course material, streamed back with citations and scored into a
per-student mastery model.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and websocket API server",
	RunE:  runServe,
}

var askCmd = &cobra.Command{
	Use:   "ask [input]",
	Short: "Run a single turn from the command line",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	askCmd.Flags().String("student", "cli-student", "student identifier")
	askCmd.Flags().String("course", "cli-course", "course identifier")
	rootCmd.AddCommand(serveCmd, askCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *logging.TurnLogger {
	lc := logging.DefaultLoggerConfig()
	if verbose {
		lc.Level = logging.LogLevelDebug
	}
	return logging.NewTurnLogger(lc)
}

// buildFlow assembles a TutorFlow instance from configuration: Postgres
// stores and a remote knowledge service when configured, in-memory
// equivalents otherwise, and real generation endpoints when API keys are
// present in the environment.
func buildFlow(ctx context.Context, cfg config.Config, logger *logging.TurnLogger, metrics *observability.Metrics) (*tutorflow.TutorFlow, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var masteryStore core.MasteryStore
	var interactionLog core.InteractionLog
	if cfg.DatabaseURL != "" {
		ms, err := mastery.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("mastery store: %w", err)
		}
		closers = append(closers, ms.Close)
		il, err := interaction.NewPostgresLogFromPool(ctx, ms.Pool())
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("interaction log: %w", err)
		}
		masteryStore = ms
		interactionLog = il
	} else {
		masteryStore = mastery.NewInMemoryStore()
		interactionLog = interaction.NewInMemoryLog()
	}

	var knowledgeStore core.KnowledgeStore
	if cfg.KnowledgeURL != "" {
		knowledgeStore = knowledge.NewHTTPStore(cfg.KnowledgeURL, cfg.Retrieval.Timeout)
	} else {
		knowledgeStore = knowledge.NewInMemoryStore()
	}

	registry := model.NewRegistry()
	registerEndpoints(registry, cfg.Router)

	flow := tutorflow.New(func(o *tutorflow.Options) {
		o.Config = cfg
		o.Knowledge = knowledgeStore
		o.MasteryStore = masteryStore
		o.InteractionLog = interactionLog
		o.Models = registry
		o.Logger = logger
		o.Metrics = metrics
	})
	return flow, closeAll, nil
}

// registerEndpoints binds each configured endpoint name to a provider
// adapter chosen from the environment. Without any API key the registry is
// left empty and the facade falls back to mock endpoints.
func registerEndpoints(registry *model.Registry, rc config.RouterConfig) {
	names := map[string]struct{}{}
	for _, n := range []string{rc.CodeModel, rc.MathModel, rc.LogisticsModel, rc.DefaultModel} {
		if n != "" {
			names[n] = struct{}{}
		}
	}
	switch {
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		for n := range names {
			name := n
			registry.Register(name, anthropic.NewModel(func(o *anthropic.Options) {
				o.Model = anthropicsdk.Model(name)
			}))
		}
	case os.Getenv("OPENAI_API_KEY") != "":
		for n := range names {
			name := n
			registry.Register(name, openai.NewModel(func(o *openai.Options) {
				o.Model = name
			}))
		}
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger().WithComponent("serve")
	metrics := observability.NewMetrics(cfg.Server.MetricsNamespace)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flow, closeStores, err := buildFlow(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer closeStores()

	srv := &http.Server{
		Addr:    cfg.Server.BindAddr,
		Handler: httpapi.New(flow, logger).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.Server.BindAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger().WithComponent("ask")
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flow, closeStores, err := buildFlow(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer closeStores()

	studentID, _ := cmd.Flags().GetString("student")
	courseID, _ := cmd.Flags().GetString("course")
	input := strings.Join(args, " ")

	_, events, err := flow.RunTurn(ctx, core.NewID(), studentID, courseID, input)
	if err != nil {
		return err
	}
	for ev := range events {
		switch ev.Type {
		case core.TurnEventFragment:
			fmt.Print(ev.Text)
		case core.TurnEventCompleted:
			fmt.Println()
			if ev.Evaluation != nil {
				fmt.Printf("confidence=%.2f concept=%s\n", ev.Evaluation.Confidence, ev.Evaluation.Concept)
			}
			if ev.Mastery != nil {
				fmt.Printf("mastery %s: %.2f -> %.2f\n", ev.Mastery.Concept, ev.Mastery.Previous, ev.Mastery.Current)
			}
		case core.TurnEventRejected:
			fmt.Println(ev.Text)
		case core.TurnEventFailed:
			return errors.New(ev.ErrorMessage)
		case core.TurnEventCancelled:
			return context.Canceled
		}
	}
	return nil
}
