// Package config loads and validates the TutorFlow runtime configuration
// from an optional YAML file plus environment overrides. Validation is
// strict: thresholds live in [0,1], the decay factor strictly in (0,1), and
// every timeout must be positive.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PolicyConfig tunes the policy gate.
type PolicyConfig struct {
	// ScopeThreshold is the minimum best-match knowledge-store score a
	// question must clear to count as in-course.
	ScopeThreshold float64 `yaml:"scope_threshold"`
	// FailOpen approves turns when the scope query itself errors. Default
	// false: a scope-query error surfaces as a retriable failure.
	FailOpen bool `yaml:"fail_open"`
	// RedirectMessage is the fixed integrity rejection text.
	RedirectMessage string `yaml:"redirect_message"`
	// MasteryNoteThreshold marks concepts below it as weak in the soft
	// mastery annotation.
	MasteryNoteThreshold float64 `yaml:"mastery_note_threshold"`
}

// RouterConfig maps each intent to a registered model identifier.
type RouterConfig struct {
	CodeModel      string `yaml:"code_model"`
	MathModel      string `yaml:"math_model"`
	LogisticsModel string `yaml:"logistics_model"`
	DefaultModel   string `yaml:"default_model"`
}

// RetrievalConfig tunes the context retriever.
type RetrievalConfig struct {
	TopK     int           `yaml:"top_k"`
	MaxItems int           `yaml:"max_items"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ComposeConfig tunes the response composer.
type ComposeConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// EvaluateConfig holds the weighted scoring signals of the outcome evaluator.
type EvaluateConfig struct {
	PassThreshold   float64 `yaml:"pass_threshold"`
	LengthWeight    float64 `yaml:"length_weight"`
	StructureWeight float64 `yaml:"structure_weight"`
	ConceptWeight   float64 `yaml:"concept_weight"`
	// TargetLength is the response length (in runes) at which the length
	// signal saturates to 1.
	TargetLength int `yaml:"target_length"`
}

// MasteryConfig tunes the mastery tracker.
type MasteryConfig struct {
	DecayFactor   float64 `yaml:"decay_factor"`
	WeakThreshold float64 `yaml:"weak_threshold"`
}

// PipelineConfig tunes orchestrator concurrency and retry behavior.
type PipelineConfig struct {
	MaxConcurrentTurns int           `yaml:"max_concurrent_turns"`
	EventBufferSize    int           `yaml:"event_buffer_size"`
	RetryBackoffBase   time.Duration `yaml:"retry_backoff_base"`
	RetryBackoffCap    time.Duration `yaml:"retry_backoff_cap"`
	// TurnRecordTTL bounds how long finished turn records stay queryable.
	TurnRecordTTL time.Duration `yaml:"turn_record_ttl"`
}

// ServerConfig tunes the serving surface in cmd/tutorflow.
type ServerConfig struct {
	BindAddr         string        `yaml:"bind_addr"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// Config is the full runtime configuration.
type Config struct {
	Policy    PolicyConfig    `yaml:"policy"`
	Router    RouterConfig    `yaml:"router"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Compose   ComposeConfig   `yaml:"compose"`
	Evaluate  EvaluateConfig  `yaml:"evaluate"`
	Mastery   MasteryConfig   `yaml:"mastery"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Server    ServerConfig    `yaml:"server"`

	// DatabaseURL enables Postgres-backed mastery/log stores when set.
	DatabaseURL string `yaml:"database_url"`
	// KnowledgeURL points at the remote vector-search service when set.
	KnowledgeURL string `yaml:"knowledge_url"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Policy: PolicyConfig{
			ScopeThreshold: 0.25,
			FailOpen:       false,
			RedirectMessage: "I can't provide complete solutions to graded work. " +
				"Let's work through the underlying concept together instead - what part is giving you trouble?",
			MasteryNoteThreshold: 0.4,
		},
		Router: RouterConfig{
			CodeModel:      "code",
			MathModel:      "reasoning",
			LogisticsModel: "logistics",
			DefaultModel:   "general",
		},
		Retrieval: RetrievalConfig{TopK: 5, MaxItems: 5, Timeout: 8 * time.Second},
		Compose:   ComposeConfig{Timeout: 45 * time.Second},
		Evaluate: EvaluateConfig{
			PassThreshold:   0.7,
			LengthWeight:    0.3,
			StructureWeight: 0.3,
			ConceptWeight:   0.4,
			TargetLength:    280,
		},
		Mastery: MasteryConfig{DecayFactor: 0.7, WeakThreshold: 0.5},
		Pipeline: PipelineConfig{
			MaxConcurrentTurns: 8,
			EventBufferSize:    100,
			RetryBackoffBase:   250 * time.Millisecond,
			RetryBackoffCap:    2 * time.Second,
			TurnRecordTTL:      15 * time.Minute,
		},
		Server: ServerConfig{
			BindAddr:         ":8080",
			MetricsNamespace: "tutorflow",
			ShutdownTimeout:  15 * time.Second,
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides, then validates. The returned Config is ready to use.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := envTrim("TUTORFLOW_BIND_ADDR"); v != "" {
		cfg.Server.BindAddr = v
	}
	if v := envTrim("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := envTrim("TUTORFLOW_KNOWLEDGE_URL"); v != "" {
		cfg.KnowledgeURL = v
	}
	if v := envTrim("TUTORFLOW_DECAY_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Mastery.DecayFactor = f
		}
	}
	if v := envTrim("TUTORFLOW_MAX_CONCURRENT_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxConcurrentTurns = n
		}
	}
}

func envTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// Validate checks every tunable for sanity.
func (c Config) Validate() error {
	if c.Policy.ScopeThreshold < 0 || c.Policy.ScopeThreshold > 1 {
		return fmt.Errorf("policy.scope_threshold must be in [0,1], got %v", c.Policy.ScopeThreshold)
	}
	if c.Policy.RedirectMessage == "" {
		return fmt.Errorf("policy.redirect_message must not be empty")
	}
	if c.Router.CodeModel == "" || c.Router.MathModel == "" || c.Router.LogisticsModel == "" || c.Router.DefaultModel == "" {
		return fmt.Errorf("router: every intent needs a model identifier")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.MaxItems <= 0 {
		return fmt.Errorf("retrieval.max_items must be positive, got %d", c.Retrieval.MaxItems)
	}
	if c.Retrieval.Timeout <= 0 {
		return fmt.Errorf("retrieval.timeout must be positive, got %v", c.Retrieval.Timeout)
	}
	if c.Compose.Timeout <= 0 {
		return fmt.Errorf("compose.timeout must be positive, got %v", c.Compose.Timeout)
	}
	if c.Evaluate.PassThreshold < 0 || c.Evaluate.PassThreshold > 1 {
		return fmt.Errorf("evaluate.pass_threshold must be in [0,1], got %v", c.Evaluate.PassThreshold)
	}
	if c.Evaluate.LengthWeight < 0 || c.Evaluate.StructureWeight < 0 || c.Evaluate.ConceptWeight < 0 {
		return fmt.Errorf("evaluate weights must be non-negative")
	}
	if c.Evaluate.LengthWeight+c.Evaluate.StructureWeight+c.Evaluate.ConceptWeight <= 0 {
		return fmt.Errorf("evaluate weights must not all be zero")
	}
	if c.Evaluate.TargetLength <= 0 {
		return fmt.Errorf("evaluate.target_length must be positive, got %d", c.Evaluate.TargetLength)
	}
	if c.Mastery.DecayFactor <= 0 || c.Mastery.DecayFactor >= 1 {
		return fmt.Errorf("mastery.decay_factor must be strictly within (0,1), got %v", c.Mastery.DecayFactor)
	}
	if c.Mastery.WeakThreshold < 0 || c.Mastery.WeakThreshold > 1 {
		return fmt.Errorf("mastery.weak_threshold must be in [0,1], got %v", c.Mastery.WeakThreshold)
	}
	if c.Pipeline.MaxConcurrentTurns <= 0 {
		return fmt.Errorf("pipeline.max_concurrent_turns must be positive, got %d", c.Pipeline.MaxConcurrentTurns)
	}
	if c.Pipeline.EventBufferSize <= 0 {
		return fmt.Errorf("pipeline.event_buffer_size must be positive, got %d", c.Pipeline.EventBufferSize)
	}
	if c.Pipeline.RetryBackoffBase <= 0 || c.Pipeline.RetryBackoffCap < c.Pipeline.RetryBackoffBase {
		return fmt.Errorf("pipeline retry backoff: base must be positive and cap >= base")
	}
	if c.Pipeline.TurnRecordTTL <= 0 {
		return fmt.Errorf("pipeline.turn_record_ttl must be positive, got %v", c.Pipeline.TurnRecordTTL)
	}
	return nil
}
