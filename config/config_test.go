package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"decay factor zero", func(c *Config) { c.Mastery.DecayFactor = 0 }},
		{"decay factor one", func(c *Config) { c.Mastery.DecayFactor = 1 }},
		{"decay factor above one", func(c *Config) { c.Mastery.DecayFactor = 1.3 }},
		{"scope threshold negative", func(c *Config) { c.Policy.ScopeThreshold = -0.1 }},
		{"empty redirect message", func(c *Config) { c.Policy.RedirectMessage = "" }},
		{"missing router model", func(c *Config) { c.Router.DefaultModel = "" }},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"zero weights", func(c *Config) {
			c.Evaluate.LengthWeight = 0
			c.Evaluate.StructureWeight = 0
			c.Evaluate.ConceptWeight = 0
		}},
		{"negative weight", func(c *Config) { c.Evaluate.ConceptWeight = -1 }},
		{"zero target length", func(c *Config) { c.Evaluate.TargetLength = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
policy:
  scope_threshold: 0.5
mastery:
  decay_factor: 0.9
server:
  bind_addr: "127.0.0.1:9999"
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Policy.ScopeThreshold)
	assert.Equal(t, 0.9, cfg.Mastery.DecayFactor)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.BindAddr)
	// Untouched sections keep their defaults.
	assert.Equal(t, "code", cfg.Router.CodeModel)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("TUTORFLOW_BIND_ADDR", ":7070")
	t.Setenv("TUTORFLOW_DECAY_FACTOR", "0.8")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.BindAddr)
	assert.Equal(t, 0.8, cfg.Mastery.DecayFactor)
}

func TestLoad_InvalidFileValueFailsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mastery:\n  decay_factor: 2.0\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
