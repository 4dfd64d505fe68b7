package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, LLMBackendOllama, cfg.LLM.Backend)
	assert.Equal(t, 0.1, cfg.LLM.Temperature.Classify)
	assert.Equal(t, 0.3, cfg.LLM.Temperature.Generate)
	assert.Equal(t, 300, cfg.Session.TTLSeconds)
	assert.Equal(t, 50, cfg.Session.GraphTimeoutSeconds)
	assert.Equal(t, 3600, cfg.Cache.Classification.TTLSeconds)
	assert.Equal(t, 1024, cfg.Cache.Classification.Capacity)
	assert.Equal(t, 0.65, cfg.Router.HighThreshold)
	assert.Equal(t, 0.40, cfg.Router.MinThreshold)
	assert.Equal(t, 3, cfg.Fallback.MaxLoop)
	assert.False(t, cfg.GDPR.AllowExternalLLM)

	require.NoError(t, cfg.Validate())
}

func TestGDPRGateRefusesExternalBackend(t *testing.T) {
	cfg := Default()
	cfg.LLM.Backend = LLMBackendOpenAI
	cfg.LLM.APIKey = "sk-test"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allow_external_llm")

	cfg.GDPR.AllowExternalLLM = true
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  backend: ollama
  model: mistral
session:
  ttl_s: 120
two_phase:
  thresholds:
    ask_piano_stabilimenti: 10
`), 0644))

	cfg, err := NewLoader(LoaderOptions{Path: path}).Load()
	require.NoError(t, err)

	assert.Equal(t, "mistral", cfg.LLM.Model)
	assert.Equal(t, 120, cfg.Session.TTLSeconds)
	assert.Equal(t, 10, cfg.TwoPhase.Thresholds["ask_piano_stabilimenti"])
	// Untouched sections still get defaults.
	assert.Equal(t, 50, cfg.Session.GraphTimeoutSeconds)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  ttl_s: 120\n"), 0644))

	t.Setenv("VIGILA_SESSION__TTL_S", "600")
	t.Setenv("VIGILA_LLM__MODEL", "phi3")

	cfg, err := NewLoader(LoaderOptions{Path: path}).Load()
	require.NoError(t, err)

	assert.Equal(t, 600, cfg.Session.TTLSeconds)
	assert.Equal(t, "phi3", cfg.LLM.Model)
}

func TestEnvKeyToPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"VIGILA_SESSION__TTL_S", "session.ttl_s"},
		{"VIGILA_CACHE__CLASSIFICATION__CAPACITY", "cache.classification.capacity"},
		{"VIGILA_LLM__BACKEND", "llm.backend"},
		{"VIGILA_GDPR__ALLOW_EXTERNAL_LLM", "gdpr.allow_external_llm"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envKeyToPath(tt.in), tt.in)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("VIGILA_TEST_KEY", "secret")

	assert.Equal(t, "secret", ExpandEnvVars("${VIGILA_TEST_KEY}"))
	assert.Equal(t, "fallback", ExpandEnvVars("${VIGILA_UNSET_KEY:-fallback}"))
	assert.Equal(t, "plain", ExpandEnvVars("plain"))
}

func TestLoadRejectsInvalidThresholds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
router:
  high_threshold: 0.3
  min_threshold: 0.6
`), 0644))

	_, err := NewLoader(LoaderOptions{Path: path}).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_threshold")
}
