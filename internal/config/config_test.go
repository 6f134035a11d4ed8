package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DomeenoH/dual/internal/ai"
)

const sampleYAML = `
profiles:
  - name: thinker
    provider: gemini
    model: gemini-3-pro-preview
    reasoningBudget: -1
  - name: local
    provider: openai
    model: llama3
retry:
  maxRetries: 4
  baseDelay: 250ms
providers:
  gemini:
    apiKey: from-file
  openai:
    baseURL: http://localhost:11434/v1
logging:
  format: json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dual.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ANTHROPIC_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY", "OPENAI_BASE_URL", "DUAL_SNAPSHOT_DIR",
		"DUAL_MAX_RETRIES", "DUAL_RETRY_BASE_DELAY", "DUAL_LOG_LEVEL", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, sampleYAML), true)
	require.NoError(t, err)

	require.Len(t, cfg.Profiles, 2)
	assert.Equal(t, ai.AutoReasoningBudget, cfg.Profiles[0].ReasoningBudget)
	assert.Equal(t, 4, cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, "from-file", cfg.Providers.Gemini.APIKey)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("DUAL_MAX_RETRIES", "1")
	t.Setenv("DUAL_RETRY_BASE_DELAY", "2s")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")

	cfg, err := Load(writeConfig(t, sampleYAML), true)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Providers.Gemini.APIKey)
	assert.Equal(t, 1, cfg.Retry.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoad_BadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DUAL_MAX_RETRIES", "many")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), false)
	assert.ErrorContains(t, err, "DUAL_MAX_RETRIES")
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	cfg, err := Load(missing, false)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(missing, true)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Profiles = []ai.ModelProfile{
		{Name: "a", Provider: ai.ProviderAnthropic, Model: "claude"},
		{Name: "a", Provider: "mystery", Model: "x"},
		{Name: "", Provider: ai.ProviderOpenAI},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, `no API key configured for provider "anthropic"`)
	assert.ErrorContains(t, err, "duplicate name")
	assert.ErrorContains(t, err, `unknown provider "mystery"`)
	assert.ErrorContains(t, err, "missing name")
	assert.ErrorContains(t, err, "missing model")
}

func TestProfile(t *testing.T) {
	cfg := Default()
	cfg.Profiles = []ai.ModelProfile{{Name: "fast", Provider: ai.ProviderGemini, Model: "gemini-2.5-flash"}}

	p, err := cfg.Profile("fast")
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", p.Model)

	_, err = cfg.Profile("slow")
	assert.Error(t, err)
}
