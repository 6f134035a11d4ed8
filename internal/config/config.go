// Package config loads the dual configuration from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DomeenoH/dual/internal/ai"
	"github.com/DomeenoH/dual/internal/step"
)

const DefaultPath = "dual.yaml"

// Config holds the configuration for the turn engine and its surfaces
type Config struct {
	Profiles    []ai.ModelProfile `yaml:"profiles"`
	Providers   Providers         `yaml:"providers"`
	Retry       Retry             `yaml:"retry"`
	SnapshotDir string            `yaml:"snapshotDir"`
	Logging     Logging           `yaml:"logging"`
	Telemetry   Telemetry         `yaml:"telemetry"`
	Server      Server            `yaml:"server"`
}

type Endpoint struct {
	APIKey  string `yaml:"apiKey,omitempty"`
	BaseURL string `yaml:"baseURL,omitempty"`
}

type Providers struct {
	Anthropic Endpoint `yaml:"anthropic"`
	Gemini    Endpoint `yaml:"gemini"`
	OpenAI    Endpoint `yaml:"openai"`
}

type Retry struct {
	MaxRetries int           `yaml:"maxRetries"`
	BaseDelay  time.Duration `yaml:"baseDelay"`
}

func (r Retry) Policy() step.RetryPolicy {
	return step.RetryPolicy{MaxRetries: r.MaxRetries, BaseDelay: r.BaseDelay}
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Retry:       Retry{MaxRetries: step.DefaultMaxRetries, BaseDelay: step.DefaultBaseDelay},
		SnapshotDir: ".dual/snapshots",
		Logging:     Logging{Level: "info", Format: "text"},
		Server:      Server{Addr: ":8080"},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies environment overrides. A missing file is
// only an error when required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !required:
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	loadOptionalFromEnv(&c.Providers.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	loadOptionalFromEnv(&c.Providers.Gemini.APIKey, "GEMINI_API_KEY")
	loadOptionalFromEnv(&c.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	loadOptionalFromEnv(&c.Providers.OpenAI.BaseURL, "OPENAI_BASE_URL")
	loadOptionalFromEnv(&c.SnapshotDir, "DUAL_SNAPSHOT_DIR")
	loadOptionalFromEnv(&c.Logging.Level, "DUAL_LOG_LEVEL")
	loadOptionalFromEnv(&c.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	if c.Telemetry.Endpoint != "" {
		c.Telemetry.Enabled = true
	}
	return errors.Join(
		parseOptionalFromEnv(&c.Retry.MaxRetries, "DUAL_MAX_RETRIES", strconv.Atoi),
		parseOptionalFromEnv(&c.Retry.BaseDelay, "DUAL_RETRY_BASE_DELAY", time.ParseDuration),
	)
}

func loadOptionalFromEnv(dest *string, key string) {
	_ = parseOptionalFromEnv(dest, key, func(v string) (string, error) { return v, nil })
}

func parseOptionalFromEnv[T any](dest *T, key string, parseFn func(string) (T, error)) error {
	str := os.Getenv(key)
	if str == "" {
		return nil // Leave default value
	}
	v, err := parseFn(str)
	if err != nil {
		return fmt.Errorf("failed to parse environment variable '%s' value '%s' as '%T': %w", key, str, *dest, err)
	}
	*dest = v
	return nil
}

// Profile returns the model profile with the given name
func (c Config) Profile(name string) (ai.ModelProfile, error) {
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return ai.ModelProfile{}, fmt.Errorf("unknown model profile %q", name)
}

// Endpoint returns the endpoint settings of a provider
func (c Config) Endpoint(provider ai.Provider) (Endpoint, bool) {
	switch provider {
	case ai.ProviderAnthropic:
		return c.Providers.Anthropic, true
	case ai.ProviderGemini:
		return c.Providers.Gemini, true
	case ai.ProviderOpenAI:
		return c.Providers.OpenAI, true
	default:
		return Endpoint{}, false
	}
}

// Validate checks that every profile is complete and references a configured provider
func (c Config) Validate() error {
	var errs []error
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry.maxRetries must not be negative"))
	}
	if c.Retry.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("retry.baseDelay must not be negative"))
	}
	seen := map[string]bool{}
	for i, p := range c.Profiles {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("profile %d: missing name", i))
		} else if seen[p.Name] {
			errs = append(errs, fmt.Errorf("profile %q: duplicate name", p.Name))
		}
		seen[p.Name] = true
		if p.Model == "" {
			errs = append(errs, fmt.Errorf("profile %q: missing model", p.Name))
		}
		if p.ReasoningBudget < ai.AutoReasoningBudget {
			errs = append(errs, fmt.Errorf("profile %q: invalid reasoning budget %d", p.Name, p.ReasoningBudget))
		}
		endpoint, ok := c.Endpoint(p.Provider)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("profile %q: unknown provider %q", p.Name, p.Provider))
		case p.Provider != ai.ProviderOpenAI && endpoint.APIKey == "":
			errs = append(errs, fmt.Errorf("profile %q: no API key configured for provider %q", p.Name, p.Provider))
		}
	}
	return errors.Join(errs...)
}
