package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/DomeenoH/dual/internal/ai"
	"github.com/DomeenoH/dual/internal/logging"
	"github.com/DomeenoH/dual/internal/snapshot"
	"github.com/DomeenoH/dual/internal/step"
	"github.com/DomeenoH/dual/internal/telemetry"
	"github.com/DomeenoH/dual/internal/transport"
)

var log = logging.NewLogger("cli")

func setupContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	// Setup graceful shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		log.Info("Interrupt signal detected, cancelling...")
		cancel()
		<-interrupt
		log.Fatal("Forcing shutdown")
	}()

	return ctx
}

func createAnthropicClient(apiKey, baseURL string) anthropic.Client {
	rateLimitedHTTPClient := &http.Client{
		Transport: transport.WithRateLimiting(nil),
	}
	opts := []option.RequestOption{
		option.WithHTTPClient(rateLimitedHTTPClient),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(5),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return anthropic.NewClient(opts...)
}

// createRegistry registers a transport for every provider that has credentials configured
func createRegistry(ctx context.Context) (*ai.Registry, error) {
	registry := ai.NewRegistry()

	if ep := cfg.Providers.Anthropic; ep.APIKey != "" {
		registry.Register(ai.ProviderAnthropic, ai.NewAnthropicTransport(createAnthropicClient(ep.APIKey, ep.BaseURL)))
	}
	if ep := cfg.Providers.Gemini; ep.APIKey != "" {
		gemini, err := ai.NewGeminiTransport(ctx, ep.APIKey, ep.BaseURL)
		if err != nil {
			return nil, err
		}
		registry.Register(ai.ProviderGemini, gemini)
	}
	// OpenAI-compatible servers often run locally without a key
	ep := cfg.Providers.OpenAI
	registry.Register(ai.ProviderOpenAI, ai.NewOpenAITransport(ep.BaseURL, ep.APIKey))

	return registry, nil
}

func createTelemetryProvider(ctx context.Context) (*telemetry.Provider, error) {
	return telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		ServiceVersion: version,
	})
}

// engine bundles what every step-running command needs
type engine struct {
	executor  *step.Executor
	snapshots *snapshot.FileSystemStore
	telemetry *telemetry.Provider
}

func createEngine(ctx context.Context, messages step.MessageStore, notifier step.Notifier) (*engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	registry, err := createRegistry(ctx)
	if err != nil {
		return nil, err
	}
	snapshots, err := snapshot.NewFileSystemStore(cfg.SnapshotDir)
	if err != nil {
		return nil, err
	}
	tp, err := createTelemetryProvider(ctx)
	if err != nil {
		return nil, err
	}
	executor := step.NewExecutor(registry, messages,
		step.WithFailureSink(snapshots),
		step.WithNotifier(notifier),
		step.WithRetryPolicy(cfg.Retry.Policy()),
		step.WithTracerProvider(tp.TracerProvider()),
	)
	return &engine{executor: executor, snapshots: snapshots, telemetry: tp}, nil
}

func (e *engine) close() {
	if err := e.telemetry.Shutdown(context.Background()); err != nil {
		log.WithError(err).Warn("Failed to flush telemetry")
	}
}

// readInput reads a file argument, or stdin when the path is "-" or empty
func readInput(path string, stdin io.Reader) (string, error) {
	if path == "" || path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(b), nil
}
