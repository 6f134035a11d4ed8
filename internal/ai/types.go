// Package ai provides the provider transports used to run a single model turn.
package ai

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Provider names a transport realization
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
)

// ModelProfile is the configured model a turn is sent to
type ModelProfile struct {
	Name     string   `yaml:"name" json:"name"`
	Provider Provider `yaml:"provider" json:"provider"`
	Model    string   `yaml:"model" json:"model"`
	// MaxOutputTokens caps the reply length, 0 uses the transport default
	MaxOutputTokens int64 `yaml:"maxOutputTokens,omitempty" json:"maxOutputTokens,omitempty"`
	// ReasoningBudget is 0 for disabled, AutoReasoningBudget for auto, otherwise a token budget
	ReasoningBudget int `yaml:"reasoningBudget,omitempty" json:"reasoningBudget,omitempty"`
	// LeveledReasoning marks models that accept a named reasoning level; unset falls back to the known model list
	LeveledReasoning *bool `yaml:"leveledReasoning,omitempty" json:"leveledReasoning,omitempty"`
}

// Image is an inline image attached to the prompt
type Image struct {
	MediaType string `json:"mediaType"`
	Data      []byte `json:"data"`
}

// Call is everything a transport needs to issue one request
type Call struct {
	Prompt            string
	Model             string
	SystemInstruction string
	Image             *Image
	Reasoning         *Reasoning
	MaxOutputTokens   int64
}

// Delta is an increment of streamed output. Either field may be empty.
type Delta struct {
	Text     string
	Thoughts string
}

// Result is the completed output of a call
type Result struct {
	Text     string
	Thoughts string
	Elapsed  time.Duration
	// ErrorTag is set when the provider finished the stream abnormally, e.g. a safety block
	ErrorTag string
}

// Transport sends a prompt to a model, reporting streamed increments to onDelta as they arrive. onDelta is called from
// the goroutine that called Generate.
type Transport interface {
	Generate(ctx context.Context, call Call, onDelta func(Delta)) (*Result, error)
}

// Registry maps providers to their transports
type Registry struct {
	mu         sync.RWMutex
	transports map[Provider]Transport
}

func NewRegistry() *Registry {
	return &Registry{transports: make(map[Provider]Transport)}
}

// Register adds or replaces the transport for a provider
func (r *Registry) Register(provider Provider, transport Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[provider] = transport
}

// Get returns the transport for provider
func (r *Registry) Get(provider Provider) (Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[provider]
	if !ok {
		return nil, fmt.Errorf("no transport registered for provider %q", provider)
	}
	return t, nil
}

// accumulator collects streamed deltas into the final result
type accumulator struct {
	started  time.Time
	text     []byte
	thoughts []byte
	onDelta  func(Delta)
}

func newAccumulator(onDelta func(Delta)) *accumulator {
	if onDelta == nil {
		onDelta = func(Delta) {}
	}
	return &accumulator{started: time.Now(), onDelta: onDelta}
}

func (a *accumulator) add(d Delta) {
	if d.Text == "" && d.Thoughts == "" {
		return
	}
	a.text = append(a.text, d.Text...)
	a.thoughts = append(a.thoughts, d.Thoughts...)
	a.onDelta(d)
}

func (a *accumulator) result(errorTag string) *Result {
	return &Result{
		Text:     string(a.text),
		Thoughts: string(a.thoughts),
		Elapsed:  time.Since(a.started),
		ErrorTag: errorTag,
	}
}
