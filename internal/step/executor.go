package step

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DomeenoH/dual/internal/ai"
	"github.com/DomeenoH/dual/internal/directive"
	"github.com/DomeenoH/dual/internal/logging"
)

const tracerName = "github.com/DomeenoH/dual/internal/step"

// Executor runs turns against the registered provider transports
type Executor struct {
	transports *ai.Registry
	messages   MessageStore
	failures   FailureSink
	notifier   Notifier
	policy     RetryPolicy
	tracer     trace.Tracer
	sleep      func(ctx context.Context, d time.Duration) error
	log        *logrus.Entry
}

type Option func(*Executor)

func WithFailureSink(sink FailureSink) Option {
	return func(e *Executor) { e.failures = sink }
}

func WithNotifier(n Notifier) Option {
	return func(e *Executor) { e.notifier = n }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Executor) { e.policy = p }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) { e.tracer = tp.Tracer(tracerName) }
}

// WithSleep replaces the backoff wait. The function must return ctx.Err() if ctx ends first.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

func NewExecutor(transports *ai.Registry, messages MessageStore, opts ...Option) *Executor {
	e := &Executor{
		transports: transports,
		messages:   messages,
		policy:     DefaultRetryPolicy(),
		tracer:     otel.Tracer(tracerName),
		sleep:      sleepContext,
		log:        logging.NewLogger("step"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the request until it succeeds, is cancelled through ctx, or exhausts its retries. Cancellation always
// yields ErrCancelled. Exhaustion records a FailureSnapshot and yields a *TerminalError.
func (e *Executor) Execute(ctx context.Context, req Request) (*Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "dual.step", trace.WithAttributes(
		attribute.String("step.id", req.StepID),
		attribute.String("step.role", req.Role),
		attribute.String("step.purpose", req.Purpose),
		attribute.String("model.provider", string(req.Profile.Provider)),
		attribute.String("model.name", req.Profile.Model),
	))
	defer span.End()

	log := e.log.WithFields(logrus.Fields{"step": req.StepID, "model": req.Profile.Model})

	transport, err := e.transports.Get(req.Profile.Provider)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	call := ai.Call{
		Prompt:            req.Prompt,
		Model:             req.Profile.Model,
		SystemInstruction: req.SystemInstruction,
		Image:             req.Image,
		Reasoning:         ai.DeriveReasoning(req.Profile),
		MaxOutputTokens:   req.Profile.MaxOutputTokens,
	}

	maxAttempts := max(e.policy.MaxRetries, 0) + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, e.cancelled(span, log)
		}

		outcome, err := e.attempt(ctx, transport, call, req)
		if ctx.Err() != nil {
			return nil, e.cancelled(span, log)
		}
		if err == nil {
			outcome.Attempts = attempt
			span.SetAttributes(attribute.Int("step.attempts", attempt))
			log.WithFields(logrus.Fields{"attempt": attempt, "elapsed": outcome.Elapsed}).Debug("Step completed")
			return outcome, nil
		}

		lastErr = err
		span.AddEvent("attempt failed", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("error", err.Error()),
		))
		if attempt == maxAttempts {
			break
		}

		delay := e.policy.Delay(attempt)
		log.WithError(err).WithFields(logrus.Fields{"attempt": attempt, "delay": delay}).Warn("Attempt failed, retrying")
		e.notify(Notice{Kind: NoticeRetry, StepID: req.StepID, Attempt: attempt, Err: err})
		if err := e.sleep(ctx, delay); err != nil {
			return nil, e.cancelled(span, log)
		}
	}

	snapshot := FailureSnapshot{
		Request:   req,
		Attempts:  maxAttempts,
		LastError: lastErr.Error(),
		FailedAt:  time.Now().UTC(),
	}
	if e.failures != nil {
		if err := e.failures.Record(ctx, snapshot); err != nil {
			log.WithError(err).Error("Failed to record failure snapshot")
		}
	}
	e.notify(Notice{Kind: NoticeFailed, StepID: req.StepID, Attempt: maxAttempts, Err: lastErr})
	log.WithError(lastErr).WithField("attempts", maxAttempts).Error("Step failed, retries exhausted")

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "retries exhausted")
	return nil, &TerminalError{Snapshot: snapshot, Err: lastErr}
}

// Resume replays the request captured in a failure snapshot with its original resume coordinates
func (e *Executor) Resume(ctx context.Context, snapshot FailureSnapshot) (*Outcome, error) {
	return e.Execute(ctx, snapshot.Request)
}

// attempt streams one call into a fresh placeholder message
func (e *Executor) attempt(ctx context.Context, transport ai.Transport, call ai.Call, req Request) (*Outcome, error) {
	id, err := e.messages.Create(req.Role, req.Purpose)
	if err != nil {
		return nil, fmt.Errorf("failed to create placeholder message: %w", err)
	}

	var msg StreamedMessage
	msg.ID = id
	started := time.Now()
	onDelta := func(d ai.Delta) {
		msg.Text += d.Text
		msg.Thoughts += d.Thoughts
		msg.Elapsed = time.Since(started)
		if err := e.messages.Update(id, MessageUpdate{Text: msg.Text, Thoughts: msg.Thoughts, Elapsed: msg.Elapsed}); err != nil {
			e.log.WithError(err).WithField("message", id).Debug("Failed to update message")
		}
	}

	result, err := transport.Generate(ctx, call, onDelta)
	if err == nil && result.ErrorTag != "" {
		err = &ProviderError{Tag: result.ErrorTag}
	}
	if err != nil {
		status := StatusFailed
		if ctx.Err() != nil {
			status = StatusCancelled
		}
		e.finalize(id, msg, status)
		return nil, err
	}

	msg.Text = result.Text
	msg.Thoughts = result.Thoughts
	msg.Elapsed = result.Elapsed
	e.finalize(id, msg, StatusDone)

	return &Outcome{
		MessageID: id,
		Text:      msg.Text,
		Thoughts:  msg.Thoughts,
		Elapsed:   msg.Elapsed,
		Parsed:    directive.Parse(msg.Text),
	}, nil
}

func (e *Executor) finalize(id string, msg StreamedMessage, status MessageStatus) {
	update := MessageUpdate{Text: msg.Text, Thoughts: msg.Thoughts, Elapsed: msg.Elapsed, Status: status}
	if err := e.messages.Update(id, update); err != nil {
		e.log.WithError(err).WithField("message", id).Warn("Failed to finalize message")
	}
}

func (e *Executor) cancelled(span trace.Span, log *logrus.Entry) error {
	span.SetStatus(codes.Error, ErrCancelled.Error())
	log.Info("Step cancelled")
	return ErrCancelled
}

func (e *Executor) notify(n Notice) {
	if e.notifier != nil {
		e.notifier.Notify(n)
	}
}

// IsTerminal reports whether err is a terminal failure and returns its snapshot
func IsTerminal(err error) (FailureSnapshot, bool) {
	var terminal *TerminalError
	if errors.As(err, &terminal) {
		return terminal.Snapshot, true
	}
	return FailureSnapshot{}, false
}
