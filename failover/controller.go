// Package failover walks an ordered provider chain until one answers.
//
// Information Hiding:
// - Per-provider timeouts and the attempt loop
// - Mapping of adapter errors to attempt outcomes
// - Circuit breaker bookkeeping
package failover

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phuslu/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/richinex/querygate/llm"
	"github.com/richinex/querygate/model"
)

// ErrProviderExhausted is matched by every ExhaustedError.
var ErrProviderExhausted = errors.New("all providers exhausted")

// ExhaustedError is returned when every entry in the chain failed.
type ExhaustedError struct {
	Trace model.Trace
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Trace))
	for i, a := range e.Trace {
		parts[i] = a.ProviderID + "=" + a.Outcome.String()
	}
	return fmt.Sprintf("%s: %s", ErrProviderExhausted, strings.Join(parts, ", "))
}

// Is makes errors.Is(err, ErrProviderExhausted) hold.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrProviderExhausted
}

// Entry is one position in the chain.
type Entry struct {
	// ID names the entry in traces and metrics. Defaults to Provider.Name().
	ID       string
	Provider llm.Provider
	// Timeout bounds a single attempt. Zero means unbounded.
	Timeout time.Duration
}

func (e Entry) id() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Provider.Name()
}

// Result is a successful invocation.
type Result struct {
	Response llm.Response
	Provider string
	Trace    model.Trace
}

// Controller invokes providers in order, one attempt each.
type Controller struct {
	entries []Entry
	breaker *Breaker
	now     func() time.Time
}

// New creates a controller over entries, tried in the given order.
// breaker may be nil.
func New(entries []Entry, breaker *Breaker) (*Controller, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("failover: at least one provider entry is required")
	}
	for i, e := range entries {
		if e.Provider == nil {
			return nil, fmt.Errorf("failover: entry %d has no provider", i)
		}
		if e.Timeout < 0 {
			return nil, fmt.Errorf("failover: entry %q has negative timeout", e.id())
		}
	}
	return &Controller{
		entries: append([]Entry(nil), entries...),
		breaker: breaker,
		now:     time.Now,
	}, nil
}

// Entries returns a copy of the chain.
func (c *Controller) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// ChainTimeout returns the sum of per-attempt timeouts, or false when any
// entry is unbounded.
func (c *Controller) ChainTimeout() (time.Duration, bool) {
	var total time.Duration
	for _, e := range c.entries {
		if e.Timeout == 0 {
			return 0, false
		}
		total += e.Timeout
	}
	return total, true
}

// Invoke calls the chain with the same arguments until a provider
// succeeds. Cancellation of ctx stops the walk and is returned wrapped;
// the partial trace is still carried in the Result.
func (c *Controller) Invoke(ctx context.Context, prompt string, history []llm.ChatMessage, tools []llm.ToolDefinition) (Result, error) {
	ctx, span := tracer.Start(ctx, "failover.invoke")
	defer span.End()

	attempts := make(model.Trace, 0, len(c.entries))
	for _, e := range c.entries {
		if err := ctx.Err(); err != nil {
			return Result{Trace: attempts}, fmt.Errorf("provider chain interrupted: %w", err)
		}

		id := e.id()
		if !c.breaker.Allow(id) {
			a := model.ProviderAttempt{ProviderID: id, StartedAt: c.now(), Outcome: model.OutcomeCircuitOpen}
			attempts = c.record(span, attempts, a)
			log.Debug().Str("provider", id).Msg("circuit open, skipping provider")
			continue
		}

		resp, a, err := c.attempt(ctx, e, prompt, history, tools)
		if err != nil && ctx.Err() != nil {
			return Result{Trace: attempts}, fmt.Errorf("provider chain interrupted: %w", ctx.Err())
		}
		attempts = c.record(span, attempts, a)

		if err == nil {
			c.breaker.Success(id)
			log.Debug().Str("provider", id).Int64("latency_ms", a.LatencyMs).Msg("provider answered")
			return Result{Response: resp, Provider: id, Trace: attempts}, nil
		}

		c.breaker.Failure(id)
		log.Warn().Str("provider", id).Str("outcome", a.Outcome.String()).
			Int64("latency_ms", a.LatencyMs).Err(err).Msg("provider attempt failed")
	}

	span.SetAttributes(attribute.Bool("querygate.exhausted", true))
	return Result{Trace: attempts}, &ExhaustedError{Trace: attempts}
}

func (c *Controller) attempt(ctx context.Context, e Entry, prompt string, history []llm.ChatMessage, tools []llm.ToolDefinition) (llm.Response, model.ProviderAttempt, error) {
	a := model.ProviderAttempt{ProviderID: e.id(), StartedAt: c.now()}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.Timeout)
	}
	resp, err := e.Provider.Call(callCtx, prompt, history, tools)
	timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
	cancel()

	a.LatencyMs = c.now().Sub(a.StartedAt).Milliseconds()
	if err == nil && resp == nil {
		err = &llm.ProviderError{Provider: a.ProviderID, Kind: llm.KindInvalidResponse, Err: llm.ErrInvalidResponse}
	}
	if err != nil {
		a.Outcome = outcomeFor(err, timedOut)
		a.Err = err.Error()
		return nil, a, err
	}
	a.Outcome = model.OutcomeSuccess
	return resp, a, nil
}

func (c *Controller) record(span trace.Span, attempts model.Trace, a model.ProviderAttempt) model.Trace {
	observeAttempt(a)
	span.AddEvent("provider.attempt", trace.WithAttributes(attemptAttrs(a)...))
	return append(attempts, a)
}

// outcomeFor maps an adapter error to an attempt outcome. An expired
// attempt deadline is a timeout whatever the adapter reported.
func outcomeFor(err error, timedOut bool) model.Outcome {
	if timedOut {
		return model.OutcomeTimeout
	}
	switch llm.KindOf(err) {
	case llm.KindTimeout:
		return model.OutcomeTimeout
	case llm.KindRateLimited:
		return model.OutcomeRateLimited
	case llm.KindInvalidResponse:
		return model.OutcomeInvalidResponse
	default:
		return model.OutcomeTransportError
	}
}
