package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// OnDispatchFunc is called after discovery, just before the execution
// strategy runs.
type OnDispatchFunc func(ctx context.Context, messageType string)

// OnSuccessFunc is called after the execution strategy completes, including
// dispatches whose failures were absorbed by error hooks.
type OnSuccessFunc func(ctx context.Context, messageType string, duration time.Duration)

// OnFailureFunc is called when a dispatch returns an error to the caller.
type OnFailureFunc func(ctx context.Context, messageType string, err error, duration time.Duration)

// OnNoHandlerFunc is called when discovery finds no descriptor.
// Return nil to skip the message, return an error to fail.
type OnNoHandlerFunc func(ctx context.Context, messageType string) error

// hooks holds all configured observability hooks.
type hooks struct {
	onDispatch  []OnDispatchFunc
	onSuccess   []OnSuccessFunc
	onFailure   []OnFailureFunc
	onNoHandler []OnNoHandlerFunc
}

// Option configures a Mediator.
type Option func(*Mediator)

// WithOnDispatch adds a hook called just before the pipeline runs.
// Multiple hooks are called in order.
func WithOnDispatch(fn OnDispatchFunc) Option {
	return func(m *Mediator) {
		m.hooks.onDispatch = append(m.hooks.onDispatch, fn)
	}
}

// WithOnSuccess adds a hook called after a dispatch completes.
// Multiple hooks are called in order.
//
// Example:
//
//	bus.WithOnSuccess(func(ctx context.Context, messageType string, d time.Duration) {
//	    metrics.Timing("bus.dispatch", d, "message:"+messageType)
//	})
func WithOnSuccess(fn OnSuccessFunc) Option {
	return func(m *Mediator) {
		m.hooks.onSuccess = append(m.hooks.onSuccess, fn)
	}
}

// WithOnFailure adds a hook called when a dispatch fails.
// Multiple hooks are called in order.
func WithOnFailure(fn OnFailureFunc) Option {
	return func(m *Mediator) {
		m.hooks.onFailure = append(m.hooks.onFailure, fn)
	}
}

// WithOnNoHandler adds a hook called when no descriptor matches a message.
// Return nil to skip, return an error to fail.
// Multiple hooks are called in order; first error wins.
//
// Example:
//
//	bus.WithOnNoHandler(func(ctx context.Context, messageType string) error {
//	    logger.Warn().Str("message_type", messageType).Msg("event has no subscribers")
//	    return nil
//	})
func WithOnNoHandler(fn OnNoHandlerFunc) Option {
	return func(m *Mediator) {
		m.hooks.onNoHandler = append(m.hooks.onNoHandler, fn)
	}
}

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Mediator) {
		m.logger = l
	}
}

// WithTracer sets the tracer used to open one span per dispatch. By default
// the tracer comes from the global OpenTelemetry provider.
func WithTracer(t trace.Tracer) Option {
	return func(m *Mediator) {
		m.tracer = t
	}
}

// WithResolver sets the collaborator that provides handler and hook
// instances for each dispatch call.
func WithResolver(r Resolver) Option {
	return func(m *Mediator) {
		m.resolver = r
	}
}

// WithBroadcastConcurrency lets Publish run up to n event handlers at once.
// Values below two keep handlers sequential in registration order.
func WithBroadcastConcurrency(n int) Option {
	return func(m *Mediator) {
		m.concurrency = n
	}
}

func (m *Mediator) callOnDispatch(ctx context.Context, messageType string) {
	for _, fn := range m.hooks.onDispatch {
		fn(ctx, messageType)
	}
}

func (m *Mediator) callOnSuccess(ctx context.Context, messageType string, d time.Duration) {
	for _, fn := range m.hooks.onSuccess {
		fn(ctx, messageType, d)
	}
}

func (m *Mediator) callOnFailure(ctx context.Context, messageType string, err error, d time.Duration) {
	for _, fn := range m.hooks.onFailure {
		fn(ctx, messageType, err, d)
	}
}

// handleNoHandler applies the OnNoHandler policy. Without hooks the discovery
// error is returned unchanged.
func (m *Mediator) handleNoHandler(ctx context.Context, messageType string, cause error) error {
	if len(m.hooks.onNoHandler) == 0 {
		return cause
	}
	for _, fn := range m.hooks.onNoHandler {
		if err := fn(ctx, messageType); err != nil {
			return fmt.Errorf("%w: %w", cause, err)
		}
	}
	return nil
}
