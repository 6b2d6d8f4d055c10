package bus

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/bjaus/bus"

// Resolver provides handler and hook instances for a dispatch call. It is
// the boundary to dependency-injection containers: the resolver owns
// construction, scoping, and disposal. The mediator asks for each component
// at most once per call.
type Resolver interface {
	Resolve(ctx context.Context, c Component) (any, error)
}

// ResolverFunc is a function adapter for Resolver.
type ResolverFunc func(ctx context.Context, c Component) (any, error)

// Resolve implements the Resolver interface.
func (f ResolverFunc) Resolve(ctx context.Context, c Component) (any, error) {
	return f(ctx, c)
}

// InstanceResolver returns the default Resolver, which hands out the value
// each component was registered with.
func InstanceResolver() Resolver {
	return ResolverFunc(func(_ context.Context, c Component) (any, error) {
		if c.Instance == nil {
			return nil, errors.New("component has no instance")
		}
		return c.Instance, nil
	})
}

// Mediator orchestrates discovery, per-call context construction, and
// execution. It holds no state across calls and is safe for concurrent use.
type Mediator struct {
	registry    *Registry
	resolver    Resolver
	logger      zerolog.Logger
	tracer      trace.Tracer
	concurrency int
	hooks       hooks
}

// New creates a Mediator over reg, sealing it.
//
// Example:
//
//	reg := bus.NewRegistry()
//	_ = reg.Register(bus.AsProc[*PlaceOrder](&PlaceOrderHandler{}))
//
//	m := bus.New(reg,
//	    bus.WithLogger(log.Logger),
//	    bus.WithOnFailure(func(ctx context.Context, messageType string, err error, d time.Duration) {
//	        metrics.Incr("bus.failure", "message:"+messageType)
//	    }),
//	)
func New(reg *Registry, opts ...Option) *Mediator {
	reg.Seal()
	m := &Mediator{
		registry: reg,
		resolver: InstanceResolver(),
		logger:   zerolog.Nop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the sealed registry the mediator dispatches from.
func (m *Mediator) Registry() *Registry {
	return m.registry
}

// Mediate dispatches msg: it resolves a descriptor with d, builds the
// per-call HandleContext, and runs e.
//
// This is a package-level function (not a method) due to Go generics
// limitations: methods cannot have type parameters independent of the receiver.
//
// Callers receive either a result, or an error that is exactly one of: a
// configuration error (ErrNoHandlerFound, ErrMultipleHandlerFound), a handler
// or hook failure no error hook absorbed, or the context's cancellation.
func Mediate[R any](ctx context.Context, m *Mediator, msg any, d Discovery, e Execution[R]) (R, error) {
	var zero R
	if msg == nil {
		return zero, ErrNilMessage
	}
	messageType := reflect.TypeOf(msg).String()

	ctx, span := m.tracer.Start(ctx, "bus.Mediate", trace.WithAttributes(
		attribute.String("bus.message_type", messageType),
	))
	defer span.End()

	match, err := d.Discover(m.registry, msg)
	if err != nil {
		if errors.Is(err, ErrNoHandlerFound) {
			err = m.handleNoHandler(ctx, messageType, err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return zero, err
	}

	hc := newHandleContext(msg)
	ctx = withHandleContext(ctx, hc)
	span.SetAttributes(
		attribute.String("bus.dispatch_id", hc.ID.String()),
		attribute.String("bus.descriptor", match.Descriptor.MessageType().String()),
	)

	m.logger.Debug().
		Stringer("dispatch_id", hc.ID).
		Str("message_type", messageType).
		Stringer("descriptor", match.Descriptor.MessageType()).
		Bool("exact", match.Kind == MatchExact).
		Msg("dispatching message")
	m.callOnDispatch(ctx, messageType)

	inv := newInvocation(hc, match, m.resolver, m.logger)
	start := time.Now()
	out, err := e.Execute(ctx, inv)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.callOnFailure(ctx, messageType, err, duration)
		return zero, err
	}
	m.callOnSuccess(ctx, messageType, duration)
	return out, nil
}
