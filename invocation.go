package bus

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/rs/zerolog"
)

// validatable is the interface for message self-validation.
// Compatible with github.com/go-ozzo/ozzo-validation/v4.
type validatable interface {
	Validate() error
}

// resolveError wraps instantiation failures so they are never routed to
// error hooks.
type resolveError struct {
	comp Component
	err  error
}

func (e *resolveError) Error() string {
	return fmt.Sprintf("bus: resolve %s: %v", e.comp.Type, e.err)
}
func (e *resolveError) Unwrap() error { return e.err }

// Invocation is the per-call view of a resolved descriptor that execution
// strategies drive: it resolves handler and hook instances on demand and
// runs each pipeline phase.
type Invocation struct {
	hc       *HandleContext
	match    Match
	msg      any
	resolver Resolver
	logger   zerolog.Logger

	mu        sync.Mutex
	instances map[int]any

	failMu sync.Mutex
}

func newInvocation(hc *HandleContext, match Match, resolver Resolver, logger zerolog.Logger) *Invocation {
	return &Invocation{
		hc:        hc,
		match:     match,
		msg:       match.convert(hc.Message),
		resolver:  resolver,
		logger:    logger,
		instances: make(map[int]any),
	}
}

// Descriptor returns the resolved message descriptor.
func (inv *Invocation) Descriptor() *MessageDescriptor { return inv.match.Descriptor }

// HandleContext returns the per-call context.
func (inv *Invocation) HandleContext() *HandleContext { return inv.hc }

// instance returns the component's instance for this call, asking the
// resolver at most once per component.
func (inv *Invocation) instance(ctx context.Context, c Component) (any, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if v, ok := inv.instances[c.ID]; ok {
		return v, nil
	}
	v, err := inv.resolver.Resolve(ctx, c)
	if err != nil {
		return nil, &resolveError{comp: c, err: err}
	}
	inv.instances[c.ID] = v
	return v, nil
}

// Handlers returns the descriptor's handlers whose execution mode is one of
// modes, in registration order.
func (inv *Invocation) Handlers(modes ...ExecutionMode) []BoundHandler {
	ds := inv.match.Descriptor.HandlersFor(modes...)
	out := make([]BoundHandler, len(ds))
	for i, d := range ds {
		out[i] = BoundHandler{inv: inv, d: d}
	}
	return out
}

// Validate runs the message's own Validate method, if it has one.
func (inv *Invocation) Validate() error {
	if v, ok := inv.hc.Message.(validatable); ok {
		if err := v.Validate(); err != nil {
			return &ValidationError{err: err}
		}
	}
	return nil
}

// RunPreHooks runs the applicable pre-handle hooks in order, stopping at the
// first failure or at cancellation.
func (inv *Invocation) RunPreHooks(ctx context.Context) error {
	for _, a := range inv.match.Descriptor.pre {
		if err := ctx.Err(); err != nil {
			return err
		}
		instance, err := inv.instance(ctx, a.hook.Component)
		if err != nil {
			return err
		}
		if err := a.hook.pre(ctx, instance, a.cast(inv.msg)); err != nil {
			return err
		}
	}
	return nil
}

// RunPostHooks runs the applicable post-handle hooks in order with the
// recorded result, stopping at the first failure or at cancellation.
func (inv *Invocation) RunPostHooks(ctx context.Context) error {
	result := inv.hc.Result()
	for _, a := range inv.match.Descriptor.post {
		if err := ctx.Err(); err != nil {
			return err
		}
		instance, err := inv.instance(ctx, a.hook.Component)
		if err != nil {
			return err
		}
		if err := a.hook.post(ctx, instance, a.cast(inv.msg), result); err != nil {
			return err
		}
	}
	return nil
}

// HasErrorHooks reports whether any error hook applies to the message.
func (inv *Invocation) HasErrorHooks() bool {
	return len(inv.match.Descriptor.errs) > 0
}

// HandleFailure routes err into the error-hook chain. It returns nil when the
// chain absorbed the failure, err unchanged when no error hook applies or err
// is a cancellation or instantiation error, and an ErrorHookError when an
// error hook fails. Configuration errors returned by a handler, such as those
// from a nested dispatch, are routed like any other failure.
//
// HandleFailure is safe to call from concurrent handlers; routing is serialized.
func (inv *Invocation) HandleFailure(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var rerr *resolveError
	if isCancellation(ctx, err) || errors.As(err, &rerr) {
		return err
	}
	if !inv.HasErrorHooks() {
		return err
	}

	inv.failMu.Lock()
	defer inv.failMu.Unlock()

	inv.hc.setErr(err)
	result := inv.hc.Result()
	for _, a := range inv.match.Descriptor.errs {
		instance, ierr := inv.instance(ctx, a.hook.Component)
		if ierr != nil {
			return &ErrorHookError{Hook: a.hook.Type, Err: ierr, Cause: err}
		}
		if herr := a.hook.err(ctx, instance, a.cast(inv.msg), result, err); herr != nil {
			return &ErrorHookError{Hook: a.hook.Type, Err: herr, Cause: err}
		}
	}

	inv.logger.Warn().
		Err(err).
		Stringer("dispatch_id", inv.hc.ID).
		Stringer("message_type", inv.match.Descriptor.messageType).
		Msg("failure absorbed by error hooks")
	return nil
}

func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// BoundHandler is a handler descriptor bound to one invocation.
type BoundHandler struct {
	inv *Invocation
	d   *HandlerDescriptor
}

// Descriptor returns the handler's descriptor.
func (b BoundHandler) Descriptor() *HandlerDescriptor { return b.d }

// Call runs a synchronous or asynchronous handler and records its result in
// the HandleContext.
func (b BoundHandler) Call(ctx context.Context) (any, error) {
	if b.d.call == nil {
		return nil, fmt.Errorf("bus: %s handler %s cannot be called", b.d.mode, b.d.Type)
	}
	instance, err := b.inv.instance(ctx, b.d.Component)
	if err != nil {
		return nil, err
	}
	out, err := b.d.call(ctx, instance, b.inv.msg)
	if err != nil {
		return nil, err
	}
	if b.d.resultType != nil {
		b.inv.hc.SetResult(out)
	}
	return out, nil
}

// Stream starts a streaming handler and returns its sequence.
func (b BoundHandler) Stream(ctx context.Context) (iter.Seq2[any, error], error) {
	if b.d.stream == nil {
		return nil, fmt.Errorf("bus: %s handler %s cannot stream", b.d.mode, b.d.Type)
	}
	instance, err := b.inv.instance(ctx, b.d.Component)
	if err != nil {
		return nil, err
	}
	return b.d.stream(ctx, instance, b.inv.msg), nil
}
