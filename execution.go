package bus

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
)

// Execution runs the pipeline for a resolved invocation and produces a result
// of shape R.
//
// All strategies share one shape: select eligible handlers, run pre-hooks,
// run the handler(s), run post-hooks. A failure in any step is routed to the
// error hooks when at least one applies, and propagated otherwise.
type Execution[R any] interface {
	Execute(ctx context.Context, inv *Invocation) (R, error)
}

// SingleSync runs exactly one synchronous handler on the calling goroutine.
// Handlers never receive a context; hooks receive the one passed to Mediate.
type SingleSync[R any] struct{}

// Execute implements the Execution interface.
func (SingleSync[R]) Execute(ctx context.Context, inv *Invocation) (R, error) {
	var zero R
	h, err := single(inv, Synchronous)
	if err != nil {
		return zero, err
	}
	out, err := runSingle(ctx, inv, h)
	if err != nil {
		return zero, err
	}
	return as[R](out)
}

// SingleAsync runs exactly one asynchronous handler. Pre-hooks, handler, and
// post-hooks run strictly in sequence; the context is checked before each
// step and a cancellation is returned as-is, never routed to error hooks.
type SingleAsync[R any] struct{}

// Execute implements the Execution interface.
func (SingleAsync[R]) Execute(ctx context.Context, inv *Invocation) (R, error) {
	var zero R
	h, err := single(inv, Asynchronous)
	if err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	out, err := runSingle(ctx, inv, h)
	if err != nil {
		return zero, err
	}
	return as[R](out)
}

// Broadcast runs every synchronous and asynchronous handler of the
// descriptor. Zero handlers is not an error. A failing handler is routed to
// the error hooks on its own and does not stop its siblings.
//
// With Concurrency above one, handlers run on a bounded goroutine pool. All
// pre-hooks finish before any handler starts, and all handlers finish before
// any post-hook starts.
type Broadcast struct {
	Concurrency int
}

// Execute implements the Execution interface.
func (b Broadcast) Execute(ctx context.Context, inv *Invocation) (struct{}, error) {
	var none struct{}

	if err := ctx.Err(); err != nil {
		return none, err
	}
	if err := inv.Validate(); err != nil {
		return none, inv.HandleFailure(ctx, err)
	}
	if err := inv.RunPreHooks(ctx); err != nil {
		return none, inv.HandleFailure(ctx, err)
	}

	handlers := inv.Handlers(Synchronous, Asynchronous)
	errs := make([]error, len(handlers))
	run := func(i int, h BoundHandler) {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			return
		}
		if _, err := h.Call(ctx); err != nil {
			errs[i] = inv.HandleFailure(ctx, err)
		}
	}

	if b.Concurrency > 1 && len(handlers) > 1 {
		p := pool.New().WithMaxGoroutines(b.Concurrency)
		for i, h := range handlers {
			p.Go(func() { run(i, h) })
		}
		p.Wait()
	} else {
		for i, h := range handlers {
			run(i, h)
		}
	}

	if err := ctx.Err(); err != nil {
		return none, err
	}
	if err := errors.Join(errs...); err != nil {
		return none, err
	}
	if err := inv.RunPostHooks(ctx); err != nil {
		return none, inv.HandleFailure(ctx, err)
	}
	return none, nil
}

// SingleStream runs exactly one streaming handler and returns its results as
// a lazy, single-use sequence. Nothing runs until the caller iterates:
// pre-hooks run before the first element, post-hooks only after the last
// element was consumed. Breaking out early skips the post-hooks.
//
// Failures are delivered as the final (zero, err) element unless an error
// hook absorbed them, in which case the sequence simply ends.
type SingleStream[R any] struct{}

// Execute implements the Execution interface.
func (SingleStream[R]) Execute(ctx context.Context, inv *Invocation) (iter.Seq2[R, error], error) {
	h, err := single(inv, Streaming)
	if err != nil {
		return nil, err
	}

	var consumed atomic.Bool
	return func(yield func(R, error) bool) {
		var zero R
		if consumed.Swap(true) {
			yield(zero, ErrStreamConsumed)
			return
		}
		fail := func(err error) {
			if ferr := inv.HandleFailure(ctx, err); ferr != nil {
				yield(zero, ferr)
			}
		}

		if err := inv.Validate(); err != nil {
			fail(err)
			return
		}
		if err := inv.RunPreHooks(ctx); err != nil {
			fail(err)
			return
		}
		seq, err := h.Stream(ctx)
		if err != nil {
			fail(err)
			return
		}
		for v, err := range seq {
			if err != nil {
				fail(err)
				return
			}
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}
			r, err := as[R](v)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err := inv.RunPostHooks(ctx); err != nil {
			fail(err)
		}
	}, nil
}

// single enforces the exactly-one-handler rule before any hook runs.
func single(inv *Invocation, mode ExecutionMode) (BoundHandler, error) {
	hs := inv.Handlers(mode)
	switch len(hs) {
	case 0:
		return BoundHandler{}, &NoHandlerFoundError{MessageType: inv.Descriptor().MessageType(), Mode: mode}
	case 1:
		return hs[0], nil
	default:
		return BoundHandler{}, &MultipleHandlerFoundError{
			MessageType: inv.Descriptor().MessageType(),
			Mode:        mode,
			Count:       len(hs),
		}
	}
}

// runSingle runs validation, pre-hooks, the handler, and post-hooks in
// sequence. When an error hook absorbs a failure the recorded result (if
// any) is returned with a nil error.
func runSingle(ctx context.Context, inv *Invocation, h BoundHandler) (any, error) {
	err := func() error {
		if err := inv.Validate(); err != nil {
			return err
		}
		if err := inv.RunPreHooks(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := h.Call(ctx); err != nil {
			return err
		}
		return inv.RunPostHooks(ctx)
	}()
	if err != nil {
		if ferr := inv.HandleFailure(ctx, err); ferr != nil {
			return nil, ferr
		}
	}
	return inv.hc.Result(), nil
}

func as[R any](v any) (R, error) {
	var zero R
	if v == nil {
		return zero, nil
	}
	r, ok := v.(R)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %s", ErrResultType, v, reflect.TypeFor[R]())
	}
	return r, nil
}
