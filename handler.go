package bus

import (
	"context"
	"iter"
)

// Proc (procedure) handles a message without returning a result.
// Use this for commands without a result and for event subscribers.
//
// Procs run in the asynchronous execution mode: they receive the dispatch
// context and are expected to honor its cancellation.
//
// Example:
//
//	type ReserveStockProc struct {
//	    stock StockStore
//	}
//
//	func (p *ReserveStockProc) Run(ctx context.Context, cmd *ReserveStock) error {
//	    return p.stock.Reserve(ctx, cmd.SKU, cmd.Quantity)
//	}
type Proc[M any] interface {
	Run(ctx context.Context, msg M) error
}

// ProcFunc is a function adapter for Proc.
type ProcFunc[M any] func(ctx context.Context, msg M) error

// Run implements the Proc interface.
func (f ProcFunc[M]) Run(ctx context.Context, msg M) error {
	return f(ctx, msg)
}

// Func (function) handles a message and returns a typed result.
// Use this for commands with a result and for queries.
//
// Example:
//
//	type GetOrderFunc struct {
//	    orders OrderStore
//	}
//
//	func (f *GetOrderFunc) Call(ctx context.Context, q *GetOrder) (*Order, error) {
//	    return f.orders.Get(ctx, q.ID)
//	}
type Func[M, R any] interface {
	Call(ctx context.Context, msg M) (R, error)
}

// FuncFunc is a function adapter for Func.
type FuncFunc[M, R any] func(ctx context.Context, msg M) (R, error)

// Call implements the Func interface.
func (f FuncFunc[M, R]) Call(ctx context.Context, msg M) (R, error) {
	return f(ctx, msg)
}

// SyncProc handles a message on the calling goroutine without a context.
// It is selected by the synchronous execution strategy.
type SyncProc[M any] interface {
	RunSync(msg M) error
}

// SyncProcFunc is a function adapter for SyncProc.
type SyncProcFunc[M any] func(msg M) error

// RunSync implements the SyncProc interface.
func (f SyncProcFunc[M]) RunSync(msg M) error {
	return f(msg)
}

// SyncFunc handles a message synchronously and returns a typed result.
type SyncFunc[M, R any] interface {
	CallSync(msg M) (R, error)
}

// SyncFuncFunc is a function adapter for SyncFunc.
type SyncFuncFunc[M, R any] func(msg M) (R, error)

// CallSync implements the SyncFunc interface.
func (f SyncFuncFunc[M, R]) CallSync(msg M) (R, error) {
	return f(msg)
}

// Stream handles a message by producing a lazy, finite sequence of results.
// The sequence is consumed once by the caller at its own pace. A non-nil
// error element ends the stream.
//
// Example:
//
//	func (s *ListOrdersStream) Stream(ctx context.Context, q *ListOrders) iter.Seq2[*Order, error] {
//	    return func(yield func(*Order, error) bool) {
//	        for _, o := range s.orders.All() {
//	            if !yield(o, nil) {
//	                return
//	            }
//	        }
//	    }
//	}
type Stream[M, R any] interface {
	Stream(ctx context.Context, msg M) iter.Seq2[R, error]
}

// StreamFunc is a function adapter for Stream.
type StreamFunc[M, R any] func(ctx context.Context, msg M) iter.Seq2[R, error]

// Stream implements the Stream interface.
func (f StreamFunc[M, R]) Stream(ctx context.Context, msg M) iter.Seq2[R, error] {
	return f(ctx, msg)
}

// PreHook runs before the handler of every message that is assignable to M.
// Declaring a PreHook against a broad marker interface (or any) makes it global.
type PreHook[M any] interface {
	PreHandle(ctx context.Context, msg M) error
}

// PreHookFunc is a function adapter for PreHook.
type PreHookFunc[M any] func(ctx context.Context, msg M) error

// PreHandle implements the PreHook interface.
func (f PreHookFunc[M]) PreHandle(ctx context.Context, msg M) error {
	return f(ctx, msg)
}

// PostHook runs after the handler of every message that is assignable to M.
// result is the handler's result, or nil for handlers without one.
type PostHook[M any] interface {
	PostHandle(ctx context.Context, msg M, result any) error
}

// PostHookFunc is a function adapter for PostHook.
type PostHookFunc[M any] func(ctx context.Context, msg M, result any) error

// PostHandle implements the PostHook interface.
func (f PostHookFunc[M]) PostHandle(ctx context.Context, msg M, result any) error {
	return f(ctx, msg, result)
}

// ErrorHook receives failures raised by validation, pre-hooks, handlers, or
// post-hooks of messages assignable to M. When at least one error hook
// applies, the failure is absorbed and the dispatch completes normally.
//
// Returning an error stops the error-hook chain and fails the dispatch.
type ErrorHook[M any] interface {
	HandleError(ctx context.Context, msg M, result any, err error) error
}

// ErrorHookFunc is a function adapter for ErrorHook.
type ErrorHookFunc[M any] func(ctx context.Context, msg M, result any, err error) error

// HandleError implements the ErrorHook interface.
func (f ErrorHookFunc[M]) HandleError(ctx context.Context, msg M, result any, err error) error {
	return f(ctx, msg, result, err)
}
