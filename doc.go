// Package bus is an in-process mediator: it routes command, query, and event
// messages to handlers, wrapping each dispatch in a pipeline of pre-handle,
// post-handle, and error hooks.
//
// # Quick Start
//
// Declare handlers and hooks, register them, and create a mediator:
//
//	type PlaceOrderHandler struct{ store Store }
//
//	func (h *PlaceOrderHandler) Call(ctx context.Context, cmd *PlaceOrder) (*Receipt, error) {
//	    return h.store.Place(ctx, cmd)
//	}
//
//	reg := bus.NewRegistry()
//	err := reg.Register(
//	    bus.AsFunc[*PlaceOrder, *Receipt](&PlaceOrderHandler{store}),
//	    bus.AsPreHook[Command](&AuditHook{}),
//	)
//
//	m := bus.New(reg)
//	receipt, err := bus.Query[*Receipt](ctx, m, &PlaceOrder{ID: "o-1"})
//
// # Capabilities
//
// A handler's execution mode follows from the interface it is declared with:
//
//   - SyncProc, SyncFunc: synchronous, run on the caller's goroutine without a context
//   - Proc, Func: asynchronous, context-aware
//   - Stream: streaming, returns an iter.Seq2 of results
//
// Hooks are declared for a message type and apply to every descriptor whose
// message type is assignable to it: the type itself, any interface it
// implements, or a base type declared with Extend. A hook declared for any
// applies to every message.
//
//   - PreHook: runs before the handler; a failure skips the handler
//   - PostHook: runs after the handler with its result
//   - ErrorHook: runs when any step failed; returning nil absorbs the failure
//
// # Registry
//
// A Registry is open while declarations are collected and sealed once the
// descriptor graph is built. Registration order of handlers and hooks does not
// matter: hooks registered before their handlers attach the same way. A sealed
// registry rejects further declarations with ErrRegistrySealed and is safe for
// concurrent dispatch.
//
// # Pipeline
//
// Every execution strategy runs the same shape:
//
//  1. Validate the message, if it implements Validate() error
//  2. Run pre-hooks in order
//  3. Run the handler (or all handlers, for Publish)
//  4. Run post-hooks in order
//
// A failure in any step goes to the applicable error hooks in order. If they
// all return nil the dispatch succeeds; without error hooks the failure is
// returned to the caller. Configuration errors the dispatch itself detects
// (ErrNoHandlerFound, ErrMultipleHandlerFound) and the context's own
// cancellation are always returned as-is and never reach error hooks. A
// handler that returns a configuration error from a nested dispatch fails
// like any other handler.
//
// # Facades
//
//   - Send, SendSync: one handler, result discarded
//   - Query, QuerySync: one handler, typed result
//   - Publish: every synchronous and asynchronous handler
//   - StreamQuery: one streaming handler, lazy single-use sequence
//
// Mediate accepts any Discovery and Execution for custom dispatch shapes.
//
// # Observability
//
// The mediator logs through zerolog, opens one OpenTelemetry span per
// dispatch, and calls the functional hooks set with WithOnDispatch,
// WithOnSuccess, WithOnFailure, and WithOnNoHandler. FromContext exposes the
// per-dispatch HandleContext, including its ID, to handlers and hooks.
package bus
