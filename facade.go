package bus

import (
	"context"
	"iter"
)

// Send dispatches a command to its single asynchronous handler. Any result
// the handler produces is discarded; use Query to receive it.
//
// Example:
//
//	if err := bus.Send(ctx, m, &PlaceOrder{ID: "o-1", Amount: 42}); err != nil {
//	    return err
//	}
func Send(ctx context.Context, m *Mediator, cmd any) error {
	_, err := Mediate(ctx, m, cmd, ExactOrFirstAssignable(), SingleAsync[any]{})
	return err
}

// SendSync dispatches a command to its single synchronous handler on the
// calling goroutine.
func SendSync(ctx context.Context, m *Mediator, cmd any) error {
	_, err := Mediate(ctx, m, cmd, ExactOrFirstAssignable(), SingleSync[any]{})
	return err
}

// Query dispatches q to its single asynchronous handler and returns the
// handler's result as R.
//
// Example:
//
//	order, err := bus.Query[*Order](ctx, m, &GetOrder{ID: "o-1"})
func Query[R any](ctx context.Context, m *Mediator, q any) (R, error) {
	return Mediate(ctx, m, q, ExactOrFirstAssignable(), SingleAsync[R]{})
}

// QuerySync dispatches q to its single synchronous handler and returns the
// handler's result as R.
func QuerySync[R any](ctx context.Context, m *Mediator, q any) (R, error) {
	return Mediate(ctx, m, q, ExactOrFirstAssignable(), SingleSync[R]{})
}

// Publish dispatches an event to every synchronous and asynchronous handler
// of its descriptor. An event without handlers is not an error once a
// descriptor exists for it.
func Publish(ctx context.Context, m *Mediator, evt any) error {
	_, err := Mediate(ctx, m, evt, ExactOrFirstAssignable(), Broadcast{Concurrency: m.concurrency})
	return err
}

// StreamQuery dispatches q to its single streaming handler. The returned
// sequence is lazy and may be ranged over once. A query skipped by the
// OnNoHandler policy yields an empty sequence.
//
// Example:
//
//	seq, err := bus.StreamQuery[*Order](ctx, m, &ListOrders{})
//	if err != nil {
//	    return err
//	}
//	for order, err := range seq {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(order.ID)
//	}
func StreamQuery[R any](ctx context.Context, m *Mediator, q any) (iter.Seq2[R, error], error) {
	seq, err := Mediate(ctx, m, q, ExactOrFirstAssignable(), SingleStream[R]{})
	if err == nil && seq == nil {
		// The no-handler policy skipped the query.
		return func(func(R, error) bool) {}, nil
	}
	return seq, err
}
