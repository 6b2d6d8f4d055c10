package ingest

import (
	"context"

	"github.com/bjaus/bus"
)

// Dispatcher hands a decoded message to the application.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg any) error
}

// DispatcherFunc is a function adapter for Dispatcher.
type DispatcherFunc func(ctx context.Context, msg any) error

// Dispatch implements the Dispatcher interface.
func (f DispatcherFunc) Dispatch(ctx context.Context, msg any) error {
	return f(ctx, msg)
}

// Publish returns a Dispatcher that broadcasts messages as events on m.
func Publish(m *bus.Mediator) Dispatcher {
	return DispatcherFunc(func(ctx context.Context, msg any) error {
		return bus.Publish(ctx, m, msg)
	})
}

// Send returns a Dispatcher that sends messages as commands on m.
func Send(m *bus.Mediator) Dispatcher {
	return DispatcherFunc(func(ctx context.Context, msg any) error {
		return bus.Send(ctx, m, msg)
	})
}
