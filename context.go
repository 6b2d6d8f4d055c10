package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// HandleContext is the per-dispatch state shared by the hooks and handlers of
// one mediate call. It is never shared between calls.
type HandleContext struct {
	// ID identifies the dispatch call, for correlating logs and traces.
	ID uuid.UUID
	// Message is the message as it was dispatched.
	Message any

	mu     sync.Mutex
	result any
	err    error
}

func newHandleContext(msg any) *HandleContext {
	return &HandleContext{ID: uuid.New(), Message: msg}
}

// Result returns the handler result recorded so far.
func (c *HandleContext) Result() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// SetResult replaces the recorded result. Handlers without a return value
// may use it to hand a result to post-hooks.
func (c *HandleContext) SetResult(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = v
}

// Err returns the most recent pipeline failure routed to error hooks.
func (c *HandleContext) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *HandleContext) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

type handleContextKey struct{}

// FromContext returns the HandleContext of the dispatch that ctx belongs to.
func FromContext(ctx context.Context) (*HandleContext, bool) {
	hc, ok := ctx.Value(handleContextKey{}).(*HandleContext)
	return hc, ok
}

func withHandleContext(ctx context.Context, hc *HandleContext) context.Context {
	return context.WithValue(ctx, handleContextKey{}, hc)
}
