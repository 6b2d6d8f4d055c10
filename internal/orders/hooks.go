package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bjaus/bus"
)

// DeadLetter is an event whose handler failed.
type DeadLetter struct {
	Message any
	Err     error
	At      time.Time
}

// DeadLetters returns the event failures absorbed so far.
func (s *Service) DeadLetters() []DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DeadLetter(nil), s.dead...)
}

// auditHook logs every message around its handler.
type auditHook struct{ s *Service }

func (h *auditHook) PreHandle(ctx context.Context, msg any) error {
	e := h.s.logger.Info().Type("message_type", msg)
	if hc, ok := bus.FromContext(ctx); ok {
		e = e.Str("dispatch_id", hc.ID.String())
	}
	e.Msg("handling message")
	return nil
}

func (h *auditHook) PostHandle(ctx context.Context, msg any, result any) error {
	e := h.s.logger.Info().Type("message_type", msg)
	if hc, ok := bus.FromContext(ctx); ok {
		e = e.Str("dispatch_id", hc.ID.String())
	}
	if result != nil {
		e = e.Type("result", result)
	}
	e.Msg("message handled")
	return nil
}

// validationHook checks the struct tags of commands before they are handled.
type validationHook struct {
	validate *validator.Validate
}

func newValidationHook() *validationHook {
	return &validationHook{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (h *validationHook) PreHandle(_ context.Context, cmd Command) error {
	if err := h.validate.Struct(cmd); err != nil {
		return fmt.Errorf("invalid %T: %w", cmd, err)
	}
	return nil
}

// timeline appends every order event to the order's history.
type timeline struct{ s *Service }

func (h *timeline) PostHandle(ctx context.Context, evt *OrderEvent, _ any) error {
	entry := "event"
	if hc, ok := bus.FromContext(ctx); ok {
		switch m := hc.Message.(type) {
		case *OrderPlaced:
			entry = "placed"
		case *OrderCancelled:
			entry = "cancelled"
			if m.Reason != "" {
				entry += ": " + m.Reason
			}
		}
	}
	_, err := h.s.Store.Update(evt.OrderID, func(o *Order) error {
		o.History = append(o.History, entry)
		return nil
	})
	return err
}

// deadLetters records event handler failures and absorbs them.
type deadLetters struct{ s *Service }

func (h *deadLetters) HandleError(_ context.Context, evt Event, _ any, err error) error {
	h.s.logger.Warn().Err(err).Type("message_type", evt).Msg("event handler failed")
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.s.dead = append(h.s.dead, DeadLetter{Message: evt, Err: err, At: h.s.now()})
	return nil
}
