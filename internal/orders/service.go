package orders

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bjaus/bus"
)

// Notification is a message queued for a customer.
type Notification struct {
	To      string
	Subject string
}

// Service owns the order handlers and the state they act on.
type Service struct {
	Store     *Store
	Inventory *Inventory

	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	mediator *bus.Mediator
	outbox   []Notification
	dead     []DeadLetter
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used by handlers and hooks.
func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService returns a service over store and inventory.
func NewService(store *Store, inv *Inventory, opts ...ServiceOption) *Service {
	s := &Service{
		Store:     store,
		Inventory: inv,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Use sets the mediator events are published through. Handlers that publish
// fail until it is set.
func (s *Service) Use(m *bus.Mediator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mediator = m
}

func (s *Service) publish(ctx context.Context, evt any) error {
	s.mu.Lock()
	m := s.mediator
	s.mu.Unlock()
	if m == nil {
		return fmt.Errorf("orders: publish %T: no mediator", evt)
	}
	return bus.Publish(ctx, m, evt)
}

// Outbox returns the notifications queued so far.
func (s *Service) Outbox() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.outbox...)
}

func (s *Service) notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(s.outbox, n)
}

// Declarations lists every handler and hook of the service.
func (s *Service) Declarations() []bus.Declaration {
	return []bus.Declaration{
		bus.AsPreHook[any](&auditHook{s}),
		bus.AsPostHook[any](&auditHook{s}),
		bus.AsPreHook[Command](newValidationHook()),

		bus.AsFunc[*PlaceOrder, *Order](&placeOrderHandler{s}),
		bus.AsProc[*CancelOrder](&cancelOrderHandler{s}),
		bus.AsFunc[*GetOrder, *Order](&getOrderHandler{s}),
		bus.AsStream[*ListOrders, Order](&listOrdersHandler{s}),

		bus.AsProc[*OrderPlaced](&reserveStock{s}),
		bus.AsProc[*OrderPlaced](&notifyCustomer{s}),
		bus.AsProc[*OrderCancelled](&releaseStock{s}),
		bus.AsPostHook[*OrderEvent](&timeline{s}),
		bus.AsErrorHook[Event](&deadLetters{s}),
	}
}

// Register declares the event hierarchy and the service's handlers on reg.
func Register(reg *bus.Registry, s *Service) error {
	if err := bus.Extend(reg, func(e *OrderPlaced) *OrderEvent { return &e.OrderEvent }); err != nil {
		return err
	}
	if err := bus.Extend(reg, func(e *OrderCancelled) *OrderEvent { return &e.OrderEvent }); err != nil {
		return err
	}
	return reg.Register(s)
}

type placeOrderHandler struct{ s *Service }

func (h *placeOrderHandler) Call(ctx context.Context, cmd *PlaceOrder) (*Order, error) {
	o := Order{
		ID:       cmd.OrderID,
		Customer: cmd.Customer,
		Items:    cmd.Items,
		Status:   StatusPlaced,
		PlacedAt: h.s.now(),
	}
	for _, it := range cmd.Items {
		o.TotalCents += int64(it.Quantity) * it.PriceCents
	}
	if err := h.s.Store.Insert(o); err != nil {
		return nil, fmt.Errorf("place order %s: %w", o.ID, err)
	}

	evt := &OrderPlaced{
		OrderEvent: OrderEvent{OrderID: o.ID, At: o.PlacedAt},
		Customer:   o.Customer,
		Items:      o.Items,
		TotalCents: o.TotalCents,
	}
	if err := h.s.publish(ctx, evt); err != nil {
		return nil, err
	}

	stored, err := h.s.Store.Get(o.ID)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

type cancelOrderHandler struct{ s *Service }

func (h *cancelOrderHandler) Run(ctx context.Context, cmd *CancelOrder) error {
	o, err := h.s.Store.Update(cmd.OrderID, func(o *Order) error {
		if o.Status == StatusCancelled {
			return fmt.Errorf("order %s is already cancelled", o.ID)
		}
		o.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", cmd.OrderID, err)
	}

	return h.s.publish(ctx, &OrderCancelled{
		OrderEvent: OrderEvent{OrderID: o.ID, At: h.s.now()},
		Reason:     cmd.Reason,
	})
}

type getOrderHandler struct{ s *Service }

func (h *getOrderHandler) Call(_ context.Context, q *GetOrder) (*Order, error) {
	o, err := h.s.Store.Get(q.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", q.OrderID, err)
	}
	return &o, nil
}

type listOrdersHandler struct{ s *Service }

func (h *listOrdersHandler) Stream(ctx context.Context, q *ListOrders) iter.Seq2[Order, error] {
	return h.s.Store.All(ctx, func(o Order) bool {
		if q.Customer != "" && o.Customer != q.Customer {
			return false
		}
		return q.Status == "" || o.Status == q.Status
	})
}

type reserveStock struct{ s *Service }

func (h *reserveStock) Run(_ context.Context, evt *OrderPlaced) error {
	return h.s.Inventory.Reserve(evt.OrderID, evt.Items)
}

type releaseStock struct{ s *Service }

func (h *releaseStock) Run(_ context.Context, evt *OrderCancelled) error {
	if !h.s.Inventory.Release(evt.OrderID) {
		h.s.logger.Debug().Str("order_id", evt.OrderID).Msg("no reservation to release")
	}
	return nil
}

type notifyCustomer struct{ s *Service }

func (h *notifyCustomer) Run(_ context.Context, evt *OrderPlaced) error {
	h.s.notify(Notification{
		To:      evt.Customer,
		Subject: fmt.Sprintf("Order %s received", evt.OrderID),
	})
	return nil
}
