package orders

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/bjaus/bus"
)

type ServiceSuite struct {
	suite.Suite
	ctx context.Context
	log *bytes.Buffer
	svc *Service
	m   *bus.Mediator
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

var placedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.log = &bytes.Buffer{}
	s.svc = NewService(
		NewStore(),
		NewInventory(map[string]int{"apple": 10, "pear": 1}),
		WithLogger(zerolog.New(s.log)),
		WithClock(func() time.Time { return placedAt }),
	)

	reg := bus.NewRegistry()
	s.Require().NoError(Register(reg, s.svc))
	s.m = bus.New(reg)
	s.svc.Use(s.m)
}

func (s *ServiceSuite) place(id, customer string, items ...Item) (*Order, error) {
	return bus.Query[*Order](s.ctx, s.m, &PlaceOrder{OrderID: id, Customer: customer, Items: items})
}

func (s *ServiceSuite) TestPlaceOrder() {
	o, err := s.place("o-1", "ada@example.com", Item{SKU: "apple", Quantity: 3, PriceCents: 50})
	s.Require().NoError(err)

	s.Assert().Equal("o-1", o.ID)
	s.Assert().Equal(int64(150), o.TotalCents)
	s.Assert().Equal(StatusPlaced, o.Status)
	s.Assert().Equal(placedAt, o.PlacedAt)
	s.Assert().Equal([]string{"placed"}, o.History)
	s.Assert().Equal(7, s.svc.Inventory.Stock("apple"))
	s.Assert().Equal([]Notification{{To: "ada@example.com", Subject: "Order o-1 received"}}, s.svc.Outbox())
	s.Assert().Empty(s.svc.DeadLetters())
}

func (s *ServiceSuite) TestPlaceOrderTwice() {
	_, err := s.place("o-1", "ada@example.com", Item{SKU: "apple", Quantity: 1})
	s.Require().NoError(err)

	_, err = s.place("o-1", "ada@example.com", Item{SKU: "apple", Quantity: 1})
	s.Assert().ErrorIs(err, ErrExists)
	s.Assert().Equal(9, s.svc.Inventory.Stock("apple"))
}

func (s *ServiceSuite) TestStructTagsAreCheckedBeforeHandling() {
	tests := map[string]*PlaceOrder{
		"missing id":     {Customer: "ada@example.com", Items: []Item{{SKU: "apple", Quantity: 1}}},
		"bad email":      {OrderID: "o-1", Customer: "ada", Items: []Item{{SKU: "apple", Quantity: 1}}},
		"no items":       {OrderID: "o-1", Customer: "ada@example.com"},
		"zero quantity":  {OrderID: "o-1", Customer: "ada@example.com", Items: []Item{{SKU: "apple"}}},
		"negative price": {OrderID: "o-1", Customer: "ada@example.com", Items: []Item{{SKU: "apple", Quantity: 1, PriceCents: -1}}},
	}

	for name, cmd := range tests {
		s.Run(name, func() {
			_, err := bus.Query[*Order](s.ctx, s.m, cmd)

			s.Assert().ErrorContains(err, "invalid *orders.PlaceOrder")
			_, getErr := s.svc.Store.Get("o-1")
			s.Assert().ErrorIs(getErr, ErrNotFound)
		})
	}
}

func (s *ServiceSuite) TestDuplicateSKUFailsMessageValidation() {
	_, err := s.place("o-1", "ada@example.com",
		Item{SKU: "apple", Quantity: 1},
		Item{SKU: "apple", Quantity: 2},
	)

	var verr *bus.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Assert().ErrorContains(err, `duplicate sku "apple"`)
}

func (s *ServiceSuite) TestOutOfStockIsDeadLettered() {
	o, err := s.place("o-1", "ada@example.com", Item{SKU: "pear", Quantity: 2})
	s.Require().NoError(err, "subscriber failures never fail the command")

	dead := s.svc.DeadLetters()
	s.Require().Len(dead, 1)
	s.Assert().ErrorIs(dead[0].Err, ErrOutOfStock)
	s.Assert().IsType(&OrderPlaced{}, dead[0].Message)

	s.Assert().Equal(1, s.svc.Inventory.Stock("pear"))
	s.Assert().Len(s.svc.Outbox(), 1, "sibling subscribers still ran")
	s.Assert().Equal([]string{"placed"}, o.History)
	s.Assert().Contains(s.log.String(), `"message":"event handler failed"`)
}

func (s *ServiceSuite) TestCancelOrder() {
	_, err := s.place("o-1", "ada@example.com", Item{SKU: "apple", Quantity: 4})
	s.Require().NoError(err)
	s.Require().Equal(6, s.svc.Inventory.Stock("apple"))

	s.Require().NoError(bus.Send(s.ctx, s.m, &CancelOrder{OrderID: "o-1", Reason: "changed mind"}))

	o, err := bus.Query[*Order](s.ctx, s.m, &GetOrder{OrderID: "o-1"})
	s.Require().NoError(err)
	s.Assert().Equal(StatusCancelled, o.Status)
	s.Assert().Equal([]string{"placed", "cancelled: changed mind"}, o.History)
	s.Assert().Equal(10, s.svc.Inventory.Stock("apple"))

	err = bus.Send(s.ctx, s.m, &CancelOrder{OrderID: "o-1"})
	s.Assert().ErrorContains(err, "already cancelled")
}

func (s *ServiceSuite) TestCancelOutOfStockOrderReleasesNothing() {
	_, err := s.place("o-1", "ada@example.com", Item{SKU: "pear", Quantity: 2})
	s.Require().NoError(err)

	s.Require().NoError(bus.Send(s.ctx, s.m, &CancelOrder{OrderID: "o-1"}))
	s.Assert().Equal(1, s.svc.Inventory.Stock("pear"))
}

func (s *ServiceSuite) TestGetUnknownOrder() {
	_, err := bus.Query[*Order](s.ctx, s.m, &GetOrder{OrderID: "nope"})
	s.Assert().ErrorIs(err, ErrNotFound)
}

func (s *ServiceSuite) TestListOrders() {
	for _, p := range []struct{ id, customer string }{
		{"o-1", "ada@example.com"},
		{"o-2", "grace@example.com"},
		{"o-3", "ada@example.com"},
	} {
		_, err := s.place(p.id, p.customer, Item{SKU: "apple", Quantity: 1})
		s.Require().NoError(err)
	}
	s.Require().NoError(bus.Send(s.ctx, s.m, &CancelOrder{OrderID: "o-3"}))

	collect := func(q *ListOrders) []string {
		seq, err := bus.StreamQuery[Order](s.ctx, s.m, q)
		s.Require().NoError(err)
		var ids []string
		for o, err := range seq {
			s.Require().NoError(err)
			ids = append(ids, o.ID)
		}
		return ids
	}

	s.Assert().Equal([]string{"o-1", "o-2", "o-3"}, collect(&ListOrders{}))
	s.Assert().Equal([]string{"o-1", "o-3"}, collect(&ListOrders{Customer: "ada@example.com"}))
	s.Assert().Equal([]string{"o-3"}, collect(&ListOrders{Status: StatusCancelled}))
}

func (s *ServiceSuite) TestAuditLog() {
	_, err := s.place("o-1", "ada@example.com", Item{SKU: "apple", Quantity: 1})
	s.Require().NoError(err)

	out := s.log.String()
	s.Assert().Contains(out, `"message":"handling message"`)
	s.Assert().Contains(out, `"message_type":"*orders.PlaceOrder"`)
	s.Assert().Contains(out, `"message_type":"*orders.OrderPlaced"`)
	s.Assert().Contains(out, `"result":"*orders.Order"`)
	s.Assert().Contains(out, `"dispatch_id":`)
}

func (s *ServiceSuite) TestPublishWithoutMediator() {
	svc := NewService(NewStore(), NewInventory(nil))
	reg := bus.NewRegistry()
	s.Require().NoError(Register(reg, svc))
	m := bus.New(reg)

	_, err := bus.Query[*Order](s.ctx, m, &PlaceOrder{
		OrderID:  "o-1",
		Customer: "ada@example.com",
		Items:    []Item{{SKU: "apple", Quantity: 1}},
	})
	s.Assert().ErrorContains(err, "no mediator")
}
