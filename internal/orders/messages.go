package orders

import (
	"fmt"
	"time"
)

// Command marks messages that change order state.
type Command interface{ isCommand() }

// Event marks messages that report a state change.
type Event interface{ isEvent() }

// Item is one line of an order.
type Item struct {
	SKU        string `json:"sku" validate:"required"`
	Quantity   int    `json:"quantity" validate:"min=1"`
	PriceCents int64  `json:"price_cents" validate:"min=0"`
}

// PlaceOrder asks for a new order. It is answered with the stored *Order.
type PlaceOrder struct {
	OrderID  string `json:"order_id" validate:"required"`
	Customer string `json:"customer" validate:"required,email"`
	Items    []Item `json:"items" validate:"required,min=1,dive"`
}

func (*PlaceOrder) isCommand() {}

// Validate rejects orders that list the same SKU twice.
func (c *PlaceOrder) Validate() error {
	seen := make(map[string]bool, len(c.Items))
	for _, it := range c.Items {
		if seen[it.SKU] {
			return fmt.Errorf("duplicate sku %q", it.SKU)
		}
		seen[it.SKU] = true
	}
	return nil
}

// CancelOrder cancels a placed order.
type CancelOrder struct {
	OrderID string `json:"order_id" validate:"required"`
	Reason  string `json:"reason" validate:"max=200"`
}

func (*CancelOrder) isCommand() {}

// OrderEvent is the parent of every order event. Hooks declared against it
// see all of them.
type OrderEvent struct {
	OrderID string    `json:"order_id" validate:"required"`
	At      time.Time `json:"at"`
}

func (*OrderEvent) isEvent() {}

// OrderPlaced is published once an order is stored.
type OrderPlaced struct {
	OrderEvent
	Customer   string `json:"customer"`
	Items      []Item `json:"items"`
	TotalCents int64  `json:"total_cents"`
}

// OrderCancelled is published once an order is cancelled.
type OrderCancelled struct {
	OrderEvent
	Reason string `json:"reason"`
}

// GetOrder looks up one order.
type GetOrder struct {
	OrderID string `json:"order_id"`
}

// ListOrders streams stored orders, oldest first. Empty filters match all.
type ListOrders struct {
	Customer string `json:"customer"`
	Status   Status `json:"status"`
}
