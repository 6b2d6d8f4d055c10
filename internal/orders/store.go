package orders

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned for unknown order IDs.
	ErrNotFound = errors.New("order not found")

	// ErrExists is returned when an order ID is placed twice.
	ErrExists = errors.New("order already exists")

	// ErrOutOfStock is returned when a reservation exceeds the stock.
	ErrOutOfStock = errors.New("out of stock")
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPlaced    Status = "placed"
	StatusCancelled Status = "cancelled"
)

// Order is the stored state of an order.
type Order struct {
	ID         string    `json:"id"`
	Customer   string    `json:"customer"`
	Items      []Item    `json:"items"`
	TotalCents int64     `json:"total_cents"`
	Status     Status    `json:"status"`
	PlacedAt   time.Time `json:"placed_at"`
	History    []string  `json:"history,omitempty"`
}

func (o Order) clone() Order {
	o.Items = slices.Clone(o.Items)
	o.History = slices.Clone(o.History)
	return o
}

// Store keeps orders in memory in insertion order.
type Store struct {
	mu     sync.RWMutex
	orders map[string]*Order
	order  []string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{orders: make(map[string]*Order)}
}

// Insert stores a new order.
func (s *Store) Insert(o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return ErrExists
	}
	c := o.clone()
	s.orders[o.ID] = &c
	s.order = append(s.order, o.ID)
	return nil
}

// Update applies fn to the stored order with the given ID.
func (s *Store) Update(id string, fn func(*Order) error) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	c := o.clone()
	if err := fn(&c); err != nil {
		return Order{}, err
	}
	*o = c
	return c.clone(), nil
}

// Get returns a copy of the order with the given ID.
func (s *Store) Get(id string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o.clone(), nil
}

// All yields copies of all orders matching keep, oldest first. The lock is
// not held while the caller consumes an element.
func (s *Store) All(ctx context.Context, keep func(Order) bool) iter.Seq2[Order, error] {
	return func(yield func(Order, error) bool) {
		s.mu.RLock()
		ids := slices.Clone(s.order)
		s.mu.RUnlock()

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				yield(Order{}, err)
				return
			}
			o, err := s.Get(id)
			if err != nil || !keep(o) {
				continue
			}
			if !yield(o, nil) {
				return
			}
		}
	}
}

// Inventory tracks stock per SKU and the reservations held by orders.
// Unknown SKUs have no stock.
type Inventory struct {
	mu       sync.Mutex
	stock    map[string]int
	reserved map[string][]Item
}

// NewInventory returns an inventory seeded with stock.
func NewInventory(stock map[string]int) *Inventory {
	inv := &Inventory{
		stock:    make(map[string]int, len(stock)),
		reserved: make(map[string][]Item),
	}
	maps.Copy(inv.stock, stock)
	return inv
}

// Reserve takes all items out of stock on behalf of an order, or none when
// any is short.
func (inv *Inventory) Reserve(orderID string, items []Item) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if _, ok := inv.reserved[orderID]; ok {
		return nil
	}
	for _, it := range items {
		if inv.stock[it.SKU] < it.Quantity {
			return fmt.Errorf("%w: %s", ErrOutOfStock, it.SKU)
		}
	}
	for _, it := range items {
		inv.stock[it.SKU] -= it.Quantity
	}
	inv.reserved[orderID] = slices.Clone(items)
	return nil
}

// Release returns the order's reservation to stock. It reports false when
// the order held none.
func (inv *Inventory) Release(orderID string) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	items, ok := inv.reserved[orderID]
	if !ok {
		return false
	}
	for _, it := range items {
		inv.stock[it.SKU] += it.Quantity
	}
	delete(inv.reserved, orderID)
	return true
}

// Stock returns the available quantity of sku.
func (inv *Inventory) Stock(sku string) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.stock[sku]
}
