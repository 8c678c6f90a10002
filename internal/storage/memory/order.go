package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.Repository = (*OrderStore)(nil)

// OrderStore is a mutex-guarded order table.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
}

// NewOrderStore returns an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]*order.Order)}
}

// Create stores o at version 1. Duplicate ids are rejected.
func (s *OrderStore) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("creating order %q: duplicate id", o.ID)
	}
	o.Version = 1
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

// GetByID returns a copy of the order.
func (s *OrderStore) GetByID(_ context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

// ListByUser returns the user's orders, most recent first.
func (s *OrderStore) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	return s.list(func(o *order.Order) bool { return o.UserID == userID }), nil
}

// List returns every order, most recent first.
func (s *OrderStore) List(context.Context) ([]order.Order, error) {
	return s.list(func(*order.Order) bool { return true }), nil
}

func (s *OrderStore) list(keep func(*order.Order) bool) []order.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, *cloneOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID > b.ID {
			return -1
		}
		if a.ID < b.ID {
			return 1
		}
		return 0
	})
	return out
}

// UpdateStatus writes the status iff the order is still at version.
func (s *OrderStore) UpdateStatus(_ context.Context, id string, version int64, status order.Status, deliveredAt *time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return 0, order.ErrNotFound
	}
	if o.Version != version {
		return 0, order.ErrVersionConflict
	}
	o.Status = status
	if deliveredAt != nil {
		t := *deliveredAt
		o.DeliveredAt = &t
	}
	o.Version++
	return o.Version, nil
}

// Delete removes the order.
func (s *OrderStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return order.ErrNotFound
	}
	delete(s.orders, id)
	return nil
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		cp.DeliveredAt = &t
	}
	return &cp
}
