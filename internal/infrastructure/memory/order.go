package memory

import (
	"context"
	"sync"

	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/order"
)

// OrderRepository keeps a unique index on payment id alongside the primary
// map, so a second Insert for the same payment fails with ErrConflict even
// when two materializations race past the lookup.
type OrderRepository struct {
	mu          sync.RWMutex
	orders      map[string]*domain.Order
	byPaymentID map[string]string
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:      make(map[string]*domain.Order),
		byPaymentID: make(map[string]string),
	}
}

func (r *OrderRepository) Insert(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[o.ID]; exists {
		return domain.ErrConflict
	}
	if o.PaymentID != "" {
		if _, exists := r.byPaymentID[o.PaymentID]; exists {
			return domain.ErrConflict
		}
		r.byPaymentID[o.PaymentID] = o.ID
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *OrderRepository) Get(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *OrderRepository) Update(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *OrderRepository) FindByPaymentID(_ context.Context, paymentID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPaymentID[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.orders[id].Clone(), nil
}
