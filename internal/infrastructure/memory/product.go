package memory

import (
	"context"
	"sync"

	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/product"
)

// ProductRepository is the in-memory product store. The mutex makes
// ReserveStock an atomic check-and-decrement: the counter is only written
// after the availability check passed under the same lock, so concurrent
// reservations can never drive it below zero.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{products: make(map[string]*domain.Product)}
}

func (r *ProductRepository) Get(_ context.Context, productID string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *ProductRepository) Save(_ context.Context, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p.Clone()
	return nil
}

func (r *ProductRepository) ReserveStock(_ context.Context, productID, size string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	if size == "" {
		size = domain.SizeUnsized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return domain.ErrNotFound
	}
	have, ok := p.Stock[size]
	if !ok {
		return domain.ErrSizeNotFound
	}
	if have < qty {
		return domain.ErrInsufficientStock
	}
	p.Stock[size] = have - qty
	return nil
}

func (r *ProductRepository) ReleaseStock(_ context.Context, productID, size string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	if size == "" {
		size = domain.SizeUnsized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return domain.ErrNotFound
	}
	p.Stock[size] += qty
	return nil
}
