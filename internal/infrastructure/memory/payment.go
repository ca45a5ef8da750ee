package memory

import (
	"context"
	"sync"

	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/payment"
)

type providerRefKey struct {
	provider domain.Provider
	ref      string
}

// PaymentRepository indexes payments by the gateway's reference so callbacks
// can be correlated without a scan.
type PaymentRepository struct {
	mu            sync.RWMutex
	payments      map[string]*domain.Payment
	byProviderRef map[providerRefKey]string
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		payments:      make(map[string]*domain.Payment),
		byProviderRef: make(map[providerRefKey]string),
	}
}

func (r *PaymentRepository) Insert(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = p.Clone()
	if p.ProviderRef != "" {
		r.byProviderRef[providerRefKey{p.Provider, p.ProviderRef}] = p.ID
	}
	return nil
}

func (r *PaymentRepository) Get(_ context.Context, id string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PaymentRepository) Update(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ID]; !ok {
		return domain.ErrNotFound
	}
	r.payments[p.ID] = p.Clone()
	return nil
}

func (r *PaymentRepository) FindByProviderRef(_ context.Context, provider domain.Provider, ref string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byProviderRef[providerRefKey{provider, ref}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.payments[id].Clone(), nil
}
