package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/shipment"
)

type ShipmentRepository struct {
	mu        sync.RWMutex
	shipments map[string]*domain.Shipment
	byOrderID map[string]string
}

func NewShipmentRepository() *ShipmentRepository {
	return &ShipmentRepository{
		shipments: make(map[string]*domain.Shipment),
		byOrderID: make(map[string]string),
	}
}

func (r *ShipmentRepository) Insert(_ context.Context, s *domain.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shipments[s.ID] = s.Clone()
	// Newest shipment wins the order index; superseded rows stay in the
	// primary map, reachable by ID.
	r.byOrderID[s.OrderID] = s.ID
	return nil
}

func (r *ShipmentRepository) Get(_ context.Context, id string) (*domain.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shipments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *ShipmentRepository) Update(_ context.Context, s *domain.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shipments[s.ID]; !ok {
		return domain.ErrNotFound
	}
	r.shipments[s.ID] = s.Clone()
	return nil
}

func (r *ShipmentRepository) FindByOrderID(_ context.Context, orderID string) (*domain.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOrderID[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.shipments[id].Clone(), nil
}

func (r *ShipmentRepository) FindStale(_ context.Context, cutoff time.Time, limit int) ([]*domain.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Shipment
	for _, s := range r.shipments {
		if s.Active() && s.LastTrackingUpdate.Before(cutoff) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastTrackingUpdate.Before(out[j].LastTrackingUpdate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
