package shipment

import (
	"context"
	"time"
)

type Repository interface {
	// Insert stores a shipment and points the order index at it. Inserting a
	// second shipment for the same order supersedes the index entry:
	// FindByOrderID returns the newest shipment while earlier rows stay
	// addressable by ID.
	Insert(ctx context.Context, s *Shipment) error
	Get(ctx context.Context, id string) (*Shipment, error)
	Update(ctx context.Context, s *Shipment) error
	FindByOrderID(ctx context.Context, orderID string) (*Shipment, error)
	// FindStale selects active shipments whose last tracking update is older
	// than the cutoff, bounded by limit, stalest first.
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*Shipment, error)
}
