package product

import "context"

// Repository is the storage port for products and their stock counters.
//
// ReserveStock must be an atomic check-and-decrement at the storage layer:
// it succeeds only when the size's counter is at least qty, and no
// interleaving of concurrent calls may drive a counter below zero.
type Repository interface {
	Get(ctx context.Context, productID string) (*Product, error)
	Save(ctx context.Context, p *Product) error
	ReserveStock(ctx context.Context, productID, size string, qty int) error
	ReleaseStock(ctx context.Context, productID, size string, qty int) error
}
