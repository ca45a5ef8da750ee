package order

import "context"

// Repository is the storage port for orders.
//
// Insert must enforce a unique index on PaymentID: a second insert for the
// same payment fails with ErrConflict so materialization stays idempotent
// even when two callbacks race past the lookup.
type Repository interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	FindByPaymentID(ctx context.Context, paymentID string) (*Order, error)
}
