package cart

import "context"

type Repository interface {
	Get(ctx context.Context, id string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Clear(ctx context.Context, id string) error
}
