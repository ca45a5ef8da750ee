package order

import "context"

type IDGenerator interface {
	NewID() string
}

// NumberSequencer hands out the per-year sequence behind human-readable
// order numbers. Implementations must increment atomically; two concurrent
// materializations must never observe the same sequence value.
type NumberSequencer interface {
	Next(ctx context.Context, year int) (int64, error)
}
