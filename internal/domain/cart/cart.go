package cart

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("cart: not found")
	ErrEmpty    = errors.New("cart: no items")
)

type Item struct {
	ProductID string
	Quantity  int
	Size      string // empty for unsized products
}

type Cart struct {
	ID        string
	UserID    string
	Items     []Item
	UpdatedAt time.Time
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Items = append([]Item(nil), c.Items...)
	return &clone
}
