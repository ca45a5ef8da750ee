package product

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("product: not found")
	ErrSizeNotFound      = errors.New("product: size not found")
	ErrInvalidQuantity   = errors.New("product: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("product: insufficient stock")
)

// Product holds catalog data plus the per-size stock counters the ledger
// mutates. Stock counters never go below zero.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Images      []string
	Category    string
	Stock       map[string]int // size -> units available
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SizeUnsized is the stock key for products sold without a size variant.
const SizeUnsized = "default"

func New(id, name string, price decimal.Decimal) *Product {
	now := time.Now().UTC()
	return &Product{
		ID:        id,
		Name:      name,
		Price:     price,
		Stock:     make(map[string]int),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Available reports the units on hand for a size.
func (p *Product) Available(size string) int {
	if size == "" {
		size = SizeUnsized
	}
	return p.Stock[size]
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Images = append([]string(nil), p.Images...)
	clone.Stock = make(map[string]int, len(p.Stock))
	for k, v := range p.Stock {
		clone.Stock[k] = v
	}
	return &clone
}
