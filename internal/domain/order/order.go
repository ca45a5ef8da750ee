package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: already exists")
	ErrNoItems                = errors.New("order: no items")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// ProductSnapshot freezes catalog data at purchase time so later product
// edits or deletions never rewrite historical orders.
type ProductSnapshot struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Images      []string
	Category    string
}

type Item struct {
	ProductID     string
	Size          string
	Quantity      int
	Snapshot      ProductSnapshot
	ReservedStock int
	StockReleased bool
}

// Subtotal is the snapshot price times quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.Snapshot.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID          string
	Number      string // ORD-<year>-<seq>
	UserID      string
	PaymentID   string
	Status      Status
	Items       []Item
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	ShippingFee decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
	Currency    string
	Shipping    ShippingInfo
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func New(id, number, userID, paymentID string, items []Item) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	now := time.Now().UTC()
	return &Order{
		ID:        id,
		Number:    number,
		UserID:    userID,
		PaymentID: paymentID,
		Status:    StatusPending,
		Items:     items,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ComputeTotals derives subtotal and total from snapshot prices. Prices are
// never re-read after this point.
func (o *Order) ComputeTotals(discount, shippingFee, taxRate decimal.Decimal) {
	subtotal := decimal.Zero
	for _, it := range o.Items {
		subtotal = subtotal.Add(it.Subtotal())
	}
	o.Subtotal = subtotal
	o.Discount = discount
	o.ShippingFee = shippingFee
	taxable := subtotal.Sub(discount)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}
	o.Tax = taxable.Mul(taxRate).Round(2)
	o.Total = taxable.Add(o.Tax).Add(shippingFee)
}

// ReleasableItems returns indexes of items whose reservation has not been
// released yet. Callers flip StockReleased after a successful release so the
// release happens exactly once per item.
func (o *Order) ReleasableItems() []int {
	var idx []int
	for i, it := range o.Items {
		if !it.StockReleased && it.ReservedStock > 0 {
			idx = append(idx, i)
		}
	}
	return idx
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = make([]Item, len(o.Items))
	for i, it := range o.Items {
		it.Snapshot.Images = append([]string(nil), it.Snapshot.Images...)
		clone.Items[i] = it
	}
	return &clone
}
