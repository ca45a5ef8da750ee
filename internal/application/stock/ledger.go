package stock

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/product"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability/logctx"
)

const componentLedger = "stock_ledger"

// Reservation is a hold taken against a product's per-size counter. It can
// be released back or left to stand as a permanent decrement.
type Reservation struct {
	ProductID string
	Size      string
	Quantity  int
}

// ReserveItem is one line of a bulk reservation request.
type ReserveItem struct {
	ProductID string
	Size      string
	Quantity  int
}

// Ledger coordinates stock holds on top of the product repository. The
// atomic check-and-decrement itself lives in the repository so concurrent
// checkouts for the same SKU/size cannot interleave a read with a write.
type Ledger struct {
	products product.Repository
	log      observability.Logger
}

func NewLedger(products product.Repository, logger observability.Logger) *Ledger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Ledger{
		products: products,
		log:      logger.With(observability.F("component", componentLedger)),
	}
}

// Reserve holds qty units of a size. Insufficient stock is a business state,
// reported immediately and never retried.
func (l *Ledger) Reserve(ctx context.Context, productID, size string, qty int) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, product.ErrInvalidQuantity
	}
	if size == "" {
		size = product.SizeUnsized
	}
	if err := l.products.ReserveStock(ctx, productID, size, qty); err != nil {
		return Reservation{}, fmt.Errorf("stock: reserve %s/%s x%d: %w", productID, size, qty, err)
	}
	return Reservation{ProductID: productID, Size: size, Quantity: qty}, nil
}

// Release returns qty units. The ledger does not deduplicate releases; the
// caller guards with its released-once flag.
func (l *Ledger) Release(ctx context.Context, productID, size string, qty int) error {
	if qty <= 0 {
		return product.ErrInvalidQuantity
	}
	if size == "" {
		size = product.SizeUnsized
	}
	if err := l.products.ReleaseStock(ctx, productID, size, qty); err != nil {
		return fmt.Errorf("stock: release %s/%s x%d: %w", productID, size, qty, err)
	}
	return nil
}

// BulkReserve reserves items in order. On the first failure it compensates
// by releasing every reservation already taken in this batch, so no stock is
// held when the batch as a whole fails.
func (l *Ledger) BulkReserve(ctx context.Context, items []ReserveItem) ([]Reservation, error) {
	logger := logctx.FromOr(ctx, l.log)

	reserved := make([]Reservation, 0, len(items))
	for _, item := range items {
		res, err := l.Reserve(ctx, item.ProductID, item.Size, item.Quantity)
		if err != nil {
			errs := err
			for _, r := range reserved {
				if relErr := l.Release(ctx, r.ProductID, r.Size, r.Quantity); relErr != nil {
					logger.Error("stock_compensation_failed",
						observability.F("product_id", r.ProductID),
						observability.F("size", r.Size),
						observability.F("quantity", r.Quantity),
						observability.F("error", relErr.Error()),
					)
					errs = multierr.Append(errs, relErr)
				}
			}
			logger.Warn("bulk_reserve_failed",
				observability.F("failed_product_id", item.ProductID),
				observability.F("failed_size", item.Size),
				observability.F("compensated", len(reserved)),
			)
			return nil, errs
		}
		reserved = append(reserved, res)
	}
	return reserved, nil
}

// IsInsufficientStock classifies a ledger error as a stock conflict.
func IsInsufficientStock(err error) bool {
	return errors.Is(err, product.ErrInsufficientStock)
}
