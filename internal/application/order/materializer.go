package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/stock"
	domcart "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/cart"
	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/order"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/outbox"
	dompayment "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/payment"
	domproduct "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/product"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability/logctx"
)

const (
	orderService       = "order-service"
	useCaseMaterialize = "order.materialize"
	spanPrefix         = "UC."
	publishTimeout     = 300 * time.Millisecond
)

var (
	ErrPaymentNotCompleted = errors.New("order: payment is not completed")
	ErrRepository          = errors.New("order: repository failure")
)

type MaterializeResult struct {
	OrderID     string
	OrderNumber string
	Status      domain.Status
	Replayed    bool
}

// Materializer turns a completed payment and its cart into an immutable
// order: snapshots product data, reserves stock, assigns an order number and
// persists the result. Idempotent per payment id.
type Materializer struct {
	orders    domain.Repository
	carts     domcart.Repository
	products  domproduct.Repository
	ledger    *stock.Ledger
	sequencer NumberSequencer
	idGen     IDGenerator
	publisher outbox.Publisher
	taxRate   decimal.Decimal
	tel       observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewMaterializer(
	orders domain.Repository,
	carts domcart.Repository,
	products domproduct.Repository,
	ledger *stock.Ledger,
	sequencer NumberSequencer,
	idGen IDGenerator,
	publisher outbox.Publisher,
	taxRate decimal.Decimal,
	tel observability.Observability,
) *Materializer {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Materializer{
		orders:       orders,
		carts:        carts,
		products:     products,
		ledger:       ledger,
		sequencer:    sequencer,
		idGen:        idGen,
		publisher:    publisher,
		taxRate:      taxRate,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", orderService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

// Materialize executes the payment-to-order transformation. Calling it twice
// with the same payment yields exactly one order; the second call is a
// replay, not an error.
func (m *Materializer) Materialize(ctx context.Context, pay *dompayment.Payment) (_ *MaterializeResult, err error) {
	logger := logctx.FromOr(ctx, m.log).With(
		observability.F("use_case", useCaseMaterialize),
		observability.F("payment_id", pay.ID),
	)

	ctx, span := m.tel.Tracer().Start(ctx, spanPrefix+"MaterializeOrder",
		attribute.String("use_case", useCaseMaterialize),
		attribute.String("payment.id", pay.ID),
		attribute.String("payment.provider", string(pay.Provider)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		lat := time.Since(start).Seconds()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		m.reqCounter.Add(1,
			observability.L("use_case", useCaseMaterialize),
			observability.L("outcome", outcome),
		)
		m.durHistogram.Observe(lat, observability.L("use_case", useCaseMaterialize))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if pay.Status != dompayment.StatusCompleted {
		outcome, statusText = "error", "PAYMENT_NOT_COMPLETED"
		return nil, ErrPaymentNotCompleted
	}

	// Idempotency guard: one order per payment, checked before any side effect.
	if existing, lookupErr := m.orders.FindByPaymentID(ctx, pay.ID); lookupErr == nil {
		statusText = "IDEMPOTENT_REPLAY"
		span.AddEvent("order.idempotent_replay",
			trace.WithAttributes(attribute.String("order.id", existing.ID)),
		)
		return replayOf(existing), nil
	} else if !errors.Is(lookupErr, domain.ErrNotFound) {
		outcome, statusText = "error", "IDEMPOTENCY_LOOKUP_FAILED"
		return nil, fmt.Errorf("%w: %w", ErrRepository, lookupErr)
	}

	crt, err := m.carts.Get(ctx, pay.CartID)
	if err != nil {
		outcome, statusText = "error", "CART_LOOKUP_FAILED"
		return nil, fmt.Errorf("order: load cart %s: %w", pay.CartID, err)
	}
	if len(crt.Items) == 0 {
		outcome, statusText = "error", "CART_EMPTY"
		return nil, domcart.ErrEmpty
	}

	items, reserveItems, err := m.snapshotItems(ctx, crt)
	if err != nil {
		outcome, statusText = "error", "SNAPSHOT_FAILED"
		return nil, err
	}

	// Stock reservation: whole batch or nothing.
	if _, err = m.ledger.BulkReserve(ctx, reserveItems); err != nil {
		outcome, statusText = "error", "STOCK_RESERVATION_FAILED"
		if stock.IsInsufficientStock(err) {
			statusText = "INSUFFICIENT_STOCK"
		}
		return nil, err
	}

	entity, err := m.buildOrder(ctx, pay, items)
	if err != nil {
		outcome, statusText = "error", "ORDER_BUILD_FAILED"
		m.compensate(ctx, items)
		return nil, err
	}

	if err = m.orders.Insert(ctx, entity); err != nil {
		m.compensate(ctx, items)
		if errors.Is(err, domain.ErrConflict) {
			// A concurrent materialization for the same payment won the race.
			if existing, lookupErr := m.orders.FindByPaymentID(ctx, pay.ID); lookupErr == nil {
				err = nil
				statusText = "IDEMPOTENT_REPLAY"
				return replayOf(existing), nil
			}
		}
		outcome, statusText = "error", "REPO_INSERT_FAILED"
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}

	// Side effects below are best-effort; the order is already durable.
	if clearErr := m.carts.Clear(ctx, crt.ID); clearErr != nil {
		logger.Warn("cart_clear_failed",
			observability.F("cart_id", crt.ID),
			observability.F("error", clearErr.Error()),
		)
	}

	if m.publisher != nil {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		if pubErr := m.publisher.Publish(pubCtx, domain.NewOrderPaidEvent(entity)); pubErr != nil {
			logger.Warn("order_paid_event_publish_failed",
				observability.F("order_id", entity.ID),
				observability.F("error", pubErr.Error()),
			)
		}
		cancel()
	}

	span.SetAttributes(attribute.String("order.number", entity.Number))
	span.AddEvent("order.materialized",
		trace.WithAttributes(attribute.String("order.id", entity.ID)),
	)

	return &MaterializeResult{
		OrderID:     entity.ID,
		OrderNumber: entity.Number,
		Status:      entity.Status,
	}, nil
}

// snapshotItems freezes product data for every cart line and prepares the
// matching reservation requests.
func (m *Materializer) snapshotItems(ctx context.Context, crt *domcart.Cart) ([]domain.Item, []stock.ReserveItem, error) {
	items := make([]domain.Item, 0, len(crt.Items))
	reserveItems := make([]stock.ReserveItem, 0, len(crt.Items))
	for _, line := range crt.Items {
		p, err := m.products.Get(ctx, line.ProductID)
		if err != nil {
			return nil, nil, fmt.Errorf("order: snapshot product %s: %w", line.ProductID, err)
		}
		size := line.Size
		if size == "" {
			size = domproduct.SizeUnsized
		}
		items = append(items, domain.Item{
			ProductID: p.ID,
			Size:      size,
			Quantity:  line.Quantity,
			Snapshot: domain.ProductSnapshot{
				Name:        p.Name,
				Description: p.Description,
				Price:       p.Price,
				Images:      append([]string(nil), p.Images...),
				Category:    p.Category,
			},
			ReservedStock: line.Quantity,
		})
		reserveItems = append(reserveItems, stock.ReserveItem{
			ProductID: p.ID,
			Size:      size,
			Quantity:  line.Quantity,
		})
	}
	return items, reserveItems, nil
}

func (m *Materializer) buildOrder(ctx context.Context, pay *dompayment.Payment, items []domain.Item) (*domain.Order, error) {
	year := time.Now().UTC().Year()
	seq, err := m.sequencer.Next(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("order: next sequence: %w", err)
	}
	number := fmt.Sprintf("ORD-%d-%06d", year, seq)

	entity, err := domain.New(m.idGen.NewID(), number, pay.UserID, pay.ID, items)
	if err != nil {
		return nil, err
	}
	entity.Currency = pay.Currency
	entity.Shipping = domain.ResolveShipping(pay.QuotedShipping, pay.SimpleShipping)
	entity.ComputeTotals(decimal.Zero, entity.Shipping.Fee, m.taxRate)
	if err := entity.MarkPaid(); err != nil {
		return nil, err
	}
	return entity, nil
}

// compensate releases the batch reservations when the order cannot be
// persisted after stock was already held.
func (m *Materializer) compensate(ctx context.Context, items []domain.Item) {
	logger := logctx.FromOr(ctx, m.log)
	for _, it := range items {
		if err := m.ledger.Release(ctx, it.ProductID, it.Size, it.Quantity); err != nil {
			logger.Error("materialize_compensation_failed",
				observability.F("product_id", it.ProductID),
				observability.F("size", it.Size),
				observability.F("error", err.Error()),
			)
		}
	}
}

func replayOf(existing *domain.Order) *MaterializeResult {
	return &MaterializeResult{
		OrderID:     existing.ID,
		OrderNumber: existing.Number,
		Status:      existing.Status,
		Replayed:    true,
	}
}
