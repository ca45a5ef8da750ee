package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/stock"
	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/order"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/outbox"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability/logctx"
)

// Service covers order lifecycle operations outside materialization:
// lookups, fulfillment progress and cancellation with stock give-back.
type Service struct {
	repo      domain.Repository
	ledger    *stock.Ledger
	publisher outbox.Publisher
	log       observability.Logger
}

func NewService(repo domain.Repository, ledger *stock.Ledger, publisher outbox.Publisher, logger observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		repo:      repo,
		ledger:    ledger,
		publisher: publisher,
		log:       logger.With(observability.F("component", "order_service")),
	}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, errors.New("order: id is required")
	}
	return s.repo.Get(ctx, id)
}

// Cancel aborts an order that has not shipped and returns its reserved stock
// to the ledger. Each item is released at most once, guarded by its
// StockReleased flag, so a repeated cancel cannot double-increment stock.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.Order, error) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("order_id", id))

	entity, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := entity.Cancel(); err != nil {
		return nil, err
	}

	for _, i := range entity.ReleasableItems() {
		it := &entity.Items[i]
		if err := s.ledger.Release(ctx, it.ProductID, it.Size, it.ReservedStock); err != nil {
			// Leave the flag down so a later cancel retry can release it.
			logger.Error("cancel_stock_release_failed",
				observability.F("product_id", it.ProductID),
				observability.F("size", it.Size),
				observability.F("error", err.Error()),
			)
			continue
		}
		it.StockReleased = true
	}

	if err := s.repo.Update(ctx, entity); err != nil {
		return nil, fmt.Errorf("order: persist cancel: %w", err)
	}

	if s.publisher != nil {
		if pubErr := s.publisher.Publish(ctx, domain.NewOrderCancelledEvent(entity)); pubErr != nil {
			logger.Warn("order_cancelled_event_publish_failed",
				observability.F("error", pubErr.Error()),
			)
		}
	}

	logger.Info("order_cancelled", observability.F("order_number", entity.Number))
	return entity, nil
}

// MarkProcessing moves a paid order into fulfillment.
func (s *Service) MarkProcessing(ctx context.Context, id string) (*domain.Order, error) {
	entity, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := entity.MarkProcessing(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, entity); err != nil {
		return nil, fmt.Errorf("order: persist processing: %w", err)
	}
	return entity, nil
}
