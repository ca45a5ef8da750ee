package shipment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	domorder "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/order"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/outbox"
	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/shipment"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability/logctx"
)

const (
	shipmentService = "shipment-service"
	useCaseGenerate = "shipment.generate"
	spanPrefix      = "UC."

	maxCarrierRetries  = 3
	carrierCallTimeout = 60 * time.Second
)

// Error taxonomy surfaced to callers so operators know whether to retry
// manually or fix configuration.
var (
	ErrCarrierValidation  = errors.New("shipment: carrier rejected the request")
	ErrAuthConfiguration  = errors.New("shipment: carrier authentication failed, check credentials")
	ErrCarrierNotFound    = errors.New("shipment: carrier resource not found")
	ErrServiceUnavailable = errors.New("shipment: carrier unavailable, retries exhausted")
	ErrCarrierTimeout     = errors.New("shipment: carrier call timed out")
	ErrNoShippingAddress  = errors.New("shipment: order has no shipping address")
	ErrOrderNotReady      = errors.New("shipment: order is not ready for fulfillment")
)

// Orchestrator drives carrier integration for orders: label generation with
// classified retry, cancellation, and the happy-path order transition to
// shipped.
type Orchestrator struct {
	shipments domain.Repository
	orders    domorder.Repository
	carrier   CarrierClient
	idGen     IDGenerator
	publisher outbox.Publisher
	tel       observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	extCounter   observability.Counter

	backoff func(attempt int) time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(
	shipments domain.Repository,
	orders domorder.Repository,
	carrier CarrierClient,
	idGen IDGenerator,
	publisher outbox.Publisher,
	tel observability.Observability,
) *Orchestrator {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Orchestrator{
		shipments:    shipments,
		orders:       orders,
		carrier:      carrier,
		idGen:        idGen,
		publisher:    publisher,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", shipmentService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		// 1s, 2s, 4s between attempts.
		backoff: func(attempt int) time.Duration { return time.Duration(1<<uint(attempt)) * time.Second },
		sleep:   sleepCtx,
	}
}

// WithBackoff overrides the retry pacing. Intended for tests.
func (o *Orchestrator) WithBackoff(backoff func(int) time.Duration) *Orchestrator {
	o.backoff = backoff
	return o
}

// Generate registers the order with the carrier and transitions the order to
// shipped. Transient carrier failures are retried up to three times with
// exponential backoff; permanent ones fail immediately.
func (o *Orchestrator) Generate(ctx context.Context, orderID string) (_ *domain.Shipment, err error) {
	logger := logctx.FromOr(ctx, o.log).With(
		observability.F("use_case", useCaseGenerate),
		observability.F("order_id", orderID),
	)

	ctx, span := o.tel.Tracer().Start(ctx, spanPrefix+"GenerateShipment",
		attribute.String("use_case", useCaseGenerate),
		attribute.String("order.id", orderID),
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

		o.reqCounter.Add(1,
			observability.L("use_case", useCaseGenerate),
			observability.L("outcome", outcome),
		)
		o.durHistogram.Observe(lat, observability.L("use_case", useCaseGenerate))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	// One shipment per order; a repeat call hands back the live one even
	// after the first success moved the order to shipped, so the replay
	// check runs before any readiness check.
	if existing, lookupErr := o.shipments.FindByOrderID(ctx, orderID); lookupErr == nil {
		if existing.Status != domain.StatusCancelled && existing.Status != domain.StatusException {
			statusText = "ALREADY_GENERATED"
			return existing, nil
		}
	} else if !errors.Is(lookupErr, domain.ErrNotFound) {
		outcome, statusText = "error", "SHIPMENT_LOOKUP_FAILED"
		return nil, lookupErr
	}

	ord, err := o.orders.Get(ctx, orderID)
	if err != nil {
		outcome, statusText = "error", "ORDER_LOOKUP_FAILED"
		return nil, err
	}
	if ord.Status != domorder.StatusPaid && ord.Status != domorder.StatusProcessing {
		outcome, statusText = "error", "ORDER_NOT_READY"
		return nil, ErrOrderNotReady
	}
	if ord.Shipping.Kind == domorder.ShippingUnset {
		outcome, statusText = "error", "NO_SHIPPING_ADDRESS"
		return nil, ErrNoShippingAddress
	}

	shp := domain.New(o.idGen.NewID(), ord.ID)
	if err = o.shipments.Insert(ctx, shp); err != nil {
		outcome, statusText = "error", "SHIPMENT_INSERT_FAILED"
		return nil, fmt.Errorf("shipment: persist: %w", err)
	}

	req := GenerateRequest{
		OrderID:     ord.ID,
		OrderNumber: ord.Number,
		Destination: ord.Shipping.Address,
		CarrierCode: ord.Shipping.CarrierCode,
		ServiceName: ord.Shipping.ServiceName,
		Packages:    []Package{{Pieces: len(ord.Items)}},
	}

	resp, attempts, err := o.generateWithRetry(ctx, logger, req)
	if err != nil {
		shp.MarkException(err.Error(), attempts)
		if updErr := o.shipments.Update(ctx, shp); updErr != nil {
			logger.Error("shipment_exception_persist_failed", observability.F("error", updErr.Error()))
		}
		outcome, statusText = "error", classifyStatusText(err)
		return nil, err
	}

	shp.MarkCreated(resp.ShipmentID, resp.TrackingNumber, resp.LabelURL, resp.EstimatedDelivery)
	if err = o.shipments.Update(ctx, shp); err != nil {
		outcome, statusText = "error", "SHIPMENT_UPDATE_FAILED"
		return nil, fmt.Errorf("shipment: persist carrier result: %w", err)
	}

	if err = ord.MarkShipped(); err != nil {
		outcome, statusText = "error", "ORDER_TRANSITION_FAILED"
		return nil, err
	}
	if err = o.orders.Update(ctx, ord); err != nil {
		outcome, statusText = "error", "ORDER_UPDATE_FAILED"
		return nil, fmt.Errorf("shipment: persist order transition: %w", err)
	}

	if o.publisher != nil {
		evt := domain.ShipmentShippedEvent{
			ShipmentID:     shp.ID,
			OrderID:        ord.ID,
			UserID:         ord.UserID,
			TrackingNumber: shp.TrackingNumber,
			OccurredAt:     time.Now().UTC(),
		}
		if pubErr := o.publisher.Publish(ctx, evt); pubErr != nil {
			logger.Warn("shipment_shipped_event_publish_failed", observability.F("error", pubErr.Error()))
		}
	}

	span.SetAttributes(attribute.String("shipment.tracking_number", shp.TrackingNumber))
	return shp, nil
}

// generateWithRetry calls the carrier with a bounded per-call timeout and
// classified retries: transient failures back off 1s/2s/4s, permanent ones
// return straight away. Returns the attempt count alongside the outcome.
func (o *Orchestrator) generateWithRetry(ctx context.Context, logger observability.Logger, req GenerateRequest) (*GenerateResponse, int, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; ; attempt++ {
		attempts = attempt + 1

		callCtx, cancel := context.WithTimeout(ctx, carrierCallTimeout)
		resp, err := o.carrier.Generate(callCtx, req)
		cancel()

		callOutcome := "success"
		if err != nil {
			callOutcome = "error"
		}
		o.extCounter.Add(1,
			observability.L("peer", "carrier"),
			observability.L("endpoint", "generate"),
			observability.L("outcome", callOutcome),
		)

		if err == nil {
			return resp, attempts, nil
		}
		lastErr = err

		var ce *CarrierError
		if !errors.As(err, &ce) || !ce.Retryable() {
			return nil, attempts, classify(err)
		}
		if attempt >= maxCarrierRetries {
			return nil, attempts, fmt.Errorf("%w: %w", ErrServiceUnavailable, lastErr)
		}

		wait := o.backoff(attempt)
		logger.Warn("carrier_generate_retrying",
			observability.F("attempt", attempts),
			observability.F("backoff", wait.String()),
			observability.F("error", err.Error()),
		)
		if sleepErr := o.sleep(ctx, wait); sleepErr != nil {
			return nil, attempts, fmt.Errorf("%w: %w", ErrCarrierTimeout, sleepErr)
		}
	}
}

// CancelShipment aborts a shipment that the carrier has not picked up yet.
func (o *Orchestrator) CancelShipment(ctx context.Context, shipmentID string) (*domain.Shipment, error) {
	shp, err := o.shipments.Get(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if err := shp.Cancel(); err != nil {
		return nil, err
	}
	if shp.CarrierShipmentID != "" {
		callCtx, cancel := context.WithTimeout(ctx, carrierCallTimeout)
		err := o.carrier.Cancel(callCtx, shp.CarrierShipmentID)
		cancel()
		if err != nil {
			return nil, classify(err)
		}
	}
	if err := o.shipments.Update(ctx, shp); err != nil {
		return nil, fmt.Errorf("shipment: persist cancel: %w", err)
	}
	return shp, nil
}

// classify maps a carrier error to the surfaced taxonomy.
func classify(err error) error {
	var ce *CarrierError
	if !errors.As(err, &ce) {
		return err
	}
	switch {
	case ce.Timeout:
		return fmt.Errorf("%w: %w", ErrCarrierTimeout, err)
	case ce.StatusCode == 400:
		return fmt.Errorf("%w: %w", ErrCarrierValidation, err)
	case ce.StatusCode == 401 || ce.StatusCode == 403:
		return fmt.Errorf("%w: %w", ErrAuthConfiguration, err)
	case ce.StatusCode == 404:
		return fmt.Errorf("%w: %w", ErrCarrierNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
}

func classifyStatusText(err error) string {
	switch {
	case errors.Is(err, ErrCarrierValidation):
		return "CARRIER_VALIDATION"
	case errors.Is(err, ErrAuthConfiguration):
		return "CARRIER_AUTH"
	case errors.Is(err, ErrCarrierNotFound):
		return "CARRIER_NOT_FOUND"
	case errors.Is(err, ErrCarrierTimeout):
		return "CARRIER_TIMEOUT"
	case errors.Is(err, ErrServiceUnavailable):
		return "CARRIER_UNAVAILABLE"
	default:
		return "CARRIER_ERROR"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
