package shipment

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	domorder "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/order"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/outbox"
	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/shipment"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability"
)

const (
	sweepTracking = "shipment_tracking"

	DefaultSweepInterval = time.Hour
	DefaultStaleAfter    = 2 * time.Hour
	DefaultBatchSize     = 20
)

// TrackingReconciler periodically reconciles active shipments against the
// carrier's tracking feed: it appends genuinely new events, advances the
// shipment status via the fixed mapping table and completes orders on
// delivery. Carrier calls are paced with a rate limiter so the sweep
// respects external rate limits.
type TrackingReconciler struct {
	shipments domain.Repository
	orders    domorder.Repository
	carrier   CarrierClient
	publisher outbox.Publisher
	limiter   *rate.Limiter

	log        observability.Logger
	sweepRuns  observability.Counter
	sweepItems observability.Counter
	now        func() time.Time

	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
}

func NewTrackingReconciler(
	shipments domain.Repository,
	orders domorder.Repository,
	carrier CarrierClient,
	publisher outbox.Publisher,
	tel observability.Observability,
) *TrackingReconciler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &TrackingReconciler{
		shipments:  shipments,
		orders:     orders,
		carrier:    carrier,
		publisher:  publisher,
		limiter:    rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		log:        tel.Logger().With(observability.F("component", "tracking_reconciler")),
		sweepRuns:  tel.Metrics().Counter(observability.MSweepRuns),
		sweepItems: tel.Metrics().Counter(observability.MSweepItems),
		now:        func() time.Time { return time.Now().UTC() },
		interval:   DefaultSweepInterval,
		staleAfter: DefaultStaleAfter,
		batchSize:  DefaultBatchSize,
	}
}

// WithInterval overrides the sweep cadence and staleness cutoff.
func (r *TrackingReconciler) WithInterval(interval, staleAfter time.Duration) *TrackingReconciler {
	if interval > 0 {
		r.interval = interval
	}
	if staleAfter > 0 {
		r.staleAfter = staleAfter
	}
	return r
}

// Start runs the sweep loop until the context is cancelled.
func (r *TrackingReconciler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunSweep(ctx)
			}
		}
	}()
	r.log.Info("tracking_reconciler_started",
		observability.F("interval", r.interval.String()),
	)
}

// RunSweep reconciles one batch of stale active shipments. Returns how many
// shipments were examined.
func (r *TrackingReconciler) RunSweep(ctx context.Context) int {
	now := r.now()
	batch, err := r.shipments.FindStale(ctx, now.Add(-r.staleAfter), r.batchSize)
	if err != nil {
		r.log.Error("tracking_sweep_query_failed", observability.F("error", err.Error()))
		r.sweepRuns.Add(1, observability.L("sweep", sweepTracking), observability.L("outcome", "error"))
		return 0
	}

	for _, shp := range batch {
		if err := r.limiter.Wait(ctx); err != nil {
			return len(batch)
		}
		r.reconcileOne(ctx, shp)
	}

	r.sweepRuns.Add(1, observability.L("sweep", sweepTracking), observability.L("outcome", "success"))
	if len(batch) > 0 {
		r.sweepItems.Add(float64(len(batch)), observability.L("sweep", sweepTracking))
		r.log.Info("tracking_sweep_done", observability.F("processed", len(batch)))
	}
	return len(batch)
}

func (r *TrackingReconciler) reconcileOne(ctx context.Context, shp *domain.Shipment) {
	logger := r.log.With(
		observability.F("shipment_id", shp.ID),
		observability.F("tracking_number", shp.TrackingNumber),
	)

	callCtx, cancel := context.WithTimeout(ctx, carrierCallTimeout)
	resp, err := r.carrier.Track(callCtx, shp.TrackingNumber)
	cancel()
	if err != nil {
		// Transient or not, the next sweep picks this shipment up again.
		logger.Warn("tracking_lookup_failed", observability.F("error", err.Error()))
		return
	}

	appended := 0
	for _, e := range resp.Events {
		evt := domain.TrackingEvent{
			Status:      domain.MapCarrierStatus(e.Status),
			Description: e.Description,
			Location:    e.Location,
			Timestamp:   e.Timestamp.UTC(),
		}
		if shp.AppendEvent(evt) {
			appended++
		}
	}

	next := domain.MapCarrierStatus(resp.Status)
	statusChanged := next != shp.Status
	shp.AdvanceStatus(next, r.now())

	if err := r.shipments.Update(ctx, shp); err != nil {
		logger.Error("shipment_update_failed", observability.F("error", err.Error()))
		return
	}

	if appended > 0 || statusChanged {
		logger.Info("tracking_reconciled",
			observability.F("status", string(next)),
			observability.F("new_events", appended),
		)
	}

	if statusChanged && next == domain.StatusDelivered {
		r.completeOrder(ctx, logger, shp)
	}
}

// completeOrder advances the order to delivered and emits the delivery
// event. Failures here are logged; the next status change will not re-fire
// because the shipment status no longer changes.
func (r *TrackingReconciler) completeOrder(ctx context.Context, logger observability.Logger, shp *domain.Shipment) {
	ord, err := r.orders.Get(ctx, shp.OrderID)
	if err != nil {
		logger.Error("order_load_failed", observability.F("error", err.Error()))
		return
	}
	if err := ord.MarkDelivered(); err != nil {
		logger.Warn("order_delivered_transition_failed", observability.F("error", err.Error()))
		return
	}
	if err := r.orders.Update(ctx, ord); err != nil {
		logger.Error("order_update_failed", observability.F("error", err.Error()))
		return
	}

	if r.publisher != nil {
		evt := domain.ShipmentDeliveredEvent{
			ShipmentID: shp.ID,
			OrderID:    ord.ID,
			UserID:     ord.UserID,
			OccurredAt: time.Now().UTC(),
		}
		if pubErr := r.publisher.Publish(ctx, evt); pubErr != nil {
			logger.Warn("shipment_delivered_event_publish_failed", observability.F("error", pubErr.Error()))
		}
	}
}
