package notification

import (
	"context"
	"errors"
	"fmt"

	domnotif "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/notification"
	domorder "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/order"
	domoutbox "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/outbox"
	domshipment "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/shipment"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability/logctx"
)

const notificationWorker = "notification_worker"

// Worker turns saga events into user notifications. Enqueue failures here
// never travel back to the publishing side; notifications are best-effort.
type Worker struct {
	subscriber domoutbox.Subscriber
	dispatcher *Dispatcher
	log        observability.Logger
}

func NewWorker(subscriber domoutbox.Subscriber, dispatcher *Dispatcher, logger observability.Logger) *Worker {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Worker{
		subscriber: subscriber,
		dispatcher: dispatcher,
		log:        logger.With(observability.F("component", notificationWorker)),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.dispatcher == nil {
		return
	}
	w.subscriber.Subscribe(domorder.OrderPaidEvent{}.EventName(), w.handleOrderPaid)
	w.subscriber.Subscribe(domorder.OrderCancelledEvent{}.EventName(), w.handleOrderCancelled)
	w.subscriber.Subscribe(domshipment.ShipmentShippedEvent{}.EventName(), w.handleShipmentShipped)
	w.subscriber.Subscribe(domshipment.ShipmentDeliveredEvent{}.EventName(), w.handleShipmentDelivered)
}

func (w *Worker) handleOrderPaid(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domorder.OrderPaidEvent)
	if !ok {
		return nil
	}
	w.enqueue(ctx, evt.UserID, domnotif.TypeOrderConfirmed,
		"Order confirmed",
		fmt.Sprintf("Your order %s has been confirmed.", evt.OrderNumber),
	)
	return nil
}

func (w *Worker) handleOrderCancelled(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domorder.OrderCancelledEvent)
	if !ok {
		return nil
	}
	w.enqueue(ctx, evt.UserID, domnotif.TypeOrderCancelled,
		"Order cancelled",
		"Your order has been cancelled and any reserved items were returned to stock.",
	)
	return nil
}

func (w *Worker) handleShipmentShipped(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domshipment.ShipmentShippedEvent)
	if !ok {
		return nil
	}
	w.enqueue(ctx, evt.UserID, domnotif.TypeOrderShipped,
		"Order shipped",
		fmt.Sprintf("Your order is on its way. Tracking number: %s.", evt.TrackingNumber),
	)
	return nil
}

func (w *Worker) handleShipmentDelivered(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domshipment.ShipmentDeliveredEvent)
	if !ok {
		return nil
	}
	w.enqueue(ctx, evt.UserID, domnotif.TypeOrderDelivered,
		"Order delivered",
		"Your order has been delivered. Enjoy!",
	)
	return nil
}

// enqueue fans the message out to email plus the in-app inbox. A channel
// refused by user preferences is skipped silently; anything else is logged
// and dropped.
func (w *Worker) enqueue(ctx context.Context, userID string, typ domnotif.Type, title, body string) {
	logger := logctx.FromOr(ctx, w.log)
	for _, ch := range []domnotif.Channel{domnotif.ChannelEmail, domnotif.ChannelInApp} {
		if _, err := w.dispatcher.Enqueue(ctx, EnqueueInput{
			UserID:  userID,
			Type:    typ,
			Channel: ch,
			Title:   title,
			Body:    body,
		}); err != nil && !errors.Is(err, domnotif.ErrChannelNotAllowed) {
			logger.Warn("notification_enqueue_failed",
				observability.F("type", string(typ)),
				observability.F("channel", string(ch)),
				observability.F("error", err.Error()),
			)
		}
	}
}
