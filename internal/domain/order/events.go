package order

import "time"

// OrderPaidEvent is emitted after an order is materialized from a completed
// payment. Notification and fulfillment contexts react to it.
type OrderPaidEvent struct {
	OrderID     string
	OrderNumber string
	UserID      string
	OccurredAt  time.Time
}

func (OrderPaidEvent) EventName() string { return "order.paid" }

func NewOrderPaidEvent(o *Order) OrderPaidEvent {
	return OrderPaidEvent{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		UserID:      o.UserID,
		OccurredAt:  time.Now().UTC(),
	}
}

// OrderCancelledEvent is emitted when an order is cancelled and its stock
// reservations are returned to the ledger.
type OrderCancelledEvent struct {
	OrderID    string
	UserID     string
	OccurredAt time.Time
}

func (OrderCancelledEvent) EventName() string { return "order.cancelled" }

func NewOrderCancelledEvent(o *Order) OrderCancelledEvent {
	return OrderCancelledEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		OccurredAt: time.Now().UTC(),
	}
}
