package shipment

import "time"

// ShipmentShippedEvent is emitted when the carrier accepts the shipment and
// the order moves to shipped.
type ShipmentShippedEvent struct {
	ShipmentID     string
	OrderID        string
	UserID         string
	TrackingNumber string
	OccurredAt     time.Time
}

func (ShipmentShippedEvent) EventName() string { return "shipment.shipped" }

// ShipmentDeliveredEvent is emitted when tracking reconciliation observes a
// delivered status.
type ShipmentDeliveredEvent struct {
	ShipmentID string
	OrderID    string
	UserID     string
	OccurredAt time.Time
}

func (ShipmentDeliveredEvent) EventName() string { return "shipment.delivered" }
