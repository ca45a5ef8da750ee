package shipment

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("shipment: not found")
	ErrNotCancellable = errors.New("shipment: cancellation only allowed before carrier pickup")
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusCreated        Status = "created"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusFailedDelivery Status = "failed_delivery"
	StatusReturned       Status = "returned"
	StatusCancelled      Status = "cancelled"
	StatusException      Status = "exception"
)

// TrackingEvent is one entry in the append-only carrier history.
type TrackingEvent struct {
	Status      Status
	Description string
	Location    string
	Timestamp   time.Time
}

type Shipment struct {
	ID                 string
	OrderID            string
	Status             Status
	CarrierShipmentID  string
	TrackingNumber     string
	LabelURL           string
	EstimatedDelivery  *time.Time
	RetryCount         int
	ErrorMessage       string
	Events             []TrackingEvent
	LastTrackingUpdate time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func New(id, orderID string) *Shipment {
	now := time.Now().UTC()
	return &Shipment{
		ID:        id,
		OrderID:   orderID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// carrierStatusMap is the fixed mapping from carrier wire statuses to the
// internal lifecycle.
var carrierStatusMap = map[string]Status{
	"created":          StatusCreated,
	"label_generated":  StatusCreated,
	"picked_up":        StatusInTransit,
	"in_transit":       StatusInTransit,
	"out_for_delivery": StatusOutForDelivery,
	"delivered":        StatusDelivered,
	"failed_delivery":  StatusFailedDelivery,
	"returned":         StatusReturned,
	"cancelled":        StatusCancelled,
	"exception":        StatusException,
}

// MapCarrierStatus translates a carrier status string; unknown statuses map
// to exception so operators notice them.
func MapCarrierStatus(raw string) Status {
	if s, ok := carrierStatusMap[raw]; ok {
		return s
	}
	return StatusException
}

// Active reports whether the shipment is still moving and worth tracking.
func (s *Shipment) Active() bool {
	switch s.Status {
	case StatusCreated, StatusInTransit, StatusOutForDelivery:
		return true
	default:
		return false
	}
}

// AppendEvent records a tracking event unless an identical one (same
// timestamp and status) is already in the history. Returns true when the
// event was genuinely new.
func (s *Shipment) AppendEvent(e TrackingEvent) bool {
	for _, existing := range s.Events {
		if existing.Timestamp.Equal(e.Timestamp) && existing.Status == e.Status {
			return false
		}
	}
	s.Events = append(s.Events, e)
	s.touch()
	return true
}

// AdvanceStatus moves the shipment to the carrier-reported status and stamps
// the tracking update time.
func (s *Shipment) AdvanceStatus(next Status, now time.Time) {
	s.Status = next
	s.LastTrackingUpdate = now
	s.UpdatedAt = now
}

// MarkCreated records the successful carrier registration.
func (s *Shipment) MarkCreated(carrierShipmentID, trackingNumber, labelURL string, eta *time.Time) {
	s.CarrierShipmentID = carrierShipmentID
	s.TrackingNumber = trackingNumber
	s.LabelURL = labelURL
	s.EstimatedDelivery = eta
	s.Status = StatusCreated
	s.LastTrackingUpdate = time.Now().UTC()
	s.touch()
}

// MarkException parks the shipment after exhausted or non-retryable carrier
// failures; the error message tells operators what happened.
func (s *Shipment) MarkException(reason string, attempts int) {
	s.Status = StatusException
	s.ErrorMessage = reason
	s.RetryCount = attempts
	s.touch()
}

// Cancel is only permitted before the carrier has picked the parcel up.
func (s *Shipment) Cancel() error {
	if s.Status != StatusPending && s.Status != StatusCreated {
		return ErrNotCancellable
	}
	s.Status = StatusCancelled
	s.touch()
	return nil
}

func (s *Shipment) touch() {
	s.UpdatedAt = time.Now().UTC()
}

func (s *Shipment) Clone() *Shipment {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Events = append([]TrackingEvent(nil), s.Events...)
	if s.EstimatedDelivery != nil {
		eta := *s.EstimatedDelivery
		clone.EstimatedDelivery = &eta
	}
	return &clone
}
