package shipment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domorder "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/order"
)

type IDGenerator interface {
	NewID() string
}

type Package struct {
	WeightKg float64
	Pieces   int
}

type Rate struct {
	CarrierCode   string
	ServiceName   string
	Fee           decimal.Decimal
	DaysInTransit int
}

type GenerateRequest struct {
	OrderID     string
	OrderNumber string
	Destination domorder.Address
	CarrierCode string
	ServiceName string
	Packages    []Package
}

type GenerateResponse struct {
	ShipmentID        string
	TrackingNumber    string
	LabelURL          string
	Status            string
	EstimatedDelivery *time.Time
}

type TrackEvent struct {
	Status      string
	Description string
	Location    string
	Timestamp   time.Time
}

type TrackResponse struct {
	Status string
	Events []TrackEvent
}

// CarrierClient is the outbound port to the shipping carrier API.
// Implementations surface failures as *CarrierError so callers can classify
// them for retry.
type CarrierClient interface {
	Quote(ctx context.Context, origin, destination domorder.Address, packages []Package) ([]Rate, error)
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	Track(ctx context.Context, trackingNumber string) (*TrackResponse, error)
	Cancel(ctx context.Context, carrierShipmentID string) error
}

// CarrierError carries enough of the transport outcome to classify it:
// HTTP status for wire responses, Timeout for deadline hits, and a zero
// status code for network-level failures (refused connections, DNS).
type CarrierError struct {
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *CarrierError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("carrier: timeout: %v", e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("carrier: status %d: %v", e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("carrier: network: %v", e.Err)
	}
}

func (e *CarrierError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient: 5xx, timeouts and
// network-level errors. Client errors (4xx) are permanent.
func (e *CarrierError) Retryable() bool {
	if e.Timeout || e.StatusCode == 0 {
		return true
	}
	return e.StatusCode >= 500
}
