package payment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/order"
)

var (
	ErrNotFound               = errors.New("payment: not found")
	ErrInvalidStateTransition = errors.New("payment: invalid state transition")
)

type Provider string

const (
	ProviderPayPal      Provider = "paypal"
	ProviderMercadoPago Provider = "mercadopago"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Payment is created at checkout and terminal-transitioned exactly once by
// the reconciler. The provider reference is the correlation key for gateway
// callbacks.
type Payment struct {
	ID          string
	UserID      string
	CartID      string
	Provider    Provider
	ProviderRef string
	Status      Status
	Amount      decimal.Decimal
	Currency    string
	// Shipping data snapshotted from checkout; resolved into the order's
	// canonical shape at materialization time.
	QuotedShipping *order.QuotedShipping
	SimpleShipping *order.Address
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func New(id, userID, cartID string, provider Provider, providerRef string, amount decimal.Decimal, currency string) *Payment {
	now := time.Now().UTC()
	return &Payment{
		ID:          id,
		UserID:      userID,
		CartID:      cartID,
		Provider:    provider,
		ProviderRef: providerRef,
		Status:      StatusPending,
		Amount:      amount,
		Currency:    currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Complete flips pending (or approved) to completed. Any other starting
// status is an invalid transition; callers treat an already-completed
// payment as an idempotent replay before calling this.
func (p *Payment) Complete() error {
	switch p.Status {
	case StatusPending, StatusApproved:
		p.Status = StatusCompleted
		p.touch()
		return nil
	default:
		return ErrInvalidStateTransition
	}
}

func (p *Payment) Fail() error {
	switch p.Status {
	case StatusPending, StatusApproved:
		p.Status = StatusFailed
		p.touch()
		return nil
	default:
		return ErrInvalidStateTransition
	}
}

func (p *Payment) CancelPayment() error {
	switch p.Status {
	case StatusPending, StatusApproved:
		p.Status = StatusCancelled
		p.touch()
		return nil
	default:
		return ErrInvalidStateTransition
	}
}

func (p *Payment) touch() {
	p.UpdatedAt = time.Now().UTC()
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	clone := *p
	if p.QuotedShipping != nil {
		q := *p.QuotedShipping
		clone.QuotedShipping = &q
	}
	if p.SimpleShipping != nil {
		a := *p.SimpleShipping
		clone.SimpleShipping = &a
	}
	return &clone
}
