package payment

import (
	"context"

	"github.com/shopspring/decimal"

	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/payment"
)

// CheckoutRequest describes what the gateway should collect.
type CheckoutRequest struct {
	Amount    decimal.Decimal
	Currency  string
	ReturnURL string
	CancelURL string
}

// CheckoutSession is the gateway's handle for an initiated checkout.
type CheckoutSession struct {
	ProviderRef string
	ApprovalURL string
}

// Gateway is the outbound port to a payment provider. The provider is
// opaque; the reconciler only ever looks payments up and captures them.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	Capture(ctx context.Context, providerRef string) (domain.Status, error)
	Cancel(ctx context.Context, providerRef string) error
}

// GatewayResolver picks the gateway client for a provider.
type GatewayResolver func(provider domain.Provider) Gateway
