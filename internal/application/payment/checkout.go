package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	domcart "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/cart"
	domorder "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/order"
	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/payment"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/observability/logctx"
)

var ErrGatewayUnavailable = errors.New("payment: no gateway configured for provider")

type IDGenerator interface {
	NewID() string
}

type CheckoutInput struct {
	UserID         string
	CartID         string
	Provider       domain.Provider
	Amount         decimal.Decimal
	Currency       string
	ReturnURL      string
	CancelURL      string
	QuotedShipping *domorder.QuotedShipping
	SimpleShipping *domorder.Address
}

type CheckoutResult struct {
	PaymentID   string
	ProviderRef string
	ApprovalURL string
}

// CheckoutService creates the pending payment the reconciler later looks up
// by provider reference. The gateway owns the actual money movement.
type CheckoutService struct {
	payments domain.Repository
	carts    domcart.Repository
	gateways GatewayResolver
	idGen    IDGenerator
	log      observability.Logger
}

func NewCheckoutService(
	payments domain.Repository,
	carts domcart.Repository,
	gateways GatewayResolver,
	idGen IDGenerator,
	logger observability.Logger,
) *CheckoutService {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &CheckoutService{
		payments: payments,
		carts:    carts,
		gateways: gateways,
		idGen:    idGen,
		log:      logger.With(observability.F("component", "checkout_service")),
	}
}

func (s *CheckoutService) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("user_id", input.UserID),
		observability.F("cart_id", input.CartID),
		observability.F("provider", string(input.Provider)),
	)

	if input.UserID == "" {
		return nil, errors.New("payment: user id is required")
	}
	crt, err := s.carts.Get(ctx, input.CartID)
	if err != nil {
		return nil, fmt.Errorf("payment: load cart: %w", err)
	}
	if len(crt.Items) == 0 {
		return nil, domcart.ErrEmpty
	}
	if !input.Amount.IsPositive() {
		return nil, errors.New("payment: amount must be greater than zero")
	}

	gw := s.gateways(input.Provider)
	if gw == nil {
		return nil, ErrGatewayUnavailable
	}

	session, err := gw.CreateCheckout(ctx, CheckoutRequest{
		Amount:    input.Amount,
		Currency:  input.Currency,
		ReturnURL: input.ReturnURL,
		CancelURL: input.CancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("payment: create checkout: %w", err)
	}

	pay := domain.New(s.idGen.NewID(), input.UserID, crt.ID, input.Provider, session.ProviderRef, input.Amount, input.Currency)
	pay.QuotedShipping = input.QuotedShipping
	pay.SimpleShipping = input.SimpleShipping

	if err := s.payments.Insert(ctx, pay); err != nil {
		return nil, fmt.Errorf("payment: persist checkout: %w", err)
	}

	logger.Info("checkout_created",
		observability.F("payment_id", pay.ID),
		observability.F("provider_ref", session.ProviderRef),
	)
	return &CheckoutResult{
		PaymentID:   pay.ID,
		ProviderRef: session.ProviderRef,
		ApprovalURL: session.ApprovalURL,
	}, nil
}
