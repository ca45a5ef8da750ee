package payment_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apppayment "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/payment"
	domcart "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/cart"
	dompayment "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/payment"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/id"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/memory"
)

func TestCheckoutCreatesPendingPayment(t *testing.T) {
	payments := memory.NewPaymentRepository()
	carts := memory.NewCartRepository()
	require.NoError(t, carts.Save(context.Background(), &domcart.Cart{
		ID:     "cart-1",
		UserID: "user-1",
		Items:  []domcart.Item{{ProductID: "p1", Quantity: 1}},
	}))

	gw := &fakeGateway{}
	svc := apppayment.NewCheckoutService(payments, carts,
		func(dompayment.Provider) apppayment.Gateway { return gw },
		id.NewUUIDGenerator(), nil,
	)

	res, err := svc.Checkout(context.Background(), apppayment.CheckoutInput{
		UserID:   "user-1",
		CartID:   "cart-1",
		Provider: dompayment.ProviderPayPal,
		Amount:   decimal.NewFromInt(50),
		Currency: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "ref-new", res.ProviderRef)
	assert.NotEmpty(t, res.ApprovalURL)

	pay, err := payments.FindByProviderRef(context.Background(), dompayment.ProviderPayPal, "ref-new")
	require.NoError(t, err)
	assert.Equal(t, dompayment.StatusPending, pay.Status)
	assert.Equal(t, "cart-1", pay.CartID)
}

func TestCheckoutValidation(t *testing.T) {
	payments := memory.NewPaymentRepository()
	carts := memory.NewCartRepository()
	require.NoError(t, carts.Save(context.Background(), &domcart.Cart{ID: "empty-cart", UserID: "user-1"}))

	gw := &fakeGateway{}
	svc := apppayment.NewCheckoutService(payments, carts,
		func(dompayment.Provider) apppayment.Gateway { return gw },
		id.NewUUIDGenerator(), nil,
	)

	_, err := svc.Checkout(context.Background(), apppayment.CheckoutInput{
		UserID:   "user-1",
		CartID:   "empty-cart",
		Provider: dompayment.ProviderPayPal,
		Amount:   decimal.NewFromInt(50),
	})
	assert.ErrorIs(t, err, domcart.ErrEmpty)

	_, err = svc.Checkout(context.Background(), apppayment.CheckoutInput{
		UserID:   "user-1",
		CartID:   "missing",
		Provider: dompayment.ProviderPayPal,
		Amount:   decimal.NewFromInt(50),
	})
	assert.ErrorIs(t, err, domcart.ErrNotFound)
}

func TestCheckoutNoGatewayForProvider(t *testing.T) {
	carts := memory.NewCartRepository()
	require.NoError(t, carts.Save(context.Background(), &domcart.Cart{
		ID:     "cart-1",
		UserID: "user-1",
		Items:  []domcart.Item{{ProductID: "p1", Quantity: 1}},
	}))

	svc := apppayment.NewCheckoutService(memory.NewPaymentRepository(), carts,
		func(dompayment.Provider) apppayment.Gateway { return nil },
		id.NewUUIDGenerator(), nil,
	)

	_, err := svc.Checkout(context.Background(), apppayment.CheckoutInput{
		UserID:   "user-1",
		CartID:   "cart-1",
		Provider: dompayment.ProviderMercadoPago,
		Amount:   decimal.NewFromInt(50),
	})
	assert.ErrorIs(t, err, apppayment.ErrGatewayUnavailable)
}
