package order_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apporder "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/order"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/stock"
	domorder "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/order"
	domproduct "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/product"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/memory"
)

func seedPaidOrder(t *testing.T, orders *memory.OrderRepository) *domorder.Order {
	t.Helper()
	ord, err := domorder.New("ord-1", "ORD-2026-000001", "user-1", "pay-1", []domorder.Item{
		{
			ProductID:     "p1",
			Size:          "M",
			Quantity:      2,
			Snapshot:      domorder.ProductSnapshot{Name: "sneaker", Price: decimal.NewFromInt(50)},
			ReservedStock: 2,
		},
	})
	require.NoError(t, err)
	require.NoError(t, ord.MarkPaid())
	require.NoError(t, orders.Insert(context.Background(), ord))
	return ord
}

func TestCancelReleasesReservedStockOnce(t *testing.T) {
	orders := memory.NewOrderRepository()
	products := memory.NewProductRepository()
	ledger := stock.NewLedger(products, nil)
	svc := apporder.NewService(orders, ledger, nil, nil)

	p := domproduct.New("p1", "sneaker", decimal.NewFromInt(50))
	p.Stock["M"] = 3 // 2 units already reserved by the order
	require.NoError(t, products.Save(context.Background(), p))
	seedPaidOrder(t, orders)

	cancelled, err := svc.Cancel(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusCancelled, cancelled.Status)
	assert.True(t, cancelled.Items[0].StockReleased)

	got, err := products.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Available("M"))

	// A second cancel is an invalid transition, so stock stays put.
	_, err = svc.Cancel(context.Background(), "ord-1")
	assert.ErrorIs(t, err, domorder.ErrInvalidStateTransition)
	got, err = products.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Available("M"))
}

func TestCancelShippedOrderRefused(t *testing.T) {
	orders := memory.NewOrderRepository()
	svc := apporder.NewService(orders, stock.NewLedger(memory.NewProductRepository(), nil), nil, nil)

	ord := seedPaidOrder(t, orders)
	require.NoError(t, ord.MarkShipped())
	require.NoError(t, orders.Update(context.Background(), ord))

	_, err := svc.Cancel(context.Background(), "ord-1")
	assert.ErrorIs(t, err, domorder.ErrInvalidStateTransition)
}

func TestMarkProcessing(t *testing.T) {
	orders := memory.NewOrderRepository()
	svc := apporder.NewService(orders, stock.NewLedger(memory.NewProductRepository(), nil), nil, nil)
	seedPaidOrder(t, orders)

	ord, err := svc.MarkProcessing(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusProcessing, ord.Status)
}
