package order_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apporder "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/order"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/stock"
	domcart "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/cart"
	domorder "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/order"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/outbox"
	dompayment "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/payment"
	domproduct "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/product"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/id"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/memory"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []outbox.Event
}

func (p *capturingPublisher) Publish(_ context.Context, e outbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

type fixture struct {
	orders    *memory.OrderRepository
	carts     *memory.CartRepository
	products  *memory.ProductRepository
	ledger    *stock.Ledger
	publisher *capturingPublisher
	mat       *apporder.Materializer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		orders:    memory.NewOrderRepository(),
		carts:     memory.NewCartRepository(),
		products:  memory.NewProductRepository(),
		publisher: &capturingPublisher{},
	}
	f.ledger = stock.NewLedger(f.products, nil)
	f.mat = apporder.NewMaterializer(
		f.orders, f.carts, f.products, f.ledger,
		memory.NewNumberSequencer(), id.NewUUIDGenerator(),
		f.publisher, decimal.NewFromFloat(0.1), nil,
	)
	return f
}

func (f *fixture) seedProduct(t *testing.T, productID string, price int64, size string, qty int) {
	t.Helper()
	p := domproduct.New(productID, "product "+productID, decimal.NewFromInt(price))
	p.Stock[size] = qty
	require.NoError(t, f.products.Save(context.Background(), p))
}

func (f *fixture) seedCart(t *testing.T, cartID string, items ...domcart.Item) {
	t.Helper()
	require.NoError(t, f.carts.Save(context.Background(), &domcart.Cart{
		ID:     cartID,
		UserID: "user-1",
		Items:  items,
	}))
}

func completedPayment(id, cartID string) *dompayment.Payment {
	pay := dompayment.New(id, "user-1", cartID, dompayment.ProviderPayPal, "ref-"+id, decimal.NewFromInt(100), "USD")
	_ = pay.Complete()
	return pay
}

func TestMaterializeCreatesOrder(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 50, "M", 5)
	f.seedCart(t, "cart-1", domcart.Item{ProductID: "p1", Size: "M", Quantity: 2})

	res, err := f.mat.Materialize(context.Background(), completedPayment("pay-1", "cart-1"))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Regexp(t, `^ORD-\d{4}-\d{6}$`, res.OrderNumber)
	assert.Equal(t, domorder.StatusPaid, res.Status)

	ord, err := f.orders.Get(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "pay-1", ord.PaymentID)
	assert.True(t, ord.Subtotal.Equal(decimal.NewFromInt(100)))
	assert.True(t, ord.Tax.Equal(decimal.NewFromInt(10)))
	assert.True(t, ord.Total.Equal(decimal.NewFromInt(110)))

	p, err := f.products.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Available("M"))

	crt, err := f.carts.Get(context.Background(), "cart-1")
	require.NoError(t, err)
	assert.Empty(t, crt.Items)

	assert.Contains(t, f.publisher.names(), "order.paid")
}

func TestMaterializeIsIdempotentPerPayment(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 50, "M", 5)
	f.seedCart(t, "cart-1", domcart.Item{ProductID: "p1", Size: "M", Quantity: 2})
	pay := completedPayment("pay-1", "cart-1")

	first, err := f.mat.Materialize(context.Background(), pay)
	require.NoError(t, err)
	second, err := f.mat.Materialize(context.Background(), pay)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.OrderNumber, second.OrderNumber)

	// Replay must not take stock again.
	p, err := f.products.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Available("M"))
}

func TestMaterializeSnapshotFreezesCatalogData(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 50, "M", 5)
	f.seedCart(t, "cart-1", domcart.Item{ProductID: "p1", Size: "M", Quantity: 1})

	res, err := f.mat.Materialize(context.Background(), completedPayment("pay-1", "cart-1"))
	require.NoError(t, err)

	// Reprice the product after the sale.
	p, err := f.products.Get(context.Background(), "p1")
	require.NoError(t, err)
	p.Price = decimal.NewFromInt(999)
	p.Name = "renamed"
	require.NoError(t, f.products.Save(context.Background(), p))

	ord, err := f.orders.Get(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.True(t, ord.Items[0].Snapshot.Price.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "product p1", ord.Items[0].Snapshot.Name)
}

func TestMaterializeInsufficientStockLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 50, "M", 5)
	f.seedProduct(t, "p2", 80, "L", 1)
	f.seedCart(t, "cart-1",
		domcart.Item{ProductID: "p1", Size: "M", Quantity: 2},
		domcart.Item{ProductID: "p2", Size: "L", Quantity: 3},
	)

	_, err := f.mat.Materialize(context.Background(), completedPayment("pay-1", "cart-1"))
	require.Error(t, err)
	assert.True(t, stock.IsInsufficientStock(err))

	// Compensated: both counters untouched, no order, cart intact.
	p1, _ := f.products.Get(context.Background(), "p1")
	assert.Equal(t, 5, p1.Available("M"))
	_, err = f.orders.FindByPaymentID(context.Background(), "pay-1")
	assert.ErrorIs(t, err, domorder.ErrNotFound)
	crt, _ := f.carts.Get(context.Background(), "cart-1")
	assert.Len(t, crt.Items, 2)
}

func TestMaterializeRejectsIncompletePayment(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 50, "M", 5)
	f.seedCart(t, "cart-1", domcart.Item{ProductID: "p1", Size: "M", Quantity: 1})

	pending := dompayment.New("pay-1", "user-1", "cart-1", dompayment.ProviderPayPal, "ref-1", decimal.NewFromInt(50), "USD")
	_, err := f.mat.Materialize(context.Background(), pending)
	assert.ErrorIs(t, err, apporder.ErrPaymentNotCompleted)
}

func TestMaterializeEmptyCart(t *testing.T) {
	f := newFixture(t)
	f.seedCart(t, "cart-1")

	_, err := f.mat.Materialize(context.Background(), completedPayment("pay-1", "cart-1"))
	assert.ErrorIs(t, err, domcart.ErrEmpty)
}

func TestMaterializeSequentialNumbers(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 50, "M", 10)
	f.seedCart(t, "cart-1", domcart.Item{ProductID: "p1", Size: "M", Quantity: 1})
	f.seedCart(t, "cart-2", domcart.Item{ProductID: "p1", Size: "M", Quantity: 1})

	first, err := f.mat.Materialize(context.Background(), completedPayment("pay-1", "cart-1"))
	require.NoError(t, err)
	second, err := f.mat.Materialize(context.Background(), completedPayment("pay-2", "cart-2"))
	require.NoError(t, err)

	assert.NotEqual(t, first.OrderNumber, second.OrderNumber)
}
