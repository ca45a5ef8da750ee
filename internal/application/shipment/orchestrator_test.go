package shipment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appshipment "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/shipment"
	domorder "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/order"
	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/shipment"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/id"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/memory"
)

// carrierScript returns one queued outcome per Generate call.
type carrierScript struct {
	generate []func() (*appshipment.GenerateResponse, error)
	calls    int

	trackResp *appshipment.TrackResponse
	trackErr  error

	cancelled []string
}

func (c *carrierScript) Quote(context.Context, domorder.Address, domorder.Address, []appshipment.Package) ([]appshipment.Rate, error) {
	return nil, nil
}

func (c *carrierScript) Generate(context.Context, appshipment.GenerateRequest) (*appshipment.GenerateResponse, error) {
	if c.calls >= len(c.generate) {
		return nil, &appshipment.CarrierError{StatusCode: 500, Err: errors.New("unscripted call")}
	}
	fn := c.generate[c.calls]
	c.calls++
	return fn()
}

func (c *carrierScript) Track(context.Context, string) (*appshipment.TrackResponse, error) {
	return c.trackResp, c.trackErr
}

func (c *carrierScript) Cancel(_ context.Context, carrierShipmentID string) error {
	c.cancelled = append(c.cancelled, carrierShipmentID)
	return nil
}

func okGenerate() (*appshipment.GenerateResponse, error) {
	return &appshipment.GenerateResponse{
		ShipmentID:     "carrier-1",
		TrackingNumber: "TRK123",
		LabelURL:       "https://carrier.example/label/TRK123",
		Status:         "created",
	}, nil
}

func failWith(status int) func() (*appshipment.GenerateResponse, error) {
	return func() (*appshipment.GenerateResponse, error) {
		return nil, &appshipment.CarrierError{StatusCode: status, Err: errors.New("carrier says no")}
	}
}

func timeoutCall() (*appshipment.GenerateResponse, error) {
	return nil, &appshipment.CarrierError{Timeout: true, Err: context.DeadlineExceeded}
}

type orchestratorFixture struct {
	shipments *memory.ShipmentRepository
	orders    *memory.OrderRepository
	carrier   *carrierScript
	orch      *appshipment.Orchestrator
}

func newOrchestratorFixture(t *testing.T, carrier *carrierScript) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		shipments: memory.NewShipmentRepository(),
		orders:    memory.NewOrderRepository(),
		carrier:   carrier,
	}
	f.orch = appshipment.NewOrchestrator(f.shipments, f.orders, carrier, id.NewUUIDGenerator(), nil, nil).
		WithBackoff(func(int) time.Duration { return 0 })
	return f
}

func (f *orchestratorFixture) seedOrder(t *testing.T, status domorder.Status, withAddress bool) *domorder.Order {
	t.Helper()
	ord, err := domorder.New("ord-1", "ORD-2026-000001", "user-1", "pay-1", []domorder.Item{
		{ProductID: "p1", Quantity: 1, Snapshot: domorder.ProductSnapshot{Name: "sneaker", Price: decimal.NewFromInt(50)}},
	})
	require.NoError(t, err)
	if withAddress {
		ord.Shipping = domorder.ShippingInfo{
			Kind:    domorder.ShippingSimple,
			Address: domorder.Address{Street: "123 Main St", City: "Springfield", Country: "US"},
		}
	}
	switch status {
	case domorder.StatusPaid:
		require.NoError(t, ord.MarkPaid())
	case domorder.StatusProcessing:
		require.NoError(t, ord.MarkPaid())
		require.NoError(t, ord.MarkProcessing())
	}
	require.NoError(t, f.orders.Insert(context.Background(), ord))
	return ord
}

func TestGenerateHappyPath(t *testing.T) {
	f := newOrchestratorFixture(t, &carrierScript{generate: []func() (*appshipment.GenerateResponse, error){okGenerate}})
	f.seedOrder(t, domorder.StatusPaid, true)

	shp, err := f.orch.Generate(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCreated, shp.Status)
	assert.Equal(t, "TRK123", shp.TrackingNumber)

	ord, err := f.orders.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusShipped, ord.Status)
}

func TestGenerateRetriesTransientFailures(t *testing.T) {
	script := &carrierScript{generate: []func() (*appshipment.GenerateResponse, error){
		failWith(503),
		timeoutCall,
		okGenerate,
	}}
	f := newOrchestratorFixture(t, script)
	f.seedOrder(t, domorder.StatusPaid, true)

	shp, err := f.orch.Generate(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, 3, script.calls)
	assert.Equal(t, domain.StatusCreated, shp.Status)
}

func TestGenerateExhaustsRetriesThenParksException(t *testing.T) {
	script := &carrierScript{generate: []func() (*appshipment.GenerateResponse, error){
		failWith(503), failWith(502), timeoutCall, failWith(500),
	}}
	f := newOrchestratorFixture(t, script)
	f.seedOrder(t, domorder.StatusPaid, true)

	_, err := f.orch.Generate(context.Background(), "ord-1")
	assert.ErrorIs(t, err, appshipment.ErrServiceUnavailable)
	assert.Equal(t, 4, script.calls, "initial attempt plus three retries")

	shp, findErr := f.shipments.FindByOrderID(context.Background(), "ord-1")
	require.NoError(t, findErr)
	assert.Equal(t, domain.StatusException, shp.Status)
	assert.Equal(t, 4, shp.RetryCount)
	assert.NotEmpty(t, shp.ErrorMessage)

	// The order never moved.
	ord, _ := f.orders.Get(context.Background(), "ord-1")
	assert.Equal(t, domorder.StatusPaid, ord.Status)
}

func TestGenerateNonRetryableFailsImmediately(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{400, appshipment.ErrCarrierValidation},
		{401, appshipment.ErrAuthConfiguration},
		{403, appshipment.ErrAuthConfiguration},
		{404, appshipment.ErrCarrierNotFound},
	}
	for _, tc := range cases {
		script := &carrierScript{generate: []func() (*appshipment.GenerateResponse, error){failWith(tc.status)}}
		f := newOrchestratorFixture(t, script)
		f.seedOrder(t, domorder.StatusPaid, true)

		_, err := f.orch.Generate(context.Background(), "ord-1")
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		assert.Equal(t, 1, script.calls, "status %d must not be retried", tc.status)
	}
}

func TestGenerateRequiresReadyOrder(t *testing.T) {
	f := newOrchestratorFixture(t, &carrierScript{})
	f.seedOrder(t, domorder.StatusPending, true)

	_, err := f.orch.Generate(context.Background(), "ord-1")
	assert.ErrorIs(t, err, appshipment.ErrOrderNotReady)
}

func TestGenerateRequiresShippingAddress(t *testing.T) {
	f := newOrchestratorFixture(t, &carrierScript{})
	f.seedOrder(t, domorder.StatusPaid, false)

	_, err := f.orch.Generate(context.Background(), "ord-1")
	assert.ErrorIs(t, err, appshipment.ErrNoShippingAddress)
	assert.Equal(t, 0, f.carrier.calls, "an order without a destination never reaches the carrier")
}

func TestGenerateIsIdempotentPerOrder(t *testing.T) {
	script := &carrierScript{generate: []func() (*appshipment.GenerateResponse, error){okGenerate}}
	f := newOrchestratorFixture(t, script)
	f.seedOrder(t, domorder.StatusPaid, true)

	first, err := f.orch.Generate(context.Background(), "ord-1")
	require.NoError(t, err)

	// The first success moved the order to shipped; the replay still hands
	// back the live shipment instead of refusing the order.
	ord, err := f.orders.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, domorder.StatusShipped, ord.Status)

	second, err := f.orch.Generate(context.Background(), "ord-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, script.calls, "repeat calls must not hit the carrier again")
}

func TestCancelShipmentBeforePickup(t *testing.T) {
	script := &carrierScript{generate: []func() (*appshipment.GenerateResponse, error){okGenerate}}
	f := newOrchestratorFixture(t, script)
	f.seedOrder(t, domorder.StatusPaid, true)

	shp, err := f.orch.Generate(context.Background(), "ord-1")
	require.NoError(t, err)

	cancelled, err := f.orch.CancelShipment(context.Background(), shp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, []string{"carrier-1"}, script.cancelled)
}

func TestCancelShipmentInTransitRefused(t *testing.T) {
	f := newOrchestratorFixture(t, &carrierScript{})
	shp := domain.New("shp-1", "ord-1")
	shp.MarkCreated("carrier-1", "TRK123", "", nil)
	shp.AdvanceStatus(domain.StatusInTransit, time.Now().UTC())
	require.NoError(t, f.shipments.Insert(context.Background(), shp))

	_, err := f.orch.CancelShipment(context.Background(), "shp-1")
	assert.ErrorIs(t, err, domain.ErrNotCancellable)
}
