package stock_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/stock"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/product"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/memory"
)

func seedProduct(t *testing.T, repo product.Repository, id string, stockBySize map[string]int) {
	t.Helper()
	p := product.New(id, "sneaker "+id, decimal.NewFromInt(100))
	for size, qty := range stockBySize {
		p.Stock[size] = qty
	}
	require.NoError(t, repo.Save(context.Background(), p))
}

func available(t *testing.T, repo product.Repository, id, size string) int {
	t.Helper()
	p, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Available(size)
}

func TestLedgerReserveAndRelease(t *testing.T) {
	repo := memory.NewProductRepository()
	ledger := stock.NewLedger(repo, nil)
	seedProduct(t, repo, "p1", map[string]int{"M": 5})

	res, err := ledger.Reserve(context.Background(), "p1", "M", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Quantity)
	assert.Equal(t, 2, available(t, repo, "p1", "M"))

	require.NoError(t, ledger.Release(context.Background(), "p1", "M", 3))
	assert.Equal(t, 5, available(t, repo, "p1", "M"))
}

func TestLedgerReserveDefaultsUnsized(t *testing.T) {
	repo := memory.NewProductRepository()
	ledger := stock.NewLedger(repo, nil)
	seedProduct(t, repo, "p1", map[string]int{product.SizeUnsized: 2})

	_, err := ledger.Reserve(context.Background(), "p1", "", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, available(t, repo, "p1", ""))
}

func TestLedgerInsufficientStockFailsImmediately(t *testing.T) {
	repo := memory.NewProductRepository()
	ledger := stock.NewLedger(repo, nil)
	seedProduct(t, repo, "p1", map[string]int{"M": 2})

	_, err := ledger.Reserve(context.Background(), "p1", "M", 3)
	require.Error(t, err)
	assert.True(t, stock.IsInsufficientStock(err))
	assert.Equal(t, 2, available(t, repo, "p1", "M"), "failed reserve must not touch the counter")
}

func TestLedgerInvalidQuantity(t *testing.T) {
	repo := memory.NewProductRepository()
	ledger := stock.NewLedger(repo, nil)
	seedProduct(t, repo, "p1", map[string]int{"M": 2})

	_, err := ledger.Reserve(context.Background(), "p1", "M", 0)
	assert.ErrorIs(t, err, product.ErrInvalidQuantity)
	err = ledger.Release(context.Background(), "p1", "M", -1)
	assert.ErrorIs(t, err, product.ErrInvalidQuantity)
}

func TestLedgerConcurrentReserveNeverOversells(t *testing.T) {
	repo := memory.NewProductRepository()
	ledger := stock.NewLedger(repo, nil)
	seedProduct(t, repo, "p1", map[string]int{"M": 3})

	const callers = 10
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Reserve(context.Background(), "p1", "M", 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, stock.IsInsufficientStock(err))
		}
	}
	assert.Equal(t, 3, succeeded, "exactly the available units may be reserved")
	assert.Equal(t, 0, available(t, repo, "p1", "M"))
}

func TestLedgerBulkReserveAllOrNothing(t *testing.T) {
	repo := memory.NewProductRepository()
	ledger := stock.NewLedger(repo, nil)
	seedProduct(t, repo, "p1", map[string]int{"M": 5})
	seedProduct(t, repo, "p2", map[string]int{"L": 1})

	_, err := ledger.BulkReserve(context.Background(), []stock.ReserveItem{
		{ProductID: "p1", Size: "M", Quantity: 2},
		{ProductID: "p2", Size: "L", Quantity: 3},
	})
	require.Error(t, err)
	assert.True(t, stock.IsInsufficientStock(err))

	assert.Equal(t, 5, available(t, repo, "p1", "M"), "earlier reservation must be compensated")
	assert.Equal(t, 1, available(t, repo, "p2", "L"))
}

func TestLedgerBulkReserveSuccess(t *testing.T) {
	repo := memory.NewProductRepository()
	ledger := stock.NewLedger(repo, nil)
	seedProduct(t, repo, "p1", map[string]int{"M": 5})
	seedProduct(t, repo, "p2", map[string]int{"L": 4})

	reserved, err := ledger.BulkReserve(context.Background(), []stock.ReserveItem{
		{ProductID: "p1", Size: "M", Quantity: 2},
		{ProductID: "p2", Size: "L", Quantity: 4},
	})
	require.NoError(t, err)
	assert.Len(t, reserved, 2)
	assert.Equal(t, 3, available(t, repo, "p1", "M"))
	assert.Equal(t, 0, available(t, repo, "p2", "L"))
}
