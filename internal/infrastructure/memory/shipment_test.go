package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/shipment"
	"github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/infrastructure/memory"
)

func TestShipmentInsertSupersedesOrderIndex(t *testing.T) {
	repo := memory.NewShipmentRepository()
	ctx := context.Background()

	first := domain.New("shp-1", "ord-1")
	first.MarkException("carrier unavailable, retries exhausted", 4)
	require.NoError(t, repo.Insert(ctx, first))

	second := domain.New("shp-2", "ord-1")
	require.NoError(t, repo.Insert(ctx, second))

	byOrder, err := repo.FindByOrderID(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "shp-2", byOrder.ID, "the newest shipment owns the order index")

	// The superseded row stays reachable by ID.
	old, err := repo.Get(ctx, "shp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusException, old.Status)
}
