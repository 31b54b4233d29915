package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/giovaniif/e-commerce/inventory/domain/stock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockRepositoryMemoryCreateAndGet(t *testing.T) {
	repo := NewStockRepositoryMemory()
	ctx := context.Background()

	created, err := repo.Create(ctx, stock.Record{ProductID: "sku-1", Quantity: 4, MaximumCapacity: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	_, err = repo.Create(ctx, stock.Record{ProductID: "sku-1", MaximumCapacity: 10})
	assert.ErrorIs(t, err, stock.ErrAlreadyExists)

	got, err := repo.Get(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = repo.Get(ctx, "missing")
	var notFound *stock.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing", notFound.ProductID)
}

func TestStockRepositoryMemorySaveComparesVersion(t *testing.T) {
	repo := NewStockRepositoryMemory(stock.Record{ProductID: "sku-1", Quantity: 4, MaximumCapacity: 10})
	ctx := context.Background()

	loaded, err := repo.Get(ctx, "sku-1")
	require.NoError(t, err)

	first := loaded
	first.ReservedQuantity = 1
	saved, err := repo.Save(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, loaded.Version+1, saved.Version)

	stale := loaded
	stale.ReservedQuantity = 4
	_, err = repo.Save(ctx, stale)
	assert.ErrorIs(t, err, stock.ErrVersionConflict)

	current, err := repo.Get(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), current.ReservedQuantity)
}

func TestStockRepositoryMemoryHonoursContext(t *testing.T) {
	repo := NewStockRepositoryMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := repo.Get(ctx, "sku-1")
	assert.ErrorIs(t, err, context.Canceled)
}
