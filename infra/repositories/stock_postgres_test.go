package repositories

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/giovaniif/e-commerce/inventory/domain/stock"
	"github.com/giovaniif/e-commerce/inventory/infra"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPostgresErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retriable bool
	}{
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"deadlock", &pq.Error{Code: "40P01"}, true},
		{"statement cancelled", &pq.Error{Code: "57014"}, true},
		{"connection failure", &pq.Error{Code: "08006"}, true},
		{"check violation", &pq.Error{Code: "23514"}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"caller cancelled", context.Canceled, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			assert.Equal(t, tt.retriable, infra.IsRetriable(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func newTestPostgres(t *testing.T) *StockRepositoryPostgres {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewStockRepositoryPostgres(db)
	require.NoError(t, repo.Migrate(ctx))
	_, err = db.ExecContext(ctx, `TRUNCATE stock_records`)
	require.NoError(t, err)
	return repo
}

func TestStockRepositoryPostgres(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, "sku-1")
	require.ErrorIs(t, err, stock.ErrNotFound)

	created, err := repo.Create(ctx, stock.Record{ProductID: "sku-1", Quantity: 5, MinimumThreshold: 1, MaximumCapacity: 10, WarehouseLocation: "A1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	_, err = repo.Create(ctx, created)
	require.ErrorIs(t, err, stock.ErrAlreadyExists)

	next := created
	next.ReservedQuantity = 2
	next.LastSaleAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	saved, err := repo.Save(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)

	_, err = repo.Save(ctx, next)
	require.ErrorIs(t, err, stock.ErrVersionConflict, "stale version must be rejected")

	stored, err := repo.Get(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), stored.ReservedQuantity)
	assert.True(t, stored.LastSaleAt.Equal(next.LastSaleAt))
	assert.True(t, stored.LastRestockAt.IsZero())

	_, err = repo.Save(ctx, stock.Record{ProductID: "sku-missing", MaximumCapacity: 1, Version: 1})
	require.ErrorIs(t, err, stock.ErrNotFound)
}
