package repositories

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/giovaniif/e-commerce/inventory/domain/stock"
	"github.com/giovaniif/e-commerce/inventory/infra"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

const selectColumns = `product_id, quantity, reserved_quantity, minimum_threshold, maximum_capacity,
	warehouse_location, last_restock_at, last_sale_at, version`

// StockRepositoryPostgres stores one row per product. Save is a conditional
// UPDATE on the version column, so concurrent writers from other processes
// surface as stock.ErrVersionConflict instead of lost updates.
type StockRepositoryPostgres struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classify("ping postgres", err)
	}
	return db, nil
}

func NewStockRepositoryPostgres(db *sql.DB) *StockRepositoryPostgres {
	return &StockRepositoryPostgres{db: db}
}

// Migrate creates the stock table when it does not exist.
func (r *StockRepositoryPostgres) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return classify("migrate stock schema", err)
	}
	return nil
}

func (r *StockRepositoryPostgres) Get(ctx context.Context, productId string) (stock.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM stock_records WHERE product_id = $1`, productId)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return stock.Record{}, &stock.NotFoundError{ProductID: productId}
	}
	if err != nil {
		return stock.Record{}, classify("get stock record", err)
	}
	return record, nil
}

func (r *StockRepositoryPostgres) Create(ctx context.Context, record stock.Record) (stock.Record, error) {
	record.Version = 1
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stock_records (product_id, quantity, reserved_quantity, minimum_threshold,
			maximum_capacity, warehouse_location, last_restock_at, last_sale_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ProductID, record.Quantity, record.ReservedQuantity, record.MinimumThreshold,
		record.MaximumCapacity, record.WarehouseLocation,
		nullTime(record.LastRestockAt), nullTime(record.LastSaleAt), record.Version,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return stock.Record{}, fmt.Errorf("%w: %s", stock.ErrAlreadyExists, record.ProductID)
	}
	if err != nil {
		return stock.Record{}, classify("create stock record", err)
	}
	return record, nil
}

func (r *StockRepositoryPostgres) Save(ctx context.Context, record stock.Record) (stock.Record, error) {
	var version int64
	err := r.db.QueryRowContext(ctx, `
		UPDATE stock_records SET
			quantity = $2, reserved_quantity = $3, minimum_threshold = $4, maximum_capacity = $5,
			warehouse_location = $6, last_restock_at = $7, last_sale_at = $8,
			version = version + 1, updated_at = now()
		WHERE product_id = $1 AND version = $9
		RETURNING version`,
		record.ProductID, record.Quantity, record.ReservedQuantity, record.MinimumThreshold,
		record.MaximumCapacity, record.WarehouseLocation,
		nullTime(record.LastRestockAt), nullTime(record.LastSaleAt), record.Version,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return stock.Record{}, r.missedUpdate(ctx, record.ProductID)
	}
	if err != nil {
		return stock.Record{}, classify("save stock record", err)
	}
	record.Version = version
	return record, nil
}

// missedUpdate tells a stale version apart from a deleted row.
func (r *StockRepositoryPostgres) missedUpdate(ctx context.Context, productId string) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM stock_records WHERE product_id = $1)`, productId).Scan(&exists)
	if err != nil {
		return classify("check stock record", err)
	}
	if !exists {
		return &stock.NotFoundError{ProductID: productId}
	}
	return stock.ErrVersionConflict
}

func scanRecord(row *sql.Row) (stock.Record, error) {
	var record stock.Record
	var lastRestock, lastSale sql.NullTime
	err := row.Scan(
		&record.ProductID, &record.Quantity, &record.ReservedQuantity, &record.MinimumThreshold,
		&record.MaximumCapacity, &record.WarehouseLocation, &lastRestock, &lastSale, &record.Version,
	)
	if err != nil {
		return stock.Record{}, err
	}
	if lastRestock.Valid {
		record.LastRestockAt = lastRestock.Time.UTC()
	}
	if lastSale.Valid {
		record.LastSaleAt = lastSale.Time.UTC()
	}
	return record, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// classify tags driver failures the coordinator may retry. Serialization
// failures, deadlocks and cancelled statements are transient; connection
// errors come back from database/sql as driver.ErrBadConn or net errors.
func classify(details string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return infra.WrapTimeout(details, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", details, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return infra.WrapNetwork(details, err)
		case "57014":
			return infra.WrapTimeout(details, err)
		}
		if pqErr.Code.Class() == "08" {
			return infra.WrapNetwork(details, err)
		}
		return fmt.Errorf("%s: %w", details, err)
	}
	return infra.WrapNetwork(details, err)
}
