package repositories

import (
	"context"
	"sync"

	"github.com/giovaniif/e-commerce/inventory/domain/stock"
)

// StockRepositoryMemory keeps records in a map and enforces the same
// compare-on-write contract as the Postgres repository.
type StockRepositoryMemory struct {
	mutex   sync.RWMutex
	records map[string]stock.Record
}

func NewStockRepositoryMemory(records ...stock.Record) *StockRepositoryMemory {
	r := &StockRepositoryMemory{records: make(map[string]stock.Record, len(records))}
	for _, record := range records {
		if record.Version == 0 {
			record.Version = 1
		}
		r.records[record.ProductID] = record
	}
	return r
}

func (r *StockRepositoryMemory) Get(ctx context.Context, productId string) (stock.Record, error) {
	if ctx.Err() != nil {
		return stock.Record{}, ctx.Err()
	}
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	record, ok := r.records[productId]
	if !ok {
		return stock.Record{}, &stock.NotFoundError{ProductID: productId}
	}
	return record, nil
}

func (r *StockRepositoryMemory) Create(ctx context.Context, record stock.Record) (stock.Record, error) {
	if ctx.Err() != nil {
		return stock.Record{}, ctx.Err()
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.records[record.ProductID]; exists {
		return stock.Record{}, stock.ErrAlreadyExists
	}
	record.Version = 1
	r.records[record.ProductID] = record
	return record, nil
}

func (r *StockRepositoryMemory) Save(ctx context.Context, record stock.Record) (stock.Record, error) {
	if ctx.Err() != nil {
		return stock.Record{}, ctx.Err()
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	stored, ok := r.records[record.ProductID]
	if !ok {
		return stock.Record{}, &stock.NotFoundError{ProductID: record.ProductID}
	}
	if stored.Version != record.Version {
		return stock.Record{}, stock.ErrVersionConflict
	}
	record.Version++
	r.records[record.ProductID] = record
	return record, nil
}
