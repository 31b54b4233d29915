package stock

import "context"

// Repository persists stock records. Save is a compare-on-write: it fails with
// ErrVersionConflict unless record.Version matches the stored version, and
// returns the stored record carrying the next version.
type Repository interface {
	Get(ctx context.Context, productId string) (Record, error)
	Create(ctx context.Context, record Record) (Record, error)
	Save(ctx context.Context, record Record) (Record, error)
}
