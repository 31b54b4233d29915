package protocols

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrIdempotencyKeyInProgress = errors.New("idempotency key is already being processed")

type IdempotencyKeyResult struct {
	Success bool
	Payload json.RawMessage
}

// IdempotencyGateway guards a request key. ReserveIdempotencyKey returns the
// stored result when the key already succeeded, an error while it is still
// being processed, and nil when the caller now owns the key.
type IdempotencyGateway interface {
	ReserveIdempotencyKey(ctx context.Context, idempotencyKey string) (*IdempotencyKeyResult, error)
	MarkFailure(ctx context.Context, idempotencyKey string) error
	MarkSuccess(ctx context.Context, idempotencyKey string, payload json.RawMessage) error
}
