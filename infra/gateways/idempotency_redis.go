package gateways

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/giovaniif/e-commerce/inventory/infra"
	"github.com/giovaniif/e-commerce/inventory/protocols"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix = "idempotency:stock-bulk:"
	idempotencyTTL       = 24 * time.Hour
)

type IdempotencyGatewayRedis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewIdempotencyGatewayRedis(client redis.UniversalClient) *IdempotencyGatewayRedis {
	return &IdempotencyGatewayRedis{client: client, ttl: idempotencyTTL}
}

func (g *IdempotencyGatewayRedis) key(idempotencyKey string) string {
	return idempotencyKeyPrefix + idempotencyKey
}

func (g *IdempotencyGatewayRedis) ReserveIdempotencyKey(ctx context.Context, idempotencyKey string) (*protocols.IdempotencyKeyResult, error) {
	k := g.key(idempotencyKey)
	processing, _ := json.Marshal(idempotencyState{Status: statusProcessing})

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		data, err := g.client.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			_, err := g.client.SetArgs(ctx, k, processing, redis.SetArgs{Mode: "NX", TTL: g.ttl}).Result()
			if errors.Is(err, redis.Nil) {
				// lost the race to another caller, read its state
				continue
			}
			if err != nil {
				return nil, infra.WrapNetwork("redis set", err)
			}
			return nil, nil
		}
		if err != nil {
			return nil, infra.WrapNetwork("redis get", err)
		}

		var state idempotencyState
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("redis unmarshal: %w", err)
		}

		switch state.Status {
		case statusSuccess:
			return state.Result, nil
		case statusProcessing:
			return nil, protocols.ErrIdempotencyKeyInProgress
		default:
			if err := g.client.Set(ctx, k, processing, g.ttl).Err(); err != nil {
				return nil, infra.WrapNetwork("redis set", err)
			}
			return nil, nil
		}
	}
}

func (g *IdempotencyGatewayRedis) MarkFailure(ctx context.Context, idempotencyKey string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return g.client.Del(ctx, g.key(idempotencyKey)).Err()
}

func (g *IdempotencyGatewayRedis) MarkSuccess(ctx context.Context, idempotencyKey string, payload json.RawMessage) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(idempotencyState{
		Status: statusSuccess,
		Result: &protocols.IdempotencyKeyResult{Success: true, Payload: payload},
	})
	if err != nil {
		return err
	}
	return g.client.Set(ctx, g.key(idempotencyKey), raw, g.ttl).Err()
}
