package gateways

import (
	"context"
	"errors"
	"time"

	"github.com/giovaniif/e-commerce/inventory/protocols"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const catalogKeyPrefix = "catalog:display-name:"

// CatalogGatewayRedis is a read-through cache in front of another catalog.
// A broken cache degrades to the source; it never fails a lookup on its own.
type CatalogGatewayRedis struct {
	client redis.UniversalClient
	source protocols.CatalogGateway
	ttl    time.Duration
	logger *zap.Logger
}

func NewCatalogGatewayRedis(client redis.UniversalClient, source protocols.CatalogGateway, ttl time.Duration, logger *zap.Logger) *CatalogGatewayRedis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogGatewayRedis{client: client, source: source, ttl: ttl, logger: logger}
}

func (g *CatalogGatewayRedis) ResolveDisplayName(ctx context.Context, productId string) (string, error) {
	key := catalogKeyPrefix + productId
	name, err := g.client.Get(ctx, key).Result()
	if err == nil {
		return name, nil
	}
	if !errors.Is(err, redis.Nil) {
		g.logger.Warn("catalog cache read failed", zap.String("product_id", productId), zap.Error(err))
	}

	name, err = g.source.ResolveDisplayName(ctx, productId)
	if err != nil {
		return "", err
	}
	if err := g.client.Set(ctx, key, name, g.ttl).Err(); err != nil {
		g.logger.Warn("catalog cache write failed", zap.String("product_id", productId), zap.Error(err))
	}
	return name, nil
}
