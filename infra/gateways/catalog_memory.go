package gateways

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrProductNotInCatalog = errors.New("product not in catalog")

type CatalogGatewayMemory struct {
	mutex sync.RWMutex
	names map[string]string
}

func NewCatalogGatewayMemory(names map[string]string) *CatalogGatewayMemory {
	copied := make(map[string]string, len(names))
	for id, name := range names {
		copied[id] = name
	}
	return &CatalogGatewayMemory{names: copied}
}

func (g *CatalogGatewayMemory) Put(productId, displayName string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.names[productId] = displayName
}

func (g *CatalogGatewayMemory) ResolveDisplayName(ctx context.Context, productId string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	name, ok := g.names[productId]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrProductNotInCatalog, productId)
	}
	return name, nil
}
