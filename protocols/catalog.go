package protocols

import "context"

// CatalogGateway resolves display names used to enrich outbound notifications.
type CatalogGateway interface {
	ResolveDisplayName(ctx context.Context, productId string) (string, error)
}
