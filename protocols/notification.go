package protocols

import (
	"context"

	"github.com/giovaniif/e-commerce/inventory/domain/stock"
)

type NotificationGateway interface {
	PublishOutOfStock(ctx context.Context, event stock.OutOfStockEvent) error
	PublishLowStock(ctx context.Context, event stock.LowStockEvent) error
	PublishRestocked(ctx context.Context, event stock.RestockedEvent) error
	PublishStockChanged(ctx context.Context, event stock.StockChangedEvent) error
}
