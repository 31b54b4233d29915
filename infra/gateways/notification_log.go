package gateways

import (
	"context"

	"github.com/giovaniif/e-commerce/inventory/domain/stock"
	"github.com/giovaniif/e-commerce/inventory/infra/requestid"
	"go.uber.org/zap"
)

// NotificationGatewayLog writes events to the service log. Used when no
// broker is configured.
type NotificationGatewayLog struct {
	logger *zap.Logger
}

func NewNotificationGatewayLog(logger *zap.Logger) *NotificationGatewayLog {
	return &NotificationGatewayLog{logger: logger}
}

func (g *NotificationGatewayLog) PublishOutOfStock(ctx context.Context, event stock.OutOfStockEvent) error {
	requestid.Logger(ctx, g.logger).Warn("product out of stock",
		zap.String("product_id", event.ProductID),
		zap.String("display_name", event.DisplayName),
		zap.Int32("last_available_quantity", event.LastAvailableQuantity),
		zap.String("warehouse_location", event.WarehouseLocation),
	)
	return nil
}

func (g *NotificationGatewayLog) PublishLowStock(ctx context.Context, event stock.LowStockEvent) error {
	requestid.Logger(ctx, g.logger).Warn("product low on stock",
		zap.String("product_id", event.ProductID),
		zap.String("display_name", event.DisplayName),
		zap.Int32("quantity", event.Quantity),
		zap.Int32("minimum_threshold", event.MinimumThreshold),
	)
	return nil
}

func (g *NotificationGatewayLog) PublishRestocked(ctx context.Context, event stock.RestockedEvent) error {
	requestid.Logger(ctx, g.logger).Info("product restocked",
		zap.String("product_id", event.ProductID),
		zap.String("display_name", event.DisplayName),
		zap.Int32("previous_quantity", event.PreviousQuantity),
		zap.Int32("new_quantity", event.NewQuantity),
	)
	return nil
}

func (g *NotificationGatewayLog) PublishStockChanged(ctx context.Context, event stock.StockChangedEvent) error {
	requestid.Logger(ctx, g.logger).Debug("stock changed",
		zap.String("product_id", event.ProductID),
		zap.String("change_kind", string(event.ChangeKind)),
		zap.String("reason", event.Reason),
		zap.Int32("previous_quantity", event.PreviousQuantity),
		zap.Int32("new_quantity", event.NewQuantity),
		zap.Int32("available_quantity", event.AvailableQuantity),
	)
	return nil
}
