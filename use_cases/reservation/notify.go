package reservation

import (
	"context"
	"fmt"

	"github.com/giovaniif/e-commerce/inventory/domain/stock"
	"github.com/giovaniif/e-commerce/inventory/infra/metrics"
	"go.uber.org/zap"
)

// notify runs after commit. Failures are logged and counted, never returned:
// a lost notification is preferable to a rolled back stock count.
func (c *Coordinator) notify(ctx context.Context, previous, current stock.Record, m mutation) {
	if c.notifier == nil {
		return
	}
	now := c.clock.Now()

	c.publish(ctx, "stock_changed", current.ProductID, func(ctx context.Context) error {
		return c.notifier.PublishStockChanged(ctx, stock.StockChangedEvent{
			ProductID:         current.ProductID,
			PreviousQuantity:  previous.Quantity,
			NewQuantity:       current.Quantity,
			AvailableQuantity: current.AvailableQuantity(),
			ChangeKind:        m.kind,
			Reason:            m.reason,
			Timestamp:         now,
		})
	})

	crossings := stock.DetectCrossings(previous, current)
	if len(crossings) == 0 {
		return
	}
	displayName := c.displayName(ctx, current.ProductID)

	for _, crossing := range crossings {
		switch crossing.Kind {
		case stock.CrossingOutOfStock:
			c.publish(ctx, string(crossing.Kind), current.ProductID, func(ctx context.Context) error {
				return c.notifier.PublishOutOfStock(ctx, stock.OutOfStockEvent{
					ProductID:             current.ProductID,
					DisplayName:           displayName,
					LastAvailableQuantity: crossing.Previous.Quantity,
					WarehouseLocation:     current.WarehouseLocation,
					Timestamp:             now,
				})
			})
		case stock.CrossingLowStock:
			c.publish(ctx, string(crossing.Kind), current.ProductID, func(ctx context.Context) error {
				return c.notifier.PublishLowStock(ctx, stock.LowStockEvent{
					ProductID:         current.ProductID,
					DisplayName:       displayName,
					Quantity:          current.Quantity,
					MinimumThreshold:  current.MinimumThreshold,
					WarehouseLocation: current.WarehouseLocation,
					Timestamp:         now,
				})
			})
		case stock.CrossingRestocked:
			c.publish(ctx, string(crossing.Kind), current.ProductID, func(ctx context.Context) error {
				return c.notifier.PublishRestocked(ctx, stock.RestockedEvent{
					ProductID:         current.ProductID,
					DisplayName:       displayName,
					PreviousQuantity:  crossing.Previous.Quantity,
					NewQuantity:       current.Quantity,
					QuantityAdded:     current.Quantity - crossing.Previous.Quantity,
					WarehouseLocation: current.WarehouseLocation,
					Timestamp:         now,
				})
			})
		}
	}
}

func (c *Coordinator) publish(ctx context.Context, kind, productId string, send func(context.Context) error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("notification gateway panicked: %v", r)
			}
		}()
		return send(ctx)
	}()
	if err != nil {
		metrics.Notifications.WithLabelValues(kind, "failed").Inc()
		c.logger.Warn("stock notification failed",
			zap.String("kind", kind),
			zap.String("product_id", productId),
			zap.Error(err),
		)
		return
	}
	metrics.Notifications.WithLabelValues(kind, "sent").Inc()
}

// displayName falls back to the product id when the catalog cannot answer.
func (c *Coordinator) displayName(ctx context.Context, productId string) string {
	if c.catalog == nil {
		return productId
	}
	name, err := c.catalog.ResolveDisplayName(ctx, productId)
	if err != nil || name == "" {
		c.logger.Warn("catalog lookup failed, using product id",
			zap.String("product_id", productId),
			zap.Error(err),
		)
		return productId
	}
	return name
}
