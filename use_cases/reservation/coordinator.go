package reservation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/giovaniif/e-commerce/inventory/domain/stock"
	"github.com/giovaniif/e-commerce/inventory/infra"
	"github.com/giovaniif/e-commerce/inventory/infra/metrics"
	"github.com/giovaniif/e-commerce/inventory/infra/tracing"
	"github.com/giovaniif/e-commerce/inventory/protocols"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Coordinator owns every mutation of stock records. Each mutation is a
// read-validate-write on the latest stored state, guarded by the record
// version. Stores that live in process memory are also serialised per product
// id; remote stores rely on the version alone so no network round-trip runs
// under the product lock (see WithOptimisticWrites).
// Notifications go out after the write commits, within notifyTimeout.
type Coordinator struct {
	repository stock.Repository
	catalog    protocols.CatalogGateway
	notifier   protocols.NotificationGateway
	clock      protocols.Clock
	sleeper    protocols.Sleeper
	logger     *zap.Logger
	tracer     trace.Tracer
	locks      *keyedLocker

	maxAttempts   int
	baseDelay     time.Duration
	notifyTimeout time.Duration
}

// NewCoordinator wires the coordinator. catalog and notifier may be nil.
func NewCoordinator(repository stock.Repository, catalog protocols.CatalogGateway, notifier protocols.NotificationGateway, opts ...Option) *Coordinator {
	c := &Coordinator{
		repository:  repository,
		catalog:     catalog,
		notifier:    notifier,
		clock:       systemClock{},
		sleeper:     contextSleeper{},
		logger:      zap.NewNop(),
		tracer:      tracing.Tracer(),
		locks:       newKeyedLocker(),
		maxAttempts:   DefaultMaxAttempts,
		baseDelay:     DefaultBaseDelay,
		notifyTimeout: DefaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type mutation struct {
	operation string
	kind      stock.ChangeKind
	reason    string
	apply     func(record *stock.Record, now time.Time) error
}

func (c *Coordinator) Reserve(ctx context.Context, productId string, quantity int32) (stock.Record, error) {
	return c.mutateQuantity(ctx, productId, quantity, mutation{
		operation: "reserve",
		kind:      stock.ChangeReservation,
		apply: func(record *stock.Record, _ time.Time) error {
			return record.Reserve(quantity)
		},
	})
}

func (c *Coordinator) ReleaseReservation(ctx context.Context, productId string, quantity int32) (stock.Record, error) {
	return c.mutateQuantity(ctx, productId, quantity, mutation{
		operation: "release",
		kind:      stock.ChangeRelease,
		apply: func(record *stock.Record, _ time.Time) error {
			return record.Release(quantity)
		},
	})
}

func (c *Coordinator) ConfirmReservation(ctx context.Context, productId string, quantity int32) (stock.Record, error) {
	return c.mutateQuantity(ctx, productId, quantity, mutation{
		operation: "confirm",
		kind:      stock.ChangeConfirmation,
		apply: func(record *stock.Record, now time.Time) error {
			return record.Confirm(quantity, now)
		},
	})
}

func (c *Coordinator) Restock(ctx context.Context, productId string, quantity int32) (stock.Record, error) {
	return c.mutateQuantity(ctx, productId, quantity, mutation{
		operation: "restock",
		kind:      stock.ChangeRestock,
		apply: func(record *stock.Record, now time.Time) error {
			return record.Restock(quantity, now)
		},
	})
}

// ReduceDirect sells units without a prior reservation, for channels that
// have no hold step.
func (c *Coordinator) ReduceDirect(ctx context.Context, productId string, quantity int32) (stock.Record, error) {
	return c.mutateQuantity(ctx, productId, quantity, mutation{
		operation: "reduce",
		kind:      stock.ChangeSale,
		apply: func(record *stock.Record, now time.Time) error {
			return record.Reduce(quantity, now)
		},
	})
}

func (c *Coordinator) UpdateThresholds(ctx context.Context, productId string, minimum, maximum int32) (stock.Record, error) {
	return c.mutate(ctx, productId, mutation{
		operation: "update_thresholds",
		kind:      stock.ChangeAdjustment,
		reason:    fmt.Sprintf("thresholds set to min %d, max %d", minimum, maximum),
		apply: func(record *stock.Record, _ time.Time) error {
			return record.SetThresholds(minimum, maximum)
		},
	})
}

func (c *Coordinator) Relocate(ctx context.Context, productId string, location string) (stock.Record, error) {
	return c.mutate(ctx, productId, mutation{
		operation: "relocate",
		kind:      stock.ChangeAdjustment,
		reason:    "relocated to " + location,
		apply: func(record *stock.Record, _ time.Time) error {
			return record.Relocate(location)
		},
	})
}

// Register creates the stock record of a newly onboarded product.
func (c *Coordinator) Register(ctx context.Context, input stock.NewRecordInput) (stock.Record, error) {
	ctx, span := c.tracer.Start(ctx, "stock.register", trace.WithAttributes(attribute.String("product.id", input.ProductID)))
	start := time.Now()
	record, err := stock.NewRecord(input)
	if err == nil {
		record, err = c.repository.Create(ctx, record)
	}
	metrics.ObserveOperation("register", start, metrics.Outcome(err, classify))
	tracing.EndSpan(span, err)
	if err != nil {
		return stock.Record{}, err
	}
	c.logger.Info("stock record registered",
		zap.String("product_id", record.ProductID),
		zap.Int32("quantity", record.Quantity),
		zap.String("warehouse_location", record.WarehouseLocation),
	)
	return record, nil
}

// Get returns the latest stored state of a record.
func (c *Coordinator) Get(ctx context.Context, productId string) (stock.Record, error) {
	return c.repository.Get(ctx, productId)
}

func (c *Coordinator) mutateQuantity(ctx context.Context, productId string, quantity int32, m mutation) (stock.Record, error) {
	if quantity <= 0 {
		err := stock.NewValidationError("quantity", "must be positive")
		metrics.ObserveOperation(m.operation, time.Now(), metrics.Outcome(err, classify))
		return stock.Record{}, err
	}
	m.reason = fmt.Sprintf("%s of %d units", m.operation, quantity)
	return c.mutate(ctx, productId, m)
}

func (c *Coordinator) mutate(ctx context.Context, productId string, m mutation) (stock.Record, error) {
	ctx, span := c.tracer.Start(ctx, "stock."+m.operation, trace.WithAttributes(
		attribute.String("product.id", productId),
		attribute.String("stock.change_kind", string(m.kind)),
	))
	start := time.Now()
	previous, current, err := c.commit(ctx, productId, m)
	metrics.ObserveOperation(m.operation, start, metrics.Outcome(err, classify))
	if err == nil {
		span.SetAttributes(
			attribute.Int("stock.quantity", int(current.Quantity)),
			attribute.Int("stock.reserved", int(current.ReservedQuantity)),
		)
	}
	tracing.EndSpan(span, err)
	if err != nil {
		return stock.Record{}, err
	}

	c.handOff(ctx, previous, current, m)
	return current, nil
}

// handOff runs notify detached from the caller's cancellation but bounded by
// notifyTimeout. It waits for delivery only as long as that budget and the
// caller allow; whatever is still pending carries on in the background.
func (c *Coordinator) handOff(ctx context.Context, previous, current stock.Record, m mutation) {
	if c.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.notifyTimeout)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("stock notification panicked",
					zap.String("product_id", current.ProductID),
					zap.Any("panic", r),
				)
			}
		}()
		c.notify(notifyCtx, previous, current, m)
	}()

	select {
	case <-done:
	case <-notifyCtx.Done():
		if errors.Is(notifyCtx.Err(), context.DeadlineExceeded) {
			c.logger.Warn("stock notification exceeded its budget, continuing in background",
				zap.String("product_id", current.ProductID),
				zap.String("operation", m.operation),
				zap.Duration("budget", c.notifyTimeout),
			)
		}
	case <-ctx.Done():
	}
}

// commit retries the read-validate-write until the store accepts it. The
// product lock, when held, is released between attempts so backoff never
// holds it.
func (c *Coordinator) commit(ctx context.Context, productId string, m mutation) (stock.Record, stock.Record, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			metrics.StoreRetries.WithLabelValues(m.operation).Inc()
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseDelay
			c.logger.Debug("retrying stock write",
				zap.String("product_id", productId),
				zap.String("operation", m.operation),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := c.sleeper.Sleep(ctx, delay); err != nil {
				return stock.Record{}, stock.Record{}, err
			}
		}

		previous, current, err := c.attempt(ctx, productId, m)
		if err == nil {
			return previous, current, nil
		}
		if !retriable(err) {
			return stock.Record{}, stock.Record{}, err
		}
		lastErr = err
	}
	c.logger.Error("stock write gave up",
		zap.String("product_id", productId),
		zap.String("operation", m.operation),
		zap.Int("attempts", c.maxAttempts),
		zap.Error(lastErr),
	)
	return stock.Record{}, stock.Record{}, fmt.Errorf("%w: %s on %s after %d attempts: %w", stock.ErrStoreUnavailable, m.operation, productId, c.maxAttempts, lastErr)
}

func (c *Coordinator) attempt(ctx context.Context, productId string, m mutation) (stock.Record, stock.Record, error) {
	if c.locks != nil {
		unlock := c.locks.Lock(productId)
		defer unlock()
	}

	previous, err := c.repository.Get(ctx, productId)
	if err != nil {
		return stock.Record{}, stock.Record{}, err
	}
	next := previous
	if err := m.apply(&next, c.clock.Now()); err != nil {
		return stock.Record{}, stock.Record{}, err
	}
	if err := next.Validate(); err != nil {
		return stock.Record{}, stock.Record{}, err
	}
	saved, err := c.repository.Save(ctx, next)
	if err != nil {
		return stock.Record{}, stock.Record{}, err
	}
	return previous, saved, nil
}

func retriable(err error) bool {
	return errors.Is(err, stock.ErrVersionConflict) || infra.IsRetriable(err)
}

func classify(err error) string {
	switch {
	case stock.IsBusinessRejection(err):
		return "rejected"
	case errors.Is(err, stock.ErrStoreUnavailable):
		return "unavailable"
	default:
		return ""
	}
}
