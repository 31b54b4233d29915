package gateways

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/giovaniif/e-commerce/inventory/domain/stock"
	"github.com/giovaniif/e-commerce/inventory/infra"
	"github.com/giovaniif/e-commerce/inventory/infra/metrics"
	"github.com/giovaniif/e-commerce/inventory/protocols"
	"go.uber.org/zap"
)

var (
	ErrDispatcherFull   = errors.New("notification queue is full")
	ErrDispatcherClosed = errors.New("notification dispatcher is closed")
)

const (
	defaultDeliveryAttempts = 3
	defaultDeliveryBackoff  = 100 * time.Millisecond
)

type job struct {
	kind string
	ctx  context.Context
	send func(context.Context) error
}

// Dispatcher is a NotificationGateway that queues events and hands them to
// another gateway from a background worker, so a slow broker never delays a
// stock mutation. Delivery is at least once: a failed send is retried with
// backoff while the error looks transient. Close drains what is queued.
type Dispatcher struct {
	next     protocols.NotificationGateway
	logger   *zap.Logger
	queue    chan job
	attempts int
	backoff  time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(next protocols.NotificationGateway, queueSize int, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		next:     next,
		logger:   logger,
		queue:    make(chan job, queueSize),
		attempts: defaultDeliveryAttempts,
		backoff:  defaultDeliveryBackoff,
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) PublishOutOfStock(ctx context.Context, event stock.OutOfStockEvent) error {
	return d.enqueue(ctx, "out_of_stock", func(ctx context.Context) error {
		return d.next.PublishOutOfStock(ctx, event)
	})
}

func (d *Dispatcher) PublishLowStock(ctx context.Context, event stock.LowStockEvent) error {
	return d.enqueue(ctx, "low_stock", func(ctx context.Context) error {
		return d.next.PublishLowStock(ctx, event)
	})
}

func (d *Dispatcher) PublishRestocked(ctx context.Context, event stock.RestockedEvent) error {
	return d.enqueue(ctx, "restocked", func(ctx context.Context) error {
		return d.next.PublishRestocked(ctx, event)
	})
}

func (d *Dispatcher) PublishStockChanged(ctx context.Context, event stock.StockChangedEvent) error {
	return d.enqueue(ctx, "stock_changed", func(ctx context.Context) error {
		return d.next.PublishStockChanged(ctx, event)
	})
}

func (d *Dispatcher) enqueue(ctx context.Context, kind string, send func(context.Context) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- job{kind: kind, ctx: context.WithoutCancel(ctx), send: send}:
		metrics.NotificationQueueDepth.Inc()
		return nil
	default:
		return ErrDispatcherFull
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for j := range d.queue {
		metrics.NotificationQueueDepth.Dec()
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	var err error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		err = d.send(j)
		if err == nil {
			return
		}
		if !infra.IsRetriable(err) || attempt == d.attempts {
			break
		}
		time.Sleep(time.Duration(1<<(attempt-1)) * d.backoff)
	}
	metrics.Notifications.WithLabelValues(j.kind, "dropped").Inc()
	d.logger.Error("notification dropped", zap.String("kind", j.kind), zap.Error(err))
}

func (d *Dispatcher) send(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notification gateway panicked: %v", r)
		}
	}()
	return j.send(j.ctx)
}

// Close stops accepting events and waits until the queue is drained or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
