package reservation

import (
	"context"
	"time"

	"github.com/giovaniif/e-commerce/inventory/protocols"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts   = 5
	DefaultBaseDelay     = 10 * time.Millisecond
	DefaultNotifyTimeout = 2 * time.Second
)

type Option func(*Coordinator)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) { c.tracer = tracer }
}

func WithClock(clock protocols.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

func WithSleeper(sleeper protocols.Sleeper) Option {
	return func(c *Coordinator) { c.sleeper = sleeper }
}

// WithRetryPolicy bounds how often a store write is retried after a version
// conflict or a transient failure. Delay doubles on every attempt.
func WithRetryPolicy(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *Coordinator) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if baseDelay >= 0 {
			c.baseDelay = baseDelay
		}
	}
}

// WithNotifyTimeout bounds how long a committed mutation waits for its
// notifications, catalog lookup included.
func WithNotifyTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.notifyTimeout = timeout
		}
	}
}

// WithOptimisticWrites drops the in-process product lock and relies on the
// store's version check alone. Use it for stores reached over the network,
// where holding the lock would hold it across a round-trip. Contention then
// surfaces as version conflicts, so size the retry policy for it.
func WithOptimisticWrites() Option {
	return func(c *Coordinator) { c.locks = nil }
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type contextSleeper struct{}

func (contextSleeper) Sleep(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
