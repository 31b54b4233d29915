package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/giovaniif/e-commerce/inventory/domain/stock"
	"github.com/giovaniif/e-commerce/inventory/infra/metrics"
	"github.com/giovaniif/e-commerce/inventory/infra/requestid"
	"github.com/giovaniif/e-commerce/inventory/infra/tracing"
	"github.com/giovaniif/e-commerce/inventory/use_cases/bulk"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultRequestTimeout = 30 * time.Second
	shutdownTimeout       = 10 * time.Second
)

type StockService interface {
	Register(ctx context.Context, input stock.NewRecordInput) (stock.Record, error)
	Get(ctx context.Context, productId string) (stock.Record, error)
	Reserve(ctx context.Context, productId string, quantity int32) (stock.Record, error)
	ReleaseReservation(ctx context.Context, productId string, quantity int32) (stock.Record, error)
	ConfirmReservation(ctx context.Context, productId string, quantity int32) (stock.Record, error)
	Restock(ctx context.Context, productId string, quantity int32) (stock.Record, error)
	ReduceDirect(ctx context.Context, productId string, quantity int32) (stock.Record, error)
	UpdateThresholds(ctx context.Context, productId string, minimum, maximum int32) (stock.Record, error)
	Relocate(ctx context.Context, productId string, location string) (stock.Record, error)
}

type BulkService interface {
	ReserveAll(ctx context.Context, input bulk.Input) (bulk.Result, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Stock          StockService
	Bulk           BulkService
	Logger         *zap.Logger
	HealthChecks   map[string]HealthCheck
	RequestTimeout time.Duration
}

func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = defaultRequestTimeout
	}
	h := &handlers{stock: deps.Stock, bulk: deps.Bulk, logger: deps.Logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestid.Middleware(), tracing.Middleware(), metrics.Middleware, accessLog(deps.Logger), timeout(deps.RequestTimeout))

	r.GET("/health", health(deps.HealthChecks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/stock", h.register)
	r.GET("/stock/:productId", h.get)
	r.POST("/stock/:productId/reserve", h.quantity(deps.Stock.Reserve))
	r.POST("/stock/:productId/release", h.quantity(deps.Stock.ReleaseReservation))
	r.POST("/stock/:productId/confirm", h.quantity(deps.Stock.ConfirmReservation))
	r.POST("/stock/:productId/restock", h.quantity(deps.Stock.Restock))
	r.POST("/stock/:productId/reduce", h.quantity(deps.Stock.ReduceDirect))
	r.PUT("/stock/:productId/thresholds", h.thresholds)
	r.PUT("/stock/:productId/location", h.location)
	r.POST("/reservations/bulk", h.reserveBulk)

	return r
}

// StartServer serves router on addr until ctx is cancelled, then drains
// in-flight requests.
func StartServer(ctx context.Context, addr string, router http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("stock service listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/metrics" || c.Request.URL.Path == "/health" {
			return
		}
		requestid.Logger(c.Request.Context(), logger).Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		results := gin.H{}
		for name, check := range checks {
			if err := check(c.Request.Context()); err != nil {
				status = "degraded"
				results[name] = "down"
				continue
			}
			results[name] = "up"
		}
		c.JSON(http.StatusOK, gin.H{"status": status, "checks": results})
	}
}
