package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/giovaniif/e-commerce/inventory/cmd/api"
	"github.com/giovaniif/e-commerce/inventory/config"
	"github.com/giovaniif/e-commerce/inventory/domain/stock"
	"github.com/giovaniif/e-commerce/inventory/infra/gateways"
	"github.com/giovaniif/e-commerce/inventory/infra/logging"
	"github.com/giovaniif/e-commerce/inventory/infra/loki"
	"github.com/giovaniif/e-commerce/inventory/infra/repositories"
	"github.com/giovaniif/e-commerce/inventory/infra/tracing"
	"github.com/giovaniif/e-commerce/inventory/protocols"
	"github.com/giovaniif/e-commerce/inventory/use_cases/bulk"
	"github.com/giovaniif/e-commerce/inventory/use_cases/reservation"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const serviceName = "inventory"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := logging.Options{ServiceName: serviceName, Development: cfg.IsDevelopment()}
	if w := loki.NewWriter(cfg.LokiURL, serviceName, map[string]string{"env": cfg.Env}); w != nil {
		opts.Sink = w
		defer w.Close()
	}
	logger := logging.New(opts)
	defer func() { _ = logger.Sync() }()

	if shutdown := tracing.Init(serviceName, cfg.OTLPEndpoint); shutdown != nil {
		defer shutdown()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()
	checks := map[string]api.HealthCheck{}

	repository, err := buildStore(ctx, cfg, logger, checks, &closers)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed, continuing without cache and idempotency", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = rdb.Close()
			rdb = nil
		} else {
			closers = append(closers, func() { _ = rdb.Close() })
			checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		}
	}

	catalog, err := buildCatalog(ctx, cfg, rdb, logger, checks, &closers)
	if err != nil {
		return err
	}
	notifier := buildNotifier(cfg, logger, &closers)

	coordinatorOpts := []reservation.Option{
		reservation.WithLogger(logger.Named("reservation")),
		reservation.WithRetryPolicy(cfg.StoreMaxAttempts, cfg.StoreBaseDelay),
		reservation.WithNotifyTimeout(cfg.NotifyTimeout),
	}
	if cfg.StoreDriver == config.StorePostgres {
		// the row version arbitrates; no postgres round-trip runs under the product lock
		coordinatorOpts = append(coordinatorOpts, reservation.WithOptimisticWrites())
	}
	coordinator := reservation.NewCoordinator(repository, catalog, notifier, coordinatorOpts...)

	var idempotency protocols.IdempotencyGateway
	if rdb != nil {
		idempotency = gateways.NewIdempotencyGatewayRedis(rdb)
		logger.Info("bulk idempotency: redis (TTL 24h)")
	} else {
		idempotency = gateways.NewIdempotencyGatewayMemory()
		logger.Info("bulk idempotency: in-memory (set REDIS_ADDR for redis)")
	}
	bulkCoordinator := bulk.NewCoordinator(coordinator, idempotency, logger.Named("bulk"))

	router := api.NewRouter(api.Dependencies{
		Stock:        coordinator,
		Bulk:         bulkCoordinator,
		Logger:       logger,
		HealthChecks: checks,
	})
	return api.StartServer(ctx, fmt.Sprintf(":%d", cfg.Port), router, logger)
}

func buildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, checks map[string]api.HealthCheck, closers *[]func()) (stock.Repository, error) {
	if cfg.StoreDriver != config.StorePostgres {
		logger.Info("stock store: in-memory (set STORE_DRIVER=postgres for postgres)")
		return repositories.NewStockRepositoryMemory(), nil
	}

	db, err := repositories.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	*closers = append(*closers, func() { _ = db.Close() })
	checks["postgres"] = pingPostgres(db)

	repo := repositories.NewStockRepositoryPostgres(db)
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}
	logger.Info("stock store: postgres")
	return repo, nil
}

func pingPostgres(db *sql.DB) api.HealthCheck {
	return func(ctx context.Context) error { return db.PingContext(ctx) }
}

// buildCatalog returns nil when no catalog is configured; notifications then
// carry the product id as display name.
func buildCatalog(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger *zap.Logger, checks map[string]api.HealthCheck, closers *[]func()) (protocols.CatalogGateway, error) {
	if cfg.MongoURI == "" {
		logger.Info("catalog: disabled (set MONGO_URI to resolve display names)")
		return nil, nil
	}
	client, err := gateways.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	*closers = append(*closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	})
	checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }

	var catalog protocols.CatalogGateway = gateways.NewCatalogGatewayMongo(client.Database(cfg.MongoDatabase))
	if rdb != nil {
		catalog = gateways.NewCatalogGatewayRedis(rdb, catalog, cfg.CatalogCacheTTL, logger.Named("catalog"))
		logger.Info("catalog: mongo behind redis cache", zap.Duration("ttl", cfg.CatalogCacheTTL))
	} else {
		logger.Info("catalog: mongo")
	}
	return catalog, nil
}

func buildNotifier(cfg *config.Config, logger *zap.Logger, closers *[]func()) protocols.NotificationGateway {
	var notifier protocols.NotificationGateway
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		kafkaNotifier := gateways.NewNotificationGatewayKafka(gateways.NewKafkaWriter(brokers), cfg.KafkaTopicPrefix)
		*closers = append(*closers, func() { _ = kafkaNotifier.Close() })
		notifier = kafkaNotifier
		logger.Info("notifications: kafka", zap.Strings("brokers", brokers), zap.String("topic_prefix", cfg.KafkaTopicPrefix))
	} else {
		notifier = gateways.NewNotificationGatewayLog(logger.Named("notifications"))
		logger.Info("notifications: log (set KAFKA_BROKERS for kafka)")
	}

	if !cfg.NotifyAsync {
		return notifier
	}
	dispatcher := gateways.NewDispatcher(notifier, cfg.NotifyQueueSize, logger.Named("dispatcher"))
	// registered after the broker closer so it drains before the writer closes
	*closers = append(*closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dispatcher.Close(ctx); err != nil {
			logger.Warn("notification queue not drained", zap.Error(err))
		}
	})
	return dispatcher
}
