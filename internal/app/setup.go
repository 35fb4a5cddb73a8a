// Package app wires the cart service together.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abgdnv/gomarketplace/internal/cart"
	"github.com/abgdnv/gomarketplace/internal/config"
	"github.com/abgdnv/gomarketplace/internal/service"
	"github.com/abgdnv/gomarketplace/internal/storage"
	grpchealth "github.com/abgdnv/gomarketplace/internal/transport/grpc"
	"github.com/abgdnv/gomarketplace/internal/transport/rest"
	"github.com/abgdnv/gomarketplace/pkg/bootstrap"
	pkgconfig "github.com/abgdnv/gomarketplace/pkg/config"
	"github.com/abgdnv/gomarketplace/pkg/messaging"
	"github.com/abgdnv/gomarketplace/pkg/server"
	"github.com/go-redis/redis/v8"
	"google.golang.org/grpc"
)

type Dependencies struct {
	Store          *cart.Store
	CartService    service.CartService
	Health         *grpchealth.Health
	MetricsHandler http.Handler
	MetricsPath    string
	Logger         *slog.Logger
}

// SetupDependencies starts the cart store over kv and builds the service on top of it.
// metricsHandler may be nil.
func SetupDependencies(ctx context.Context, kv storage.Store, publisher messaging.Publisher, cfg *config.Config, metricsHandler http.Handler, logger *slog.Logger) *Dependencies {
	store := cart.NewStore(ctx, kv,
		cart.WithKey(cfg.Storage.Key),
		cart.WithTimeout(cfg.Storage.Timeout),
		cart.WithLogger(logger),
	)
	return &Dependencies{
		Store:          store,
		CartService:    service.NewService(store, publisher, logger),
		Health:         grpchealth.NewHealth(logger),
		MetricsHandler: metricsHandler,
		MetricsPath:    cfg.Telemetry.Metrics.Path,
		Logger:         logger,
	}
}

// SetupHttpHandler builds the router with the cart API, probes and the metrics endpoint.
// Used by E2E tests to drive the service without a listener.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	rest.Routes(mux, rest.NewAPI(deps.CartService, deps.Logger))
	if deps.MetricsHandler != nil {
		mux.Handle(deps.MetricsPath, deps.MetricsHandler)
	}
	return mux
}

func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	return server.NewHTTPServer(&cfg.HTTPServer, "cart-http", SetupHttpHandler(deps))
}

func SetupGrpcServer(deps *Dependencies, cfg *config.Config) *grpc.Server {
	return server.NewGRPCServer(deps.Logger, cfg.GRPC.ReflectionEnabled, deps.Health.Register)
}

// NewStorage opens the configured backend and wraps it with retries and a circuit breaker.
func NewStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	var kv storage.Store
	switch cfg.Storage.Backend {
	case pkgconfig.StorageMemory:
		kv = storage.NewMemory()
	case pkgconfig.StorageSQLite:
		s, err := storage.OpenSQLite(ctx, cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, err
		}
		kv = s
	case pkgconfig.StorageRedis:
		client, err := bootstrap.NewRedisClient(ctx, &redis.Options{
			Addr:        cfg.Storage.Redis.Addr,
			Password:    cfg.Storage.Redis.Password,
			DB:          cfg.Storage.Redis.DB,
			DialTimeout: cfg.Storage.Redis.Timeout,
		}, cfg.Storage.Redis.Timeout, logger)
		if err != nil {
			return nil, err
		}
		kv = storage.NewRedis(client)
	case pkgconfig.StoragePostgres:
		if err := storage.MigratePostgres(cfg.Storage.Database.URL); err != nil {
			return nil, err
		}
		pool, err := bootstrap.NewDbPool(ctx, cfg.Storage.Database.URL, cfg.Storage.Database.Timeout)
		if err != nil {
			return nil, err
		}
		kv = storage.NewPostgres(pool)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Storage.Backend)
	}
	logger.Info("Storage opened", "backend", cfg.Storage.Backend)
	return storage.NewResilient(kv, cfg.Resilience, logger), nil
}
