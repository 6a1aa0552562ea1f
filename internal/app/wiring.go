package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jntims/jntims/internal/analytics"
	"github.com/jntims/jntims/internal/companies"
	"github.com/jntims/jntims/internal/money"
	"github.com/jntims/jntims/internal/payments"
	"github.com/jntims/jntims/internal/platform/cache"
	"github.com/jntims/jntims/internal/platform/db"
	"github.com/jntims/jntims/internal/platform/docstore"
	"github.com/jntims/jntims/internal/shared"
	"github.com/jntims/jntims/internal/stock"
)

// Backends holds the connections opened for a Config.
type Backends struct {
	Store docstore.Store
	Redis *redis.Client
	Pool  *pgxpool.Pool
}

// OpenBackends dials the configured document store and, when REDIS_ADDR is
// set, the Redis client shared by the cache, the lock and the job queue. A
// Redis outage is fatal only for the redis store backend.
func OpenBackends(ctx context.Context, cfg *Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}
	if cfg.CacheEnabled() {
		client, err := cache.New(ctx, cfg.RedisAddr)
		switch {
		case err == nil:
			b.Redis = client
		case cfg.StoreBackend == BackendRedis:
			return nil, err
		default:
			logger.Warn("redis unavailable, running without cache and locks", slog.Any("error", err))
		}
	}

	switch cfg.StoreBackend {
	case BackendRedis:
		b.Store = docstore.NewRedis(b.Redis, cfg.StoreMaxRetries)
	case BackendPostgres:
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Pool = pool
		pg := docstore.NewPostgres(pool, cfg.StoreMaxRetries)
		if err := pg.EnsureSchema(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.Store = pg
	case BackendMemory:
		b.Store = docstore.NewMemory()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	logger.Info("document store ready", slog.String("backend", cfg.StoreBackend), slog.Bool("redis", b.Redis != nil))
	return b, nil
}

// Ping checks every open connection.
func (b *Backends) Ping(ctx context.Context) error {
	if b == nil {
		return errors.New("backends not configured")
	}
	var errs []error
	if b.Redis != nil {
		if err := b.Redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if b.Pool != nil {
		if err := b.Pool.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases every connection.
func (b *Backends) Close() {
	if b == nil {
		return
	}
	if b.Pool != nil {
		b.Pool.Close()
	}
	if b.Redis != nil {
		_ = b.Redis.Close()
	}
}

// Services is the assembled domain layer.
type Services struct {
	Companies   *companies.Service
	Stock       *stock.Service
	Payments    *payments.Service
	Analytics   *analytics.Service
	Cache       *analytics.Cache
	Idempotency *shared.IdempotencyStore
	Formatter   *money.Formatter
}

// NewServices wires the ledgers over b. Without Redis the analytics cache
// is disabled and cascade deletes run unlocked.
func NewServices(cfg *Config, b *Backends, logger *slog.Logger) *Services {
	var (
		reportCache *analytics.Cache
		locker      shared.Locker
	)
	if b.Redis != nil {
		reportCache = analytics.NewCache(b.Redis, cfg.AnalyticsCacheTTL)
		locker = cache.NewLocker(b.Redis, cfg.LockWait)
	}

	companySvc := companies.NewService(companies.NewRepository(b.Store), locker, reportCache, logger)
	stockSvc := stock.NewService(stock.NewRepository(b.Store), companySvc.Repository(), reportCache, logger)
	paymentSvc := payments.NewService(payments.NewRepository(b.Store), companySvc, reportCache, logger)
	analyticsSvc := analytics.NewService(analytics.NewStoreLedger(b.Store), reportCache, logger)

	return &Services{
		Companies:   companySvc,
		Stock:       stockSvc,
		Payments:    paymentSvc,
		Analytics:   analyticsSvc,
		Cache:       reportCache,
		Idempotency: shared.NewIdempotencyStore(b.Store),
		Formatter:   money.NewFormatter(cfg.DisplayLocale, cfg.CurrencySymbol),
	}
}
