package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/borga/internal/config"
	"github.com/and161185/borga/internal/limiter"
	"github.com/and161185/borga/internal/migrate"
	"github.com/and161185/borga/internal/repository"
	"github.com/and161185/borga/internal/repository/elastic"
	"github.com/and161185/borga/internal/repository/memory"
	"github.com/and161185/borga/internal/repository/postgres"
)

// closers releases backend connections in reverse open order.
type closers struct {
	fns []func()
	// pg is shared by the postgres store and the postgres limiter.
	pg *postgres.DB
}

func (c *closers) add(fn func()) { c.fns = append(c.fns, fn) }

func (c *closers) closeAll(log *zap.Logger) {
	for i := len(c.fns) - 1; i >= 0; i-- {
		c.fns[i]()
	}
	log.Debug("backends closed", zap.Int("count", len(c.fns)))
}

// postgresDB migrates and opens the pool once per process.
func (c *closers) postgresDB(ctx context.Context, cfg *config.Config, log *zap.Logger) (*postgres.DB, error) {
	if c.pg != nil {
		return c.pg, nil
	}
	if err := migrate.Up(ctx, cfg.Postgres.DSN, log.Named("migrate")); err != nil {
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	db, err := postgres.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	c.pg = db
	c.add(db.Close)
	return db, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger, c *closers) (repository.Store, error) {
	var store repository.Store
	switch cfg.Store.Backend {
	case "memory":
		store = memory.New()
	case "elastic":
		es, err := elastic.NewClient(cfg.Elastic.Addresses, cfg.Elastic.Username, cfg.Elastic.Password)
		if err != nil {
			return nil, fmt.Errorf("elasticsearch client: %w", err)
		}
		store = elastic.New(es, elastic.Config{Prefix: cfg.Elastic.Prefix, PageSize: cfg.Elastic.PageSize}, log.Named("elastic"))
	case "postgres":
		db, err := c.postgresDB(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		store = postgres.NewStore(db)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%s store unreachable: %w", cfg.Store.Backend, err)
	}
	return store, nil
}

func openLimiter(ctx context.Context, cfg *config.Config, log *zap.Logger, c *closers) (limiter.Limiter, error) {
	lc := limiter.Config{Window: cfg.Limiter.Window, MaxFails: cfg.Limiter.MaxFails, BlockFor: cfg.Limiter.BlockFor}
	switch cfg.Limiter.Backend {
	case "memory":
		return limiter.NewMemory(lc), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		c.add(func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		return limiter.NewRedis(rdb, lc), nil
	case "postgres":
		db, err := c.postgresDB(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return limiter.NewPG(db.Pool, lc), nil
	default:
		return nil, fmt.Errorf("unknown limiter backend %q", cfg.Limiter.Backend)
	}
}
