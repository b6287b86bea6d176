package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/borga/internal/config"
	"github.com/and161185/borga/internal/limiter"
	"github.com/and161185/borga/internal/repository/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		Store:   config.Store{Backend: "memory"},
		Limiter: config.Limiter{Backend: "memory", Window: time.Minute, MaxFails: 3, BlockFor: time.Minute},
	}
}

func TestOpenStore_Memory(t *testing.T) {
	var c closers
	st, err := openStore(context.Background(), testConfig(), zaptest.NewLogger(t), &c)
	require.NoError(t, err)
	require.IsType(t, &memory.Store{}, st)
}

func TestOpenLimiter_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Limiter.Backend = "redis"
	cfg.Redis.Addr = mr.Addr()

	var c closers
	lim, err := openLimiter(context.Background(), cfg, zaptest.NewLogger(t), &c)
	require.NoError(t, err)
	require.IsType(t, &limiter.Redis{}, lim)
	c.closeAll(zaptest.NewLogger(t))
}

func TestOpenBackends_Unknown(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = "mongo"
	cfg.Limiter.Backend = "etcd"
	var c closers
	_, err := openStore(context.Background(), cfg, zaptest.NewLogger(t), &c)
	require.ErrorContains(t, err, "unknown store backend")
	_, err = openLimiter(context.Background(), cfg, zaptest.NewLogger(t), &c)
	require.ErrorContains(t, err, "unknown limiter backend")
}
