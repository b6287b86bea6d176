// Command borga-server starts the board game groups HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/borga/internal/catalog"
	"github.com/and161185/borga/internal/config"
	"github.com/and161185/borga/internal/model"
	httpserver "github.com/and161185/borga/internal/server/http"
	"github.com/and161185/borga/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, opens the configured backends and serves until SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "", "path to a YAML config file (env BORGA_* overrides it)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// logger is not configured yet
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("load config", zap.Error(err))
	}

	logger := newLogger(cfg.Log.Development)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("store", cfg.Store.Backend),
		zap.String("limiter", cfg.Limiter.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(development bool) *zap.Logger {
	if development {
		l, _ := zap.NewDevelopment()
		return l
	}
	gin.SetMode(gin.ReleaseMode)
	l, _ := zap.NewProduction()
	return l
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var closers closers
	defer closers.closeAll(logger)

	store, err := openStore(ctx, cfg, logger, &closers)
	if err != nil {
		return err
	}
	lim, err := openLimiter(ctx, cfg, logger, &closers)
	if err != nil {
		return err
	}

	cat := catalog.New(catalog.Config{
		BaseURL:  cfg.Catalog.BaseURL,
		ClientID: cfg.Catalog.ClientID,
		Timeout:  cfg.Catalog.Timeout,
	}, logger.Named("catalog"))

	authSvc := service.NewAuthService(store, lim, logger.Named("auth"))
	gameSvc := service.NewGameService(cat)
	groupSvc := service.NewGroupService(store, cat)

	authSvc.EnsureGuest(ctx, model.Guest{
		Username: cfg.Guest.Username,
		Name:     cfg.Guest.Name,
		Password: cfg.Guest.Password,
		Token:    cfg.Guest.Token,
	})

	app := httpserver.New(authSvc, gameSvc, groupSvc, store, httpserver.NewMetrics(), logger.Named("http"))
	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: app.Router()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown timed out", zap.Error(err))
			return srv.Close()
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
