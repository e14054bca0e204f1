package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nutrition-api/nutrition-api/internal/app"
	"github.com/nutrition-api/nutrition-api/internal/observability"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	if err := run(); err != nil {
		slog.Default().Error("nutrition api", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	storage, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	locker, redisClient, err := app.OpenSeedLock(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	hasher := app.NewPasswordHasher()
	// The service refuses traffic until the base roles exist.
	if _, err := app.Seed(ctx, cfg, logger, storage.Store, hasher, locker); err != nil {
		return err
	}

	handler, err := app.NewHandler(cfg, logger, app.Deps{
		Store:   storage.Store,
		Health:  storage.Health,
		Hasher:  hasher,
		Metrics: observability.NewMetrics(),
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      handler,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("driver", cfg.DBDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
