// Package main запускает HTTP-сервер витрины.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/pastry-storefront/internal/auth"
	"github.com/mmeshcher/pastry-storefront/internal/backend"
	"github.com/mmeshcher/pastry-storefront/internal/config"
	"github.com/mmeshcher/pastry-storefront/internal/handler"
	"github.com/mmeshcher/pastry-storefront/internal/logger"
	"github.com/mmeshcher/pastry-storefront/internal/metrics"
	"github.com/mmeshcher/pastry-storefront/internal/middleware"
	"github.com/mmeshcher/pastry-storefront/internal/service"
)

const loginBurst = 5

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	zl, err := logger.New(logger.Config{Level: cfg.LogLevel, Dev: cfg.LogDev, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("logger initialization error: %v", err)
	}
	defer zl.Sync()

	sugar := zl.Sugar()

	if cfg.DatabaseURI == "" {
		sugar.Fatal("database URI is required")
	}
	if cfg.AuthSecret == "" {
		sugar.Warn("AUTH_SECRET is not set, sessions will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := backend.NewPostgresRepository(ctx, cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec := metrics.NewCollector(reg)

	svc := backend.NewService(repo, auth.BcryptHasher{Cost: auth.DefaultCost}, zl, rec)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	throttle := middleware.NewLoginThrottle(cfg.LoginRate, loginBurst, zl)
	h := handler.NewHandler(svc, zl, authMiddleware, throttle)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(rec, metrics.Handler(reg)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	progressor := service.NewProgressor(svc, cfg.StatusInterval, zl.Named("progressor"), rec)

	g, ctx := errgroup.WithContext(ctx)

	// Продвижение статусов заказов
	g.Go(func() error {
		return progressor.Run(ctx)
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting storefront server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
