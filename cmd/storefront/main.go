// Package main запускает клиентскую часть витрины: локальное хранилище, сессию,
// репозитории и держатели состояния экранов.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/pastry-storefront/internal/auth"
	"github.com/mmeshcher/pastry-storefront/internal/config"
	"github.com/mmeshcher/pastry-storefront/internal/logger"
	"github.com/mmeshcher/pastry-storefront/internal/metrics"
	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/remote"
	"github.com/mmeshcher/pastry-storefront/internal/repository"
	"github.com/mmeshcher/pastry-storefront/internal/service"
	"github.com/mmeshcher/pastry-storefront/internal/session"
	"github.com/mmeshcher/pastry-storefront/internal/store"
	"github.com/mmeshcher/pastry-storefront/internal/viewstate"
)

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("application terminated with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	st, err := store.Open(ctx, cfg.LocalDBPath, zl.Named("store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	sessions, err := session.NewHolder(ctx, session.NewFileStorage(cfg.SessionPath), zl.Named("session"))
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sessions.IsLoggedIn() {
		if err := sessions.Touch(ctx); err != nil {
			zl.Warn("failed to refresh session activity", zap.Error(err))
		}
	}

	client := remote.NewClient(cfg.RemoteBaseURL, cfg.RemoteTimeout, zl.Named("remote"), remote.WithRetries(cfg.RemoteRetries))
	if !client.Enabled() {
		zl.Info("remote server is not configured, running offline")
	}

	reg := prometheus.NewRegistry()
	rec := metrics.NewCollector(reg)

	users := repository.NewUsers(st, sessions, client, zl.Named("users"), rec)
	cart := repository.NewCart(st, sessions, client, zl.Named("cart"), rec)
	orders := repository.NewOrders(st, sessions, client, zl.Named("orders"), rec)
	products := repository.NewProducts(st, client, zl.Named("products"), rec)

	authSvc := service.NewAuth(users, sessions, auth.BcryptHasher{Cost: auth.DefaultCost}, zl.Named("auth"))
	checkout := service.NewCheckout(cart, orders, sessions, zl.Named("checkout"))
	progressor := service.NewProgressor(orders, cfg.StatusInterval, zl.Named("progressor"), rec)

	catalogView := viewstate.NewCatalog(products, cart, zl.Named("catalog"))
	cartView := viewstate.NewCart(cart, checkout, zl.Named("cart"))
	ordersView := viewstate.NewOrders(orders, zl.Named("orders"))
	authView := viewstate.NewAuth(authSvc, sessions, zl.Named("auth"))
	accountView := viewstate.NewAccount(users, authSvc, zl.Named("account"))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return progressor.Run(ctx) })
	g.Go(func() error { return catalogView.Run(ctx) })
	g.Go(func() error { return cartView.Run(ctx) })
	g.Go(func() error { return ordersView.Run(ctx) })
	g.Go(func() error { return authView.Run(ctx) })
	g.Go(func() error { return accountView.Run(ctx) })

	// Журнал изменений состояния экранов вместо интерфейса.
	g.Go(func() error {
		trace(ctx, zl, "catalog", catalogView.Watch(ctx), func(s viewstate.CatalogState) []zap.Field {
			return []zap.Field{
				zap.Int("phase", int(s.Phase)),
				zap.Int("sections", len(s.Sections)),
				zap.String("source", string(s.Source)),
				zap.String("message", s.Message),
			}
		})
		return nil
	})
	g.Go(func() error {
		trace(ctx, zl, "cart", cartView.Watch(ctx), func(s viewstate.CartState) []zap.Field {
			return []zap.Field{
				zap.Int("lines", len(s.Lines)),
				zap.String("total", s.Quote.Total.StringFixed(2)),
				zap.Int("order_phase", int(s.Order)),
			}
		})
		return nil
	})
	g.Go(func() error {
		trace(ctx, zl, "orders", ordersView.Watch(ctx), func(s viewstate.OrdersState) []zap.Field {
			fields := []zap.Field{zap.Int("orders", len(s.Orders))}
			if s.Latest != nil {
				fields = append(fields,
					zap.Int64("latest_id", s.Latest.ID),
					zap.String("latest_status", string(s.Latest.Status)),
				)
			}
			return fields
		})
		return nil
	})
	g.Go(func() error {
		trace(ctx, zl, "session", sessions.Watch(ctx), func(s model.Session) []zap.Field {
			return []zap.Field{zap.Int64("user_id", s.UserID), zap.Bool("logged_in", s.LoggedIn)}
		})
		return nil
	})

	zl.Info("storefront started",
		zap.String("db", cfg.LocalDBPath),
		zap.Bool("remote", client.Enabled()),
		zap.Duration("status_interval", cfg.StatusInterval),
	)

	err = g.Wait()

	// Метрики устройства не публикуются по HTTP, поэтому итог пишется в журнал.
	counters, gatherErr := metrics.Counters(reg)
	if gatherErr != nil {
		zl.Warn("failed to gather metrics", zap.Error(gatherErr))
	}
	zl.Info("storefront stopped", zap.Any("counters", counters))
	return err
}

func trace[T any](ctx context.Context, zl *zap.Logger, name string, ch <-chan T, fields func(T) []zap.Field) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-ch:
			if !ok {
				return
			}
			zl.Debug(name+" state changed", fields(v)...)
		}
	}
}
