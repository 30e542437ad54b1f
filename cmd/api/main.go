package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/safar/go-marketplace/internal/api"
	"github.com/safar/go-marketplace/internal/checkout"
	"github.com/safar/go-marketplace/internal/config"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/discount"
	"github.com/safar/go-marketplace/internal/escrow"
	"github.com/safar/go-marketplace/internal/fulfillment"
	"github.com/safar/go-marketplace/internal/idempotency"
	"github.com/safar/go-marketplace/internal/logger"
	"github.com/safar/go-marketplace/internal/notify"
	"github.com/safar/go-marketplace/internal/payment"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	zl, err := logger.New(cfg.App)
	if err != nil {
		log.Fatalf("Init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	zl.Info("connected to database")

	if err := database.MigrateUp(db); err != nil {
		return err
	}

	ctx := context.Background()

	ledger := escrow.NewLedger(db, cfg.Escrow, zl)
	if _, err := ledger.EnsureEscrowAccount(ctx); err != nil {
		return err
	}

	publisher, err := notify.NewPublisher(cfg.Broker, zl)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			zl.Warn("close publisher", zap.Error(err))
		}
	}()
	notifier := notify.NewService(publisher, cfg.App.AdminEmail, zl)

	var idem api.IdempotencyStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		idem = idempotency.NewRedisStore(rdb, cfg.Redis.IdempotencyTTL)
		zl.Info("idempotency keys enabled", zap.String("redis", cfg.Redis.Addr))
	}

	discounts := discount.NewEngine(cfg.Pricing.NewUserDiscountMax, cfg.Pricing.WelcomePercent)
	payments := payment.NewService(db, ledger, zl)

	handler := api.NewHandler(api.Deps{
		DB:          db,
		Orders:      checkout.NewService(db, discounts, cfg.Pricing, notifier, zl),
		Fulfillment: fulfillment.NewService(db, payments, notifier, zl),
		Payments:    payments,
		Discounts:   discounts,
		Idempotency: idem,
		JWTSecret:   cfg.Auth.JWTSecret,
		Logger:      zl,
	})

	if cfg.App.Mode == config.AppModeProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		zl.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
