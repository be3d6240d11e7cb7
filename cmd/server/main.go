package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transport-backend/internal/auth"
	"transport-backend/internal/config"
	"transport-backend/internal/database"
	"transport-backend/internal/events"
	"transport-backend/internal/logger"
	"transport-backend/internal/notification"
	"transport-backend/internal/order"
	"transport-backend/internal/referencedata"
	"transport-backend/internal/review"
	"transport-backend/internal/server"
	"transport-backend/internal/submission"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg, zl)
	if err != nil {
		zl.Fatal("database", zap.Error(err))
	}

	var (
		bus   events.Bus
		cache notification.Cache
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		rbus, err := events.NewRedisBus(ctx, rdb, zl)
		if err != nil {
			zl.Fatal("redis", zap.Error(err))
		}
		bus = rbus
		cache = notification.NewRedisCache(rdb, cfg.NotificationCacheTTL)
		zl.Info("redis enabled", zap.String("addr", cfg.RedisAddr))
	} else {
		bus = events.NewLocalBus()
		cache = notification.NewMemoryCache(cfg.NotificationCacheTTL)
	}
	defer bus.Close()

	notifier := notification.NewNotifier(db, bus, zl)
	orders := order.NewService(db, notifier, zl)
	agg := notification.NewAggregator(db, cache, zl)
	unsubscribe := agg.Subscribe(bus)
	defer unsubscribe()

	limiter := server.NewIPRateLimiter(cfg.LoginRatePerMinute, cfg.LoginRateBurst)
	go limiter.Run(ctx)

	app := server.New(server.Deps{
		Config:        cfg,
		Log:           zl,
		DB:            db,
		Bus:           bus,
		Auth:          auth.NewService(db, cfg.JWTSecret, zl),
		Orders:        orders,
		Submissions:   submission.NewService(db, orders, notifier, zl, submission.Options{WhatsAppCountryCode: cfg.WhatsAppCountryCode, FanoutConcurrency: cfg.FanoutConcurrency}),
		Review:        review.NewService(db, notifier, zl),
		ReferenceData: referencedata.NewService(db, zl),
		Notifications: agg,
		LoginLimiter:  limiter,
	})

	errCh := make(chan error, 1)
	go func() {
		zl.Info("listening", zap.String("port", cfg.HTTPPort))
		errCh <- app.Listen(":" + cfg.HTTPPort)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			zl.Error("server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		zl.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			zl.Error("shutdown", zap.Error(err))
		}
	}
}
