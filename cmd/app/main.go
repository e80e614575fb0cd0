package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adpoints/internal/cache"
	"adpoints/internal/config"
	"adpoints/internal/httpserver"
	"adpoints/internal/ledger"
	"adpoints/internal/logging"
	"adpoints/internal/metrics"
	"adpoints/internal/notify"
	"adpoints/internal/referral"
	"adpoints/internal/reward"
	"adpoints/internal/store"
	"adpoints/internal/withdraw"
	"adpoints/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting adpoints", "env", cfg.AppEnv, "store", cfg.StoreDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	var st store.Store
	switch cfg.StoreDriver {
	case "sqlite":
		st, err = store.NewSQLite(ctx, cfg.SQLitePath, logger)
	default:
		st, err = store.NewPostgres(ctx, cfg.DatabaseURL, logger)
	}
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	var redisClient *cache.Redis
	if cfg.RedisAddr != "" {
		redisClient = cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		}, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed", "error", err)
		}
	}

	var dispatcher *notify.Dispatcher
	if cfg.TelegramBotToken != "" {
		sender := notify.NewTelegram(notify.TelegramConfig{
			BaseURL: cfg.TelegramAPIBaseURL,
			Token:   cfg.TelegramBotToken,
			Timeout: cfg.TelegramTimeout,
		}, logger)
		dispatcher = notify.NewDispatcher(sender, cfg.Rewards.NotifyQueueDepth, logger, metricRegistry)
		go dispatcher.Start(ctx)
	} else {
		logger.Warn("telegram bot token not configured, notifications disabled")
	}

	ledgerSvc := ledger.New(st, redisClient, metricRegistry, logger, cfg.Rewards)
	rewardSvc := reward.New(ledgerSvc, metricRegistry, logger)
	referralEngine := referral.New(ledgerSvc, metricRegistry, logger)
	withdrawSvc := withdraw.New(st, ledgerSvc, dispatcher, metricRegistry, logger, cfg.OperatorChatID)

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Dependencies{
		Ledger:      ledgerSvc,
		Rewards:     rewardSvc,
		Referrals:   referralEngine,
		Withdrawals: withdrawSvc,
	}, cfg.AdminToken, cfg.PublicBasePath)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
