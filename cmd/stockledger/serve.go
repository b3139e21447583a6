package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stockledger/stockledger/internal/cache"
	"github.com/stockledger/stockledger/internal/config"
	"github.com/stockledger/stockledger/internal/ledger"
	"github.com/stockledger/stockledger/internal/metrics"
	"github.com/stockledger/stockledger/internal/quote"
	"github.com/stockledger/stockledger/internal/retry"
	"github.com/stockledger/stockledger/internal/server"
	"github.com/stockledger/stockledger/internal/storage/postgres"
)

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	dev, _ := cmd.Flags().GetBool("dev")
	listen, _ := cmd.Flags().GetString("listen")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dev {
		cfg.Dev = true
		cfg.Retry.StoreAttempts = 3
	}
	if listen != "" {
		host, portStr, err := net.SplitHostPort(listen)
		if err != nil {
			return fmt.Errorf("invalid listen address %q: %w", listen, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid listen port %q: %w", portStr, err)
		}
		cfg.Server.Host = host
		cfg.Server.Port = port
	}

	initLogging(cfg.LogLevel)
	log.Info().Str("version", version).Bool("dev", cfg.Dev).Msg("starting stockledger")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ledger store: Postgres in production, in-memory for dev.
	var store ledger.Store
	var pg *postgres.Store
	if cfg.Dev || cfg.Postgres.DSN == "" {
		log.Warn().Msg("using in-memory ledger store; entries are lost on exit")
		store = ledger.NewMemoryStore()
	} else {
		pg, err = postgres.Connect(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			QueryTimeout:    cfg.Postgres.QueryTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		log.Info().Msg("connected to postgres")
		store = pg
	}

	respCache := cache.New(cfg.Cache.RedisAddr)
	reg := metrics.NewRegistry()

	quotes := quote.NewClient(quote.ClientConfig{
		BaseURL:        cfg.Upstream.BaseURL,
		RequestTimeout: cfg.Upstream.RequestTimeout,
		CacheTTL:       cfg.Upstream.CacheTTL,
		RPS:            cfg.Upstream.RPS,
		Burst:          cfg.Upstream.Burst,
		UserAgent:      appName + "/" + version,
	}, respCache).WithMetrics(reg)

	syncer := quote.NewSyncer(quotes, quote.SyncerConfig{
		RefreshInterval: cfg.Sync.RefreshInterval,
		FetchTimeout:    cfg.Sync.FetchTimeout,
		MaxAttempts:     cfg.Sync.MaxAttempts,
		BaseDelay:       cfg.Sync.BaseDelay,
		MaxBackoff:      cfg.Sync.MaxBackoff,
	})

	storePolicy := retry.Policy{
		MaxAttempts: cfg.Retry.StoreAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		OnRetry:     func(op string) { reg.RetryAttempts.WithLabelValues(op).Inc() },
	}
	ledgerSvc := ledger.NewService(store, storePolicy)

	srv := server.New(cfg.Server, cfg.RateLimit, server.Deps{
		Quotes:  quotes,
		Ledger:  ledgerSvc,
		Syncer:  syncer,
		Metrics: reg,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if pg != nil {
		if err := pg.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close postgres pool")
		}
	}
	log.Info().Msg("stopped")
	return nil
}
