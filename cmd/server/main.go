// Package main runs the staking server: the in-process chain, the
// persistence worker, the HTTP API, the WebSocket event feed and metrics on
// one listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fsp-staking/internal/api"
	"fsp-staking/internal/config"
	"fsp-staking/internal/feed"
	"fsp-staking/internal/logger"
	"fsp-staking/internal/observability"
	"fsp-staking/internal/service"
	"fsp-staking/internal/storage"
	chstore "fsp-staking/internal/storage/clickhouse"
	"fsp-staking/internal/storage/migrations"
	pgstore "fsp-staking/internal/storage/postgres"
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(os.Args[0], os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger.Initialize(cfg.LogLevel, cfg.LogFormat)
	log := logger.GetForComponent("server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create stores")
	}
	defer cleanup()

	if err := requireEmptyHistory(ctx, stores.Checkpoints); err != nil {
		log.Fatal().Err(err).Msg("Refusing to start")
	}

	c, err := service.NewChain(service.ChainConfig{
		Fees:          cfg.Fees,
		FactoryLabel:  cfg.FactoryLabel,
		OwnerLabel:    cfg.OwnerLabel,
		PlatformLabel: cfg.PlatformLabel,
		Logger:        logger.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create chain")
	}

	hub := feed.NewHub(feed.DefaultHubConfig(), logger.GetForComponent("feed"), observability.DefaultMetrics)
	svc, err := service.New(service.Options{
		Env:       c.Env,
		Tokens:    c.Tokens,
		Factory:   c.Factory,
		Stores:    stores,
		Publisher: hub,
		Logger:    logger.Logger,
		QueueSize: cfg.PersistQueue,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create service")
	}
	// Store writes must outlive the signal so Close can drain the queue.
	svc.Start(context.WithoutCancel(ctx))

	server := api.New(api.Options{
		Service:      svc,
		Feed:         hub,
		Logger:       logger.GetForComponent("api"),
		DevEndpoints: cfg.DevEndpoints,
	})

	log.Info().
		Str("factory", c.Factory.Address().String()).
		Str("owner", c.Factory.Owner().String()).
		Str("platform_owner", c.Factory.PlatformOwner().String()).
		Bool("memory", cfg.UseMemory).
		Bool("dev_endpoints", cfg.DevEndpoints).
		Msg("Starting staking server")

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Received signal, initiating graceful shutdown")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			log.Warn().Str("signal", sig.String()).Msg("Received second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(cfg.ShutdownTimeout + 5*time.Second):
			log.Error().Dur("timeout", cfg.ShutdownTimeout).Msg("Graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	runErr := server.Run(ctx, cfg.HTTPAddr, cfg.ShutdownTimeout)
	cancel()

	hub.Close()
	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	if err := svc.Close(closeCtx); err != nil {
		log.Error().Err(err).Msg("Persistence did not drain")
	}
	closeCancel()
	close(done)

	if runErr != nil {
		log.Fatal().Err(runErr).Msg("Server error")
	}
	log.Info().Uint64("persisted_seq", svc.PersistedSeq()).Msg("Shutdown complete")
}

// createStores connects and migrates the configured backends. ClickHouse is
// optional; without it daily activity is not served.
func createStores(ctx context.Context, cfg *config.Config) (service.Stores, func(), error) {
	if cfg.UseMemory {
		return service.MemoryStores(), func() {}, nil
	}

	log := logger.GetForComponent("storage")
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return service.Stores{}, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := migrations.RunPostgresMigrations(ctx, pool, log); err != nil {
		pool.Close()
		return service.Stores{}, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	stores := service.Stores{
		Pools:       pgstore.NewPoolStore(pool),
		Positions:   pgstore.NewPositionStore(pool),
		Events:      pgstore.NewEventStore(pool),
		Checkpoints: pgstore.NewCheckpointStore(pool),
	}
	cleanup := func() { pool.Close() }

	if cfg.ClickHouseDSN == "" {
		log.Warn().Msg("No ClickHouse DSN, daily activity disabled")
		return stores, cleanup, nil
	}
	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN, log)
	if err != nil {
		pool.Close()
		return service.Stores{}, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	stores.Activity = chstore.NewActivityStore(chConn)
	cleanup = func() {
		if err := chConn.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing ClickHouse connection")
		}
		pool.Close()
	}
	return stores, cleanup, nil
}

// requireEmptyHistory rejects stores that already hold another chain's
// history: the in-process chain always starts at sequence zero.
func requireEmptyHistory(ctx context.Context, cps storage.CheckpointStore) error {
	cp, err := cps.GetCheckpoint(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	return fmt.Errorf("stores already hold history up to transaction %d; use an empty database", cp.Seq)
}
