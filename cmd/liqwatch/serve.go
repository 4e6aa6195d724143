package main

import (
	"LiqWatch/internal/config"
	"LiqWatch/internal/explorer"
	"LiqWatch/internal/monitor"
	"LiqWatch/internal/observability"
	"LiqWatch/internal/persistence"
	"LiqWatch/internal/publish"
	"LiqWatch/internal/query"
	"LiqWatch/internal/server"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const drainTimeout = 30 * time.Second

func serveCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Runs the monitor with the gRPC and HTTP APIs",
		Args:  cobra.NoArgs,
		RunE:  serveFunc,
	}
	addServeFlags(c.Flags())
	return c
}

func serveFunc(c *cobra.Command, _ []string) error {
	path, err := c.Flags().GetString(ConfigKey)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	logger := observability.NewLogger("liqwatch")
	logger.Info().Str("config", cfg.String()).Msg("LiqWatch starting")

	ctx, cancel := context.WithCancel(c.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	metrics := observability.NewMetrics()
	// Readiness lapses after three intervals without a successful cycle.
	healthChecker := observability.NewHealthChecker().WithStaleAfter(3 * cfg.RefreshInterval)

	// --- Chain ---
	src, err := dialChain(cfg, cfg.DetailedBreakdown)
	if err != nil {
		return err
	}
	defer src.Close()

	// --- Storage ---
	var (
		watch   persistence.WatchList = persistence.NewMemoryWatchList()
		store   *persistence.SnapshotStore
		history query.HistorySource
	)
	if cfg.PostgresURL != "" {
		db, err := openPostgres(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		watch = persistence.NewPostgresWatchList(db)
		store = persistence.NewSnapshotStore(db)
		history = store
	} else {
		logger.Warn().Msg("LIQ_POSTGRES_DSN not set, watch list and history are kept in memory")
	}

	seeded, err := persistence.Seed(ctx, watch, seedEntries(cfg.SeedAddresses))
	if err != nil {
		return fmt.Errorf("seed watch list: %w", err)
	}
	if seeded > 0 {
		logger.Info().Int("added", seeded).Msg("seeded watch list")
	}

	// --- Monitor ---
	opts := src.options()
	opts.Addresses = watch
	opts.Interval = cfg.RefreshInterval
	opts.Metrics = metrics
	opts.Health = healthChecker
	opts.Logger = logger.With().Str("component", "monitor").Logger()
	mon := monitor.New(opts)

	if store != nil {
		restoreLatest(ctx, mon, store, logger)
	}

	// Workers outlive ctx so they can drain their channels after the
	// monitor stops.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	errChan := make(chan error, 10)
	var workers sync.WaitGroup
	var persistChan, publishChan chan *monitor.Snapshot

	if store != nil {
		persistChan = make(chan *monitor.Snapshot, cfg.PersistChanSize)
		worker := persistence.NewSnapshotWorker(
			store, persistChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics,
			logger.With().Str("component", "persist").Logger(),
		).WithRetention(cfg.HistoryRetention)
		mon.AddSink(monitor.NewChannelSink(persistChan, true, nil))

		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- fmt.Errorf("snapshot worker: %w", err)
			}
		}()
	}

	if cfg.NATSURL != "" {
		natsLogger := logger.With().Str("component", "publish").Logger()
		nc, js, err := publish.ConnectNATS(cfg.NATSURL, natsLogger)
		if err != nil {
			return err
		}
		defer nc.Drain()
		if err := publish.EnsureStream(ctx, js, natsLogger); err != nil {
			return err
		}

		publishChan = make(chan *monitor.Snapshot, cfg.PublishChanSize)
		tracker := publish.NewAlertTracker(cfg.AlertLRUCapacity, cfg.AlertThreshold)
		if n := tracker.Prime(mon.Current()); n > 0 {
			natsLogger.Info().Int("positions", n).Msg("alert bands primed from restored snapshot")
		}
		publisher := publish.NewPublisher(js, publishChan, tracker, metrics, natsLogger)
		mon.AddSink(monitor.NewChannelSink(publishChan, false, metrics.PublishDrops.Inc))

		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := publisher.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- fmt.Errorf("publisher: %w", err)
			}
		}()
	} else {
		logger.Warn().Msg("LIQ_NATS_URL not set, snapshots and alerts are not published")
	}

	// --- API ---
	if cfg.EtherscanAPIKey == "" {
		logger.Warn().Msg("LIQ_ETHERSCAN_API_KEY not set, transaction lookups may be throttled")
	}
	txs := explorer.NewClient(cfg.EtherscanURL, cfg.EtherscanAPIKey, cfg.ExplorerTimeout,
		logger.With().Str("component", "explorer").Logger())

	svc := query.NewService(mon, watch, txs, history)
	srv := server.New(cfg.GRPCAddr, cfg.HTTPAddr, server.Deps{
		Service:       svc,
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Registerer:    prometheus.DefaultRegisterer,
		CORSOrigins:   cfg.CORSOrigins,
		Logger:        logger.With().Str("component", "server").Logger(),
	})
	mon.AddSink(monitor.SinkFunc(func(context.Context, *monitor.Snapshot) error {
		srv.MarkServing()
		return nil
	}))

	go func() {
		if err := srv.StartGRPC(ctx); err != nil {
			errChan <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		if err := srv.StartHTTP(ctx); err != nil {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()
	go serveMetrics(ctx, cfg.MetricsAddr, errChan, logger)

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("monitor: %w", err)
		}
	}()

	logger.Info().
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("LiqWatch ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	cancel()
	<-monitorDone

	// The monitor no longer sends, so the channels can be closed and
	// drained.
	if persistChan != nil {
		close(persistChan)
	}
	if publishChan != nil {
		close(publishChan)
	}

	drained := make(chan struct{})
	go func() {
		workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		logger.Warn().Dur("timeout", drainTimeout).Msg("workers did not drain, cancelling")
		stopWorkers()
		<-drained
	}

	logger.Info().Msg("LiqWatch shutdown complete")
	return nil
}

func openPostgres(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	logger.Info().Msg("Postgres connected")

	migrator := persistence.NewMigrator(db, cfg.MigrationsDir, logger.With().Str("component", "migrate").Logger())
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

func restoreLatest(ctx context.Context, mon *monitor.Monitor, store *persistence.SnapshotStore, logger zerolog.Logger) {
	snap, err := store.LoadLatest(ctx)
	switch {
	case errors.Is(err, persistence.ErrNoSnapshot):
		logger.Info().Msg("no stored snapshot, cold start")
	case err != nil:
		logger.Warn().Err(err).Msg("failed to load stored snapshot")
	case mon.Restore(snap):
		logger.Info().
			Str("cycle_id", snap.CycleID.String()).
			Time("taken_at", snap.TakenAt).
			Msg("restored last snapshot")
	}
}

func serveMetrics(ctx context.Context, addr string, errChan chan<- error, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errChan <- fmt.Errorf("metrics server: %w", err)
	}
}

func seedEntries(seeds []config.SeedAddress) []persistence.WatchEntry {
	entries := make([]persistence.WatchEntry, 0, len(seeds))
	for _, s := range seeds {
		entries = append(entries, persistence.WatchEntry{Address: s.Address, Label: s.Label})
	}
	return entries
}
