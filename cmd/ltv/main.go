package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/ltv-stats-service/internal/adapter/file"
	httpadapter "github.com/couchcryptid/ltv-stats-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/ltv-stats-service/internal/adapter/kafka"
	natsadapter "github.com/couchcryptid/ltv-stats-service/internal/adapter/nats"
	"github.com/couchcryptid/ltv-stats-service/internal/adapter/sqlstore"
	"github.com/couchcryptid/ltv-stats-service/internal/config"
	"github.com/couchcryptid/ltv-stats-service/internal/observability"
	"github.com/couchcryptid/ltv-stats-service/internal/snapshot"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	os.Exit(run())
}

// run wires and serves the service, returning the process exit code. Every
// resource is released through defers before it returns.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, watcher, closeSource, err := openSource(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open snapshot source", "kind", cfg.SourceKind, "error", err)
		return 1
	}
	defer closeSource()

	notifiers, closeNotifiers := openNotifiers(cfg, logger, metrics)
	defer closeNotifiers()

	cache := snapshot.New(source, logger, metrics,
		snapshot.WithWatcher(watcher),
		snapshot.WithNotifiers(notifiers...),
	)
	defer cache.Close()

	if _, err := cache.Load(ctx); err != nil {
		logger.Error("initial snapshot load failed", "error", err)
		return 1
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, cache, metrics, cfg.StatsCacheSize, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return 0
}

// openSource builds the snapshot source and its change watcher for the
// configured kind.
func openSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (snapshot.Source, snapshot.Watcher, func(), error) {
	switch cfg.SourceKind {
	case config.SourcePostgres, config.SourceSQLite:
		driver := sqlstore.DriverSQLite
		if cfg.SourceKind == config.SourcePostgres {
			driver = sqlstore.DriverPostgres
		}
		store, err := sqlstore.Open(driver, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		closeStore := func() {
			if err := store.Close(); err != nil {
				logger.Error("database close error", "error", err)
			}
		}
		if err := store.WaitReady(ctx, logger); err != nil {
			closeStore()
			return nil, nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			closeStore()
			return nil, nil, nil, err
		}
		logger.Info("sql snapshot source ready", "driver", driver, "poll_interval", cfg.PollInterval)
		return store, sqlstore.NewPollWatcher(store, cfg.PollInterval, logger), closeStore, nil

	default:
		w, err := file.NewWatcher(cfg.DataPath, cfg.WatchDebounce, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("file snapshot source ready", "path", cfg.DataPath, "debounce", cfg.WatchDebounce)
		return file.NewSource(cfg.DataPath), w, func() {}, nil
	}
}

// openNotifiers connects the enabled reload notification sinks. A sink that
// cannot connect is logged and skipped; notifications are best-effort.
func openNotifiers(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) ([]snapshot.Notifier, func()) {
	var (
		notifiers []snapshot.Notifier
		closers   []func() error
	)

	if cfg.KafkaEnabled() {
		n := kafkaadapter.NewNotifier(cfg, logger)
		notifiers = append(notifiers, n)
		closers = append(closers, n.Close)
		logger.Info("kafka notifications enabled", "topic", cfg.KafkaTopic)
	}

	if cfg.NATSEnabled() {
		n, err := natsadapter.NewNotifier(cfg.NATSURL, cfg.NATSSubject, logger, metrics)
		if err != nil {
			logger.Error("nats notifications disabled", "error", err)
		} else {
			notifiers = append(notifiers, n)
			closers = append(closers, n.Close)
			logger.Info("nats notifications enabled", "subject", cfg.NATSSubject)
		}
	}

	return notifiers, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Error("notifier close error", "error", err)
			}
		}
	}
}
