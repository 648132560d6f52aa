package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stockbars/internal/checkpoint"
	"stockbars/internal/collector"
	"stockbars/internal/config"
	"stockbars/internal/fetcher"
	"stockbars/internal/metrics"
	"stockbars/internal/provider"
	"stockbars/internal/ratelimit"
	"stockbars/internal/storage"
	"stockbars/internal/symbols"
)

// App wires the collector run: provider client, rate limiter, fetcher,
// checkpoint and artifact stores, metrics, orchestrator.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	cursor    checkpoint.Store
	metrics   *metrics.Collector
	collector *collector.Collector
}

// New creates the application from configuration.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg.Provider.BaseURL == "" {
		return nil, fmt.Errorf("provider.base_url is required")
	}

	client := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.Token, logger,
		provider.WithTimeout(time.Duration(cfg.Provider.TimeoutSec)*time.Second))

	var probe ratelimit.QuotaProbe
	if cfg.Provider.UseQuota {
		probe = client
	}
	limiter := ratelimit.New(cfg.Provider.MaxCalls,
		time.Duration(cfg.Provider.WindowSec)*time.Second, probe, logger)

	metricsCollector := metrics.New()

	fetchCfg := fetcher.DefaultConfig()
	fetchCfg.LookbackDays = cfg.Collector.LookbackDays
	fetchCfg.BufferDays = cfg.Collector.BufferDays
	fetchCfg.Retry.Attempts = cfg.Collector.RetryAttempts
	barSource := fetcher.New(client, limiter, fetchCfg, metricsCollector, logger)

	cursor, err := newCursor(cfg.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	store, err := newStore(cfg.Storage)
	if err != nil {
		cursor.Close()
		return nil, fmt.Errorf("failed to create artifact store: %w", err)
	}

	source := symbols.NewCSVSource(cfg.Symbols.MetaFiles, logger)

	orch := collector.New(source, barSource, store, cursor, metricsCollector,
		logger, os.Stdout, collector.Config{ItemDelay: cfg.Collector.ItemDelay()})

	return &App{
		cfg:       cfg,
		logger:    logger,
		cursor:    cursor,
		metrics:   metricsCollector,
		collector: orch,
	}, nil
}

func newCursor(cfg config.Checkpoint) (checkpoint.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return checkpoint.NewSQLiteStore(cfg.Path)
	default:
		return checkpoint.NewFileStore(cfg.Path)
	}
}

func newStore(cfg config.Storage) (storage.Store, error) {
	switch cfg.Backend {
	case "s3":
		return storage.NewS3Store(storage.Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Secure:    cfg.S3.Secure,
			Bucket:    cfg.S3.Bucket,
		})
	default:
		return storage.NewLocalStore(cfg.OutputDir)
	}
}

// Run executes the batch.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting collection run",
		zap.String("run_id", uuid.NewString()),
		zap.String("checkpoint_backend", a.cfg.Checkpoint.Backend),
		zap.String("storage_backend", a.cfg.Storage.Backend),
	)

	if addr := a.cfg.Metrics.Addr; addr != "" {
		go func() {
			if err := a.metrics.StartServer(addr); err != nil {
				a.logger.Error("failed to start metrics server", zap.Error(err))
			}
		}()
	}

	return a.collector.Run(ctx)
}

// Close cleans up resources.
func (a *App) Close() error {
	if a.cursor != nil {
		return a.cursor.Close()
	}
	return nil
}

// Metrics exposes the collector's metrics, for sharing with the watch
// subcommand when both run in one process during tests.
func (a *App) Metrics() *metrics.Collector {
	return a.metrics
}
