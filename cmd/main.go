package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stockbars/internal/app"
	"stockbars/internal/config"
	"stockbars/internal/logger"
	"stockbars/internal/metrics"
	"stockbars/internal/supervisor"
	"stockbars/internal/symbols"
)

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "stockbars",
	Short: "Collect two years of 1-minute bars for every listed stock",
	Long: `A resumable minute-bar collector for a rate-limited chart provider,
with checkpointed restart, silent-degradation fallback via range bisection,
and an external watchdog that restarts the collector when it hangs.`,
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run the checkpointed collection batch",
	RunE:  runCollect,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Supervise the collector, restarting it when it appears stuck",
	RunE:  runWatch,
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "Fetch the listed-symbol universe and write the meta CSV files",
	RunE:  runSymbols,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug/info/warn/error)")

	// Collector flags
	collectCmd.Flags().String("provider-url", "", "Chart provider base URL")
	collectCmd.Flags().String("provider-token", "", "Chart provider API token")
	collectCmd.Flags().Int("max-calls", 13, "Max provider calls per sliding window")
	collectCmd.Flags().Int("window-sec", 60, "Sliding window length in seconds")
	collectCmd.Flags().String("checkpoint", "./checkpoint.json", "Checkpoint path")
	collectCmd.Flags().String("checkpoint-backend", "file", "Checkpoint backend (file/sqlite)")
	collectCmd.Flags().String("out-dir", "./out_csv", "Artifact output directory")
	collectCmd.Flags().String("storage-backend", "local", "Artifact backend (local/s3)")
	collectCmd.Flags().StringSlice("meta-files", nil, "Symbol meta CSV files")
	collectCmd.Flags().String("metrics-addr", "", "Prometheus listen address (empty disables)")

	// Supervisor flags
	watchCmd.Flags().Int("timeout-sec", 240, "Max silence after a collecting marker")
	watchCmd.Flags().Int("restart-delay-sec", 15, "Delay before restarting the child")
	watchCmd.Flags().Int("max-restarts", 0, "Restart limit (0 = unlimited)")
	watchCmd.Flags().String("metrics-addr", "", "Prometheus listen address (empty disables)")

	rootCmd.AddCommand(collectCmd, watchCmd, symbolsCmd)
}

func setup(cmd *cobra.Command) (*zap.Logger, error) {
	var err error
	cfg, err = config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, gracefully stopping...")
		cancel()
	}()

	return ctx, cancel
}

func runCollect(cmd *cobra.Command, args []string) error {
	log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	application, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create collector: %w", err)
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	err = application.Run(ctx)

	if closeErr := application.Close(); closeErr != nil {
		log.Error("Error closing collector", zap.Error(closeErr))
	}

	return err
}

func runWatch(cmd *cobra.Command, args []string) error {
	log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	metricsCollector := metrics.New()
	if addr := cfg.Metrics.Addr; addr != "" {
		go func() {
			if serveErr := metricsCollector.StartServer(addr); serveErr != nil {
				log.Error("failed to start metrics server", zap.Error(serveErr))
			}
		}()
	}

	sup := supervisor.New(supervisor.Config{
		Command:      cfg.Supervisor.Command,
		Timeout:      time.Duration(cfg.Supervisor.TimeoutSec) * time.Second,
		RestartDelay: time.Duration(cfg.Supervisor.RestartDelaySec) * time.Second,
		GracePeriod:  time.Duration(cfg.Supervisor.GracePeriodMs) * time.Millisecond,
		MaxRestarts:  cfg.Supervisor.MaxRestarts,
		PollInterval: time.Second,
	}, nil, metricsCollector, log, os.Stdout)

	ctx, cancel := signalContext(log)
	defer cancel()

	return sup.Run(ctx)
}

func runSymbols(cmd *cobra.Command, args []string) error {
	log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Symbols.PageURL == "" {
		return fmt.Errorf("symbols.page_url is required")
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	crawler := symbols.NewPageCrawler(cfg.Symbols.PageURL, log)
	markets := []symbols.Market{
		{Name: "KOSPI", Param: 0, Suffix: ".KS", MaxPages: 200},
		{Name: "KOSDAQ", Param: 1, Suffix: ".KQ", MaxPages: 240},
	}

	for _, m := range markets {
		codes, err := crawler.Crawl(ctx, m)
		if err != nil {
			return fmt.Errorf("crawl %s: %w", m.Name, err)
		}

		path := filepath.Join(cfg.Symbols.MetaDir, strings.ToLower(m.Name)+".csv")
		if err := symbols.WriteMeta(path, m, codes); err != nil {
			return fmt.Errorf("write %s meta: %w", m.Name, err)
		}
		log.Info("wrote symbol meta file",
			zap.String("path", path),
			zap.Int("codes", len(codes)),
		)
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
