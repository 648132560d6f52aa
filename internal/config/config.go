package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Provider   Provider   `yaml:"provider"`
	Collector  Collector  `yaml:"collector"`
	Checkpoint Checkpoint `yaml:"checkpoint"`
	Storage    Storage    `yaml:"storage"`
	Symbols    Symbols    `yaml:"symbols"`
	Supervisor Supervisor `yaml:"supervisor"`
	Metrics    Metrics    `yaml:"metrics"`
	LogLevel   string     `yaml:"log_level"`
}

// Provider configures the chart API client and its rate limits.
type Provider struct {
	BaseURL    string `yaml:"base_url"`
	Token      string `yaml:"token"`
	TimeoutSec int    `yaml:"timeout_sec"`
	MaxCalls   int    `yaml:"max_calls"`
	WindowSec  int    `yaml:"window_sec"`
	UseQuota   bool   `yaml:"use_quota"`
}

// Collector configures the orchestrated batch.
type Collector struct {
	LookbackDays  int `yaml:"lookback_days"`
	BufferDays    int `yaml:"buffer_days"`
	RetryAttempts int `yaml:"retry_attempts"`
	ItemDelayMs   int `yaml:"item_delay_ms"`
}

// Checkpoint selects the cursor backend.
type Checkpoint struct {
	Backend string `yaml:"backend"` // file | sqlite
	Path    string `yaml:"path"`
}

// Storage selects the artifact backend.
type Storage struct {
	Backend   string `yaml:"backend"` // local | s3
	OutputDir string `yaml:"output_dir"`
	S3        S3     `yaml:"s3"`
}

// S3 represents S3-compatible storage configuration.
type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Bucket    string `yaml:"bucket"`
}

// Symbols configures the work-item source and the symbols subcommand.
type Symbols struct {
	MetaFiles []string `yaml:"meta_files"`
	MetaDir   string   `yaml:"meta_dir"`
	PageURL   string   `yaml:"page_url"`
}

// Supervisor configures the watch subcommand.
type Supervisor struct {
	Command         []string `yaml:"command"`
	TimeoutSec      int      `yaml:"timeout_sec"`
	RestartDelaySec int      `yaml:"restart_delay_sec"`
	GracePeriodMs   int      `yaml:"grace_period_ms"`
	MaxRestarts     int      `yaml:"max_restarts"`
}

// Metrics configures the optional prometheus endpoint.
type Metrics struct {
	Addr string `yaml:"addr"` // empty disables the server
}

// Load loads configuration from file and command line flags.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
		Provider: Provider{
			TimeoutSec: 30,
			MaxCalls:   13,
			WindowSec:  60,
			UseQuota:   true,
		},
		Collector: Collector{
			LookbackDays:  365 * 2,
			BufferDays:    7,
			RetryAttempts: 3,
			ItemDelayMs:   150,
		},
		Checkpoint: Checkpoint{
			Backend: "file",
			Path:    "./checkpoint.json",
		},
		Storage: Storage{
			Backend:   "local",
			OutputDir: "./out_csv",
		},
		Symbols: Symbols{
			MetaFiles: []string{"./meta/kospi.csv", "./meta/kosdaq.csv"},
			MetaDir:   "./meta",
		},
		Supervisor: Supervisor{
			TimeoutSec:      240,
			RestartDelaySec: 15,
			GracePeriodMs:   1000,
		},
	}

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if flags != nil {
		loadFromFlags(cfg, flags)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) {
	if flags.Changed("provider-url") {
		cfg.Provider.BaseURL, _ = flags.GetString("provider-url")
	}
	if flags.Changed("provider-token") {
		cfg.Provider.Token, _ = flags.GetString("provider-token")
	}
	if flags.Changed("max-calls") {
		cfg.Provider.MaxCalls, _ = flags.GetInt("max-calls")
	}
	if flags.Changed("window-sec") {
		cfg.Provider.WindowSec, _ = flags.GetInt("window-sec")
	}
	if flags.Changed("checkpoint") {
		cfg.Checkpoint.Path, _ = flags.GetString("checkpoint")
	}
	if flags.Changed("checkpoint-backend") {
		cfg.Checkpoint.Backend, _ = flags.GetString("checkpoint-backend")
	}
	if flags.Changed("out-dir") {
		cfg.Storage.OutputDir, _ = flags.GetString("out-dir")
	}
	if flags.Changed("storage-backend") {
		cfg.Storage.Backend, _ = flags.GetString("storage-backend")
	}
	if flags.Changed("meta-files") {
		cfg.Symbols.MetaFiles, _ = flags.GetStringSlice("meta-files")
	}
	if flags.Changed("timeout-sec") {
		cfg.Supervisor.TimeoutSec, _ = flags.GetInt("timeout-sec")
	}
	if flags.Changed("restart-delay-sec") {
		cfg.Supervisor.RestartDelaySec, _ = flags.GetInt("restart-delay-sec")
	}
	if flags.Changed("max-restarts") {
		cfg.Supervisor.MaxRestarts, _ = flags.GetInt("max-restarts")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
}

func (c *Config) validate() error {
	if c.Provider.MaxCalls <= 0 {
		return fmt.Errorf("provider.max_calls must be positive")
	}
	if c.Provider.WindowSec <= 0 {
		return fmt.Errorf("provider.window_sec must be positive")
	}
	if c.Collector.LookbackDays <= 0 {
		return fmt.Errorf("collector.lookback_days must be positive")
	}
	if c.Collector.RetryAttempts <= 0 {
		return fmt.Errorf("collector.retry_attempts must be positive")
	}
	if c.Checkpoint.Backend != "file" && c.Checkpoint.Backend != "sqlite" {
		return fmt.Errorf("checkpoint.backend must be file or sqlite")
	}
	if c.Storage.Backend != "local" && c.Storage.Backend != "s3" {
		return fmt.Errorf("storage.backend must be local or s3")
	}
	if c.Storage.Backend == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
	}
	if c.Supervisor.TimeoutSec <= 0 {
		return fmt.Errorf("supervisor.timeout_sec must be positive")
	}
	return nil
}

// ItemDelay returns the pacing delay between items.
func (c *Collector) ItemDelay() time.Duration {
	return time.Duration(c.ItemDelayMs) * time.Millisecond
}
