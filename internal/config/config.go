package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName       string `mapstructure:"app_name"`
	Env           string `mapstructure:"app_env"`
	LogLevel      string `mapstructure:"log_level"`
	SourcesFile   string `mapstructure:"sources_file"`
	NotifiersFile string `mapstructure:"notifiers_file"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	PublishedTTLSeconds    int64         `mapstructure:"published_ttl_seconds"`
	PublishedSweepSeconds  int64         `mapstructure:"published_cleanup_interval_seconds"`
	PublishedTTL           time.Duration `mapstructure:"-"`
	PublishedSweepInterval time.Duration `mapstructure:"-"`

	BatchSize              int           `mapstructure:"batch_size"`
	PublishIntervalSeconds int64         `mapstructure:"publish_interval"`
	PublishInterval        time.Duration `mapstructure:"-"`
	SendTimeoutSeconds     int64         `mapstructure:"send_timeout"`
	SendTimeout            time.Duration `mapstructure:"-"`
	SendConcurrency        int           `mapstructure:"send_concurrency"`
	MaxRetries             int           `mapstructure:"max_retries"`
	CleanAgeSeconds        int64         `mapstructure:"clean_age"`
	CleanAge               time.Duration `mapstructure:"-"`
	StuckThresholdSeconds  int64         `mapstructure:"stuck_threshold"`
	StuckThreshold         time.Duration `mapstructure:"-"`
	MaintenanceSchedule    string        `mapstructure:"maintenance_schedule"`

	FilterPlatform string `mapstructure:"filter_platform"`
	FilterCategory string `mapstructure:"filter_category"`
	FilterHours    int    `mapstructure:"filter_hours"`
	FilterLimit    int    `mapstructure:"filter_limit"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "sokbo-news-relay")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("sources_file", "./configs/sources.yaml")
	v.SetDefault("notifiers_file", "./configs/notifiers.yaml")

	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/relay.db")
	v.SetDefault("published_ttl_seconds", int64((14*24*time.Hour)/time.Second))
	v.SetDefault("published_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))

	v.SetDefault("batch_size", 20)
	v.SetDefault("publish_interval", 60) // seconds
	v.SetDefault("send_timeout", 10)     // seconds
	v.SetDefault("send_concurrency", 4)
	v.SetDefault("max_retries", 3)
	v.SetDefault("clean_age", int64((7*24*time.Hour)/time.Second))
	v.SetDefault("stuck_threshold", 600) // 10x publish_interval
	v.SetDefault("maintenance_schedule", "@every 5m")

	v.SetDefault("filter_platform", "")
	v.SetDefault("filter_category", "")
	v.SetDefault("filter_hours", 12)
	v.SetDefault("filter_limit", 100)

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("invalid batch_size (must be positive)")
	}
	if cfg.PublishIntervalSeconds <= 0 {
		return nil, fmt.Errorf("invalid publish_interval (must be positive seconds)")
	}
	if cfg.SendTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid send_timeout (must be positive seconds)")
	}
	if cfg.SendConcurrency <= 0 {
		return nil, fmt.Errorf("invalid send_concurrency (must be positive)")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("invalid max_retries (must be non-negative)")
	}
	if cfg.CleanAgeSeconds <= 0 {
		return nil, fmt.Errorf("invalid clean_age (must be positive seconds)")
	}
	if cfg.StuckThresholdSeconds <= 0 {
		return nil, fmt.Errorf("invalid stuck_threshold (must be positive seconds)")
	}
	if cfg.PublishedTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid published_ttl_seconds (must be positive seconds)")
	}
	if cfg.PublishedSweepSeconds <= 0 {
		return nil, fmt.Errorf("invalid published_cleanup_interval_seconds (must be positive seconds)")
	}

	cfg.PublishInterval = time.Duration(cfg.PublishIntervalSeconds) * time.Second
	cfg.SendTimeout = time.Duration(cfg.SendTimeoutSeconds) * time.Second
	cfg.CleanAge = time.Duration(cfg.CleanAgeSeconds) * time.Second
	cfg.StuckThreshold = time.Duration(cfg.StuckThresholdSeconds) * time.Second
	cfg.PublishedTTL = time.Duration(cfg.PublishedTTLSeconds) * time.Second
	cfg.PublishedSweepInterval = time.Duration(cfg.PublishedSweepSeconds) * time.Second

	// The published-set retention is the idempotence guard for enqueue;
	// it must outlive both the clean window and the enqueue look-back.
	lookback := time.Duration(cfg.FilterHours) * time.Hour
	if cfg.PublishedTTL < cfg.CleanAge || cfg.PublishedTTL < lookback {
		return nil, fmt.Errorf("published_ttl_seconds must exceed clean_age and filter_hours")
	}

	return &cfg, nil
}
