// Package config defines the top-level configuration for the trading agent
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TRADEWATCH_* environment
// variables.
type Config struct {
	Alpaca   AlpacaConfig   `toml:"alpaca"`
	Risk     RiskConfig     `toml:"risk"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// AlpacaConfig holds brokerage API endpoints and credentials.
type AlpacaConfig struct {
	TradeURL  string `toml:"trade_url"`
	DataURL   string `toml:"data_url"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
}

// RiskConfig holds the immutable risk limits applied to every entry.
type RiskConfig struct {
	MaxTotalPortfolioFraction float64 `toml:"max_total_portfolio_fraction"`
	MaxSingleTradeFraction    float64 `toml:"max_single_trade_fraction"`
	ProfitLossRatio           float64 `toml:"profit_loss_ratio"`
	StopLossFraction          float64 `toml:"stop_loss_fraction"`
	MinExitMarginEquity       float64 `toml:"min_exit_margin_equity"`
	MinExitMarginCrypto       float64 `toml:"min_exit_margin_crypto"`
}

// MonitorConfig holds position-monitoring parameters.
type MonitorConfig struct {
	PollInterval     duration `toml:"poll_interval"`
	MaxExitRetries   int      `toml:"max_exit_retries"`
	EntryLockEnabled bool     `toml:"entry_lock_enabled"`
	EntryLockTTL     duration `toml:"entry_lock_ttl"`
}

// ServerConfig holds the HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// PostgresConfig holds PostgreSQL connection parameters for the record
// store.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds the cold-storage archival schedule.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so TOML values like "30s" decode directly.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Defaults returns the built-in configuration. A config file and environment
// overrides are merged on top of these values.
func Defaults() Config {
	return Config{
		Alpaca: AlpacaConfig{
			TradeURL: "https://paper-api.alpaca.markets",
			DataURL:  "https://data.alpaca.markets",
		},
		Risk: RiskConfig{
			MaxTotalPortfolioFraction: 0.20,
			MaxSingleTradeFraction:    0.02,
			ProfitLossRatio:           1.0,
			StopLossFraction:          0.01,
			MinExitMarginEquity:       25,
			MinExitMarginCrypto:       100,
		},
		Monitor: MonitorConfig{
			PollInterval:   duration{30 * time.Second},
			MaxExitRetries: 5,
			EntryLockTTL:   duration{30 * time.Second},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Postgres: PostgresConfig{
			Port:          5432,
			SSLMode:       "disable",
			PoolMaxConns:  4,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Archive: ArchiveConfig{
			Interval:      duration{24 * time.Hour},
			RetentionDays: 30,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// Validate checks the configuration for internally inconsistent or missing
// values. It returns the first problem found.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "serve", "reconcile":
	default:
		return fmt.Errorf("config: unsupported mode %q (use serve or reconcile)", c.Mode)
	}

	if c.Alpaca.TradeURL == "" || c.Alpaca.DataURL == "" {
		return fmt.Errorf("config: alpaca trade_url and data_url are required")
	}
	if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
		return fmt.Errorf("config: alpaca api_key and api_secret are required")
	}

	if f := c.Risk.MaxTotalPortfolioFraction; f <= 0 || f > 1 {
		return fmt.Errorf("config: risk.max_total_portfolio_fraction %v must be in (0, 1]", f)
	}
	if f := c.Risk.MaxSingleTradeFraction; f <= 0 || f > 1 {
		return fmt.Errorf("config: risk.max_single_trade_fraction %v must be in (0, 1]", f)
	}
	if c.Risk.MaxSingleTradeFraction > c.Risk.MaxTotalPortfolioFraction {
		return fmt.Errorf("config: risk.max_single_trade_fraction must not exceed the portfolio fraction")
	}
	if c.Risk.ProfitLossRatio <= 0 {
		return fmt.Errorf("config: risk.profit_loss_ratio %v must be positive", c.Risk.ProfitLossRatio)
	}
	if f := c.Risk.StopLossFraction; f <= 0 || f >= 1 {
		return fmt.Errorf("config: risk.stop_loss_fraction %v must be in (0, 1)", f)
	}

	if c.Monitor.PollInterval.Duration <= 0 {
		return fmt.Errorf("config: monitor.poll_interval must be positive")
	}
	if c.Monitor.EntryLockEnabled && !c.Redis.Enabled {
		return fmt.Errorf("config: monitor.entry_lock_enabled requires redis")
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}

	if c.Postgres.Enabled && c.Postgres.DSN == "" && c.Postgres.Host == "" {
		return fmt.Errorf("config: postgres requires dsn or host")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}

	if c.S3.Enabled && (c.S3.Bucket == "" || c.S3.Region == "") {
		return fmt.Errorf("config: s3 requires bucket and region")
	}
	if c.Archive.Enabled {
		if !c.S3.Enabled || !c.Postgres.Enabled {
			return fmt.Errorf("config: archive requires both s3 and postgres")
		}
		if c.Archive.RetentionDays <= 0 {
			return fmt.Errorf("config: archive.retention_days must be positive")
		}
	}

	return nil
}
