package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the configuration file at path, merges it over the defaults and
// then applies TRADEWATCH_* environment overrides. A .env file in the working
// directory is loaded first if present.
func Load(path string) (Config, error) {
	// Best effort; a missing .env file is not an error.
	_ = godotenv.Load()

	cfg := Defaults()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "TRADEWATCH_MODE")
	setStr(&cfg.LogLevel, "TRADEWATCH_LOG_LEVEL")

	setStr(&cfg.Alpaca.TradeURL, "TRADEWATCH_ALPACA_TRADE_URL")
	setStr(&cfg.Alpaca.DataURL, "TRADEWATCH_ALPACA_DATA_URL")
	setStr(&cfg.Alpaca.APIKey, "TRADEWATCH_ALPACA_API_KEY")
	setStr(&cfg.Alpaca.APISecret, "TRADEWATCH_ALPACA_API_SECRET")

	setFloat64(&cfg.Risk.MaxTotalPortfolioFraction, "TRADEWATCH_RISK_MAX_TOTAL_PORTFOLIO_FRACTION")
	setFloat64(&cfg.Risk.MaxSingleTradeFraction, "TRADEWATCH_RISK_MAX_SINGLE_TRADE_FRACTION")
	setFloat64(&cfg.Risk.ProfitLossRatio, "TRADEWATCH_RISK_PROFIT_LOSS_RATIO")
	setFloat64(&cfg.Risk.StopLossFraction, "TRADEWATCH_RISK_STOP_LOSS_FRACTION")
	setFloat64(&cfg.Risk.MinExitMarginEquity, "TRADEWATCH_RISK_MIN_EXIT_MARGIN_EQUITY")
	setFloat64(&cfg.Risk.MinExitMarginCrypto, "TRADEWATCH_RISK_MIN_EXIT_MARGIN_CRYPTO")

	setDuration(&cfg.Monitor.PollInterval, "TRADEWATCH_MONITOR_POLL_INTERVAL")
	setInt(&cfg.Monitor.MaxExitRetries, "TRADEWATCH_MONITOR_MAX_EXIT_RETRIES")
	setBool(&cfg.Monitor.EntryLockEnabled, "TRADEWATCH_MONITOR_ENTRY_LOCK_ENABLED")
	setDuration(&cfg.Monitor.EntryLockTTL, "TRADEWATCH_MONITOR_ENTRY_LOCK_TTL")

	setBool(&cfg.Server.Enabled, "TRADEWATCH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADEWATCH_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "TRADEWATCH_SERVER_API_KEY")
	setStrSlice(&cfg.Server.CORSOrigins, "TRADEWATCH_SERVER_CORS_ORIGINS")

	setBool(&cfg.Postgres.Enabled, "TRADEWATCH_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "TRADEWATCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRADEWATCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADEWATCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADEWATCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADEWATCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADEWATCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADEWATCH_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "TRADEWATCH_POSTGRES_RUN_MIGRATIONS")

	setBool(&cfg.Redis.Enabled, "TRADEWATCH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADEWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEWATCH_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "TRADEWATCH_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "TRADEWATCH_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRADEWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEWATCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEWATCH_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "TRADEWATCH_S3_FORCE_PATH_STYLE")

	setBool(&cfg.Archive.Enabled, "TRADEWATCH_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "TRADEWATCH_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "TRADEWATCH_ARCHIVE_RETENTION_DAYS")

	setStr(&cfg.Notify.TelegramToken, "TRADEWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStrSlice(&cfg.Notify.Events, "TRADEWATCH_NOTIFY_EVENTS")
}

// PostgresDSN returns the explicit DSN when set, otherwise one assembled from
// the individual connection fields.
func (c *Config) PostgresDSN() string {
	if c.Postgres.DSN != "" {
		return c.Postgres.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User, c.Postgres.Password,
		c.Postgres.Host, c.Postgres.Port,
		c.Postgres.Database, c.Postgres.SSLMode)
}

func setStr(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			dst.Duration = parsed
		}
	}
}

func setStrSlice(dst *[]string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
