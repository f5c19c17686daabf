package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validConfig returns a configuration that passes Validate.
func validConfig() Config {
	cfg := Defaults()
	cfg.Alpaca.APIKey = "key"
	cfg.Alpaca.APISecret = "secret"
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Risk.MaxTotalPortfolioFraction != 0.20 || cfg.Risk.MaxSingleTradeFraction != 0.02 {
		t.Errorf("risk fractions = %v/%v, want 0.20/0.02",
			cfg.Risk.MaxTotalPortfolioFraction, cfg.Risk.MaxSingleTradeFraction)
	}
	if cfg.Risk.StopLossFraction != 0.01 || cfg.Risk.ProfitLossRatio != 1.0 {
		t.Errorf("stop loss fraction/ratio = %v/%v, want 0.01/1.0",
			cfg.Risk.StopLossFraction, cfg.Risk.ProfitLossRatio)
	}
	if cfg.Monitor.PollInterval.Duration != 30*time.Second {
		t.Errorf("poll interval = %v, want 30s", cfg.Monitor.PollInterval.Duration)
	}
	if cfg.Mode != "serve" {
		t.Errorf("mode = %q, want serve", cfg.Mode)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad mode", func(c *Config) { c.Mode = "backtest" }, "unsupported mode"},
		{"missing credentials", func(c *Config) { c.Alpaca.APIKey = "" }, "api_key"},
		{"portfolio fraction out of range", func(c *Config) { c.Risk.MaxTotalPortfolioFraction = 1.5 }, "max_total_portfolio_fraction"},
		{"single above total", func(c *Config) {
			c.Risk.MaxSingleTradeFraction = 0.5
		}, "must not exceed"},
		{"zero poll interval", func(c *Config) { c.Monitor.PollInterval.Duration = 0 }, "poll_interval"},
		{"entry lock without redis", func(c *Config) { c.Monitor.EntryLockEnabled = true }, "requires redis"},
		{"archive without s3", func(c *Config) { c.Archive.Enabled = true }, "archive requires"},
		{"postgres without target", func(c *Config) {
			c.Postgres.Enabled = true
			c.Postgres.Host = ""
		}, "dsn or host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate returned error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
mode = "reconcile"

[alpaca]
api_key = "file-key"
api_secret = "file-secret"

[risk]
max_single_trade_fraction = 0.05

[monitor]
poll_interval = "10s"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Mode != "reconcile" {
		t.Errorf("mode = %q, want reconcile", cfg.Mode)
	}
	if cfg.Risk.MaxSingleTradeFraction != 0.05 {
		t.Errorf("single trade fraction = %v, want 0.05", cfg.Risk.MaxSingleTradeFraction)
	}
	if cfg.Monitor.PollInterval.Duration != 10*time.Second {
		t.Errorf("poll interval = %v, want 10s", cfg.Monitor.PollInterval.Duration)
	}
	// Untouched sections keep their defaults.
	if cfg.Risk.MaxTotalPortfolioFraction != 0.20 {
		t.Errorf("portfolio fraction = %v, want default 0.20", cfg.Risk.MaxTotalPortfolioFraction)
	}
	if cfg.Alpaca.TradeURL != "https://paper-api.alpaca.markets" {
		t.Errorf("trade url = %q, want default", cfg.Alpaca.TradeURL)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADEWATCH_ALPACA_API_KEY", "env-key")
	t.Setenv("TRADEWATCH_RISK_STOP_LOSS_FRACTION", "0.02")
	t.Setenv("TRADEWATCH_MONITOR_POLL_INTERVAL", "5s")
	t.Setenv("TRADEWATCH_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("api key = %q, want env-key", cfg.Alpaca.APIKey)
	}
	if cfg.Risk.StopLossFraction != 0.02 {
		t.Errorf("stop loss fraction = %v, want 0.02", cfg.Risk.StopLossFraction)
	}
	if cfg.Monitor.PollInterval.Duration != 5*time.Second {
		t.Errorf("poll interval = %v, want 5s", cfg.Monitor.PollInterval.Duration)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != want[0] || cfg.Server.CORSOrigins[1] != want[1] {
		t.Errorf("cors origins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.DSN = "postgres://explicit"
	if got := cfg.PostgresDSN(); got != "postgres://explicit" {
		t.Errorf("dsn = %q, want the explicit value", got)
	}

	cfg.Postgres.DSN = ""
	cfg.Postgres.User = "bot"
	cfg.Postgres.Password = "pw"
	cfg.Postgres.Host = "db.internal"
	cfg.Postgres.Database = "tradewatch"
	want := "postgres://bot:pw@db.internal:5432/tradewatch?sslmode=disable"
	if got := cfg.PostgresDSN(); got != want {
		t.Errorf("dsn = %q, want %q", got, want)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Server.APIKey = "server-secret"
	cfg.Redis.Password = "redis-secret"

	red := RedactedConfig(&cfg)
	if red.Alpaca.APIKey == "key" || red.Server.APIKey == "server-secret" || red.Redis.Password == "redis-secret" {
		t.Error("secrets must be redacted")
	}
	// The original is untouched.
	if cfg.Alpaca.APIKey != "key" {
		t.Errorf("original api key = %q, want key", cfg.Alpaca.APIKey)
	}
}
