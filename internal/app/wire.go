package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/quantara/tradewatch/internal/blob/s3"
	"github.com/quantara/tradewatch/internal/cache/redis"
	"github.com/quantara/tradewatch/internal/config"
	"github.com/quantara/tradewatch/internal/domain"
	"github.com/quantara/tradewatch/internal/ledger"
	"github.com/quantara/tradewatch/internal/notify"
	"github.com/quantara/tradewatch/internal/platform/alpaca"
	"github.com/quantara/tradewatch/internal/pricing"
	"github.com/quantara/tradewatch/internal/risk"
	"github.com/quantara/tradewatch/internal/store/postgres"
	"github.com/quantara/tradewatch/internal/trader"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Broker      *alpaca.Client
	Coordinator *trader.Coordinator
	Ledger      *ledger.Ledger

	// Optional layers; nil when disabled in configuration.
	Events   domain.TradeEventStore
	Bus      domain.SignalBus
	Archiver *s3blob.Archiver
	Notifier *notify.Notifier
}

// Wire constructs concrete dependency implementations from the configuration
// and returns them with a cleanup function to be called on shutdown. The
// coordinator's monitoring tasks inherit lifetime, so cancelling it stops
// every watcher.
func Wire(lifetime context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Ledger: ledger.New()}

	// --- Brokerage and pricing ---
	deps.Broker = alpaca.NewClient(alpaca.ClientConfig{
		TradeURL:  cfg.Alpaca.TradeURL,
		DataURL:   cfg.Alpaca.DataURL,
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
	})
	resolver := pricing.NewResolver(deps.Broker, deps.Broker, logger)
	entries := pricing.NewEntryPricer(deps.Broker, resolver, logger)

	// --- PostgreSQL record store ---
	var positions domain.PositionStore
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(lifetime, postgres.ClientConfig{
			DSN:      cfg.PostgresDSN(),
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(lifetime); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Events = postgres.NewTradeEventStore(pgClient.Pool())
		positions = postgres.NewPositionStore(pgClient.Pool())
	}

	// --- Redis cache, fan-out, and entry lock ---
	var (
		priceCache domain.PriceCache
		entryLock  domain.LockManager
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(lifetime, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		priceCache = redis.NewPriceCache(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		if cfg.Monitor.EntryLockEnabled {
			entryLock = redis.NewLockManager(redisClient)
		}
	}

	// --- S3 archival ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(lifetime, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		if cfg.Archive.Enabled && deps.Events != nil {
			deps.Archiver = s3blob.NewArchiver(
				s3blob.NewWriter(s3Client), deps.Events, positions, logger,
			)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	// --- Coordinator ---
	coordCfg := trader.Config{
		Limits: risk.Limits{
			MaxTotalPortfolioFraction: cfg.Risk.MaxTotalPortfolioFraction,
			MaxSingleTradeFraction:    cfg.Risk.MaxSingleTradeFraction,
			ProfitLossRatio:           cfg.Risk.ProfitLossRatio,
			StopLossFraction:          cfg.Risk.StopLossFraction,
			MinExitMarginEquity:       cfg.Risk.MinExitMarginEquity,
			MinExitMarginCrypto:       cfg.Risk.MinExitMarginCrypto,
		},
		PollInterval:   cfg.Monitor.PollInterval.Duration,
		MaxExitRetries: cfg.Monitor.MaxExitRetries,
	}
	if entryLock != nil {
		coordCfg.EntryLockTTL = cfg.Monitor.EntryLockTTL.Duration
		if coordCfg.EntryLockTTL <= 0 {
			coordCfg.EntryLockTTL = 30 * time.Second
		}
	}

	traderDeps := trader.Deps{
		Broker:     deps.Broker,
		Prices:     resolver,
		Entries:    entries,
		Ledger:     deps.Ledger,
		Events:     deps.Events,
		Positions:  positions,
		PriceCache: priceCache,
		Bus:        deps.Bus,
		EntryLock:  entryLock,
		Logger:     logger,
		Lifetime:   lifetime,
	}
	if deps.Notifier != nil {
		traderDeps.Notifier = deps.Notifier
	}
	deps.Coordinator = trader.NewCoordinator(coordCfg, traderDeps)

	return deps, cleanup, nil
}
