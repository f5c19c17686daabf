// Package trader implements the trade decision and position-monitoring core:
// risk-limited entry on buy signals, margin-guarded exit on sell signals, and
// one monitoring goroutine per open position that autonomously closes it at
// its take-profit or stop-loss threshold.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantara/tradewatch/internal/domain"
	"github.com/quantara/tradewatch/internal/ledger"
	"github.com/quantara/tradewatch/internal/risk"
)

// EntryPriceSource reconstructs a position's entry price from live brokerage
// state. Satisfied by pricing.EntryPricer.
type EntryPriceSource interface {
	EntryPrice(ctx context.Context, symbol string) (float64, error)
}

// Notifier delivers operator notifications for trade events. Satisfied by
// notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the coordinator's tunable parameters.
type Config struct {
	Limits risk.Limits

	// PollInterval is the delay between monitoring ticks, and the initial
	// arming delay before a fresh watcher's first check.
	PollInterval time.Duration

	// MaxExitRetries bounds consecutive failed exit submissions before a
	// watcher logs the exhaustion and re-arms; monitoring itself is
	// unbounded so an open position is never abandoned.
	MaxExitRetries int

	// EntryLockTTL, when positive and a LockManager is wired, extends the
	// per-symbol entry guard across processes.
	EntryLockTTL time.Duration
}

// Deps bundles the coordinator's collaborators. Broker, Prices, Entries,
// Ledger, and Logger are required. Events, Positions, PriceCache, Bus,
// Notifier, and EntryLock are optional side channels: when nil the
// corresponding bookkeeping is skipped, and when present their failures are
// logged, never fatal to a trade decision.
type Deps struct {
	Broker     domain.BrokerGateway
	Prices     domain.PriceSource
	Entries    EntryPriceSource
	Ledger     *ledger.Ledger
	Events     domain.TradeEventStore
	Positions  domain.PositionStore
	PriceCache domain.PriceCache
	Bus        domain.SignalBus
	Notifier   Notifier
	EntryLock  domain.LockManager
	Logger     *slog.Logger

	// Lifetime is the context spawned monitoring tasks inherit; cancelling
	// it stops every watcher and close task. Defaults to
	// context.Background().
	Lifetime context.Context
}

// Coordinator serializes trade-initiation decisions per symbol, applies the
// risk limits, submits orders, and owns the lifecycle of the monitoring
// tasks. Entry decisions for the same symbol are strictly serialized;
// different symbols proceed concurrently.
type Coordinator struct {
	cfg      Config
	broker   domain.BrokerGateway
	prices   domain.PriceSource
	entries  EntryPriceSource
	ledger   *ledger.Ledger
	events   domain.TradeEventStore
	store    domain.PositionStore
	cache    domain.PriceCache
	bus      domain.SignalBus
	notifier Notifier
	lock     domain.LockManager
	logger   *slog.Logger

	lifetime context.Context
	locks    *keyedMutex
	watchers *registry
	wg       sync.WaitGroup
}

// NewCoordinator creates a Coordinator from the given configuration and
// dependencies.
func NewCoordinator(cfg Config, deps Deps) *Coordinator {
	lifetime := deps.Lifetime
	if lifetime == nil {
		lifetime = context.Background()
	}
	return &Coordinator{
		cfg:      cfg,
		broker:   deps.Broker,
		prices:   deps.Prices,
		entries:  deps.Entries,
		ledger:   deps.Ledger,
		events:   deps.Events,
		store:    deps.Positions,
		cache:    deps.PriceCache,
		bus:      deps.Bus,
		notifier: deps.Notifier,
		lock:     deps.EntryLock,
		logger:   deps.Logger.With(slog.String("component", "coordinator")),
		lifetime: lifetime,
		locks:    newKeyedMutex(),
		watchers: newRegistry(),
	}
}

// InitiateTrade evaluates an inbound signal and returns the decision outcome.
// The whole decision for a symbol, including the read-modify-write of "check
// exposure, submit order, record ledger entry", runs under that symbol's
// mutex so concurrent signals for the same symbol cannot race past the
// checks.
func (c *Coordinator) InitiateTrade(ctx context.Context, sig domain.TradeSignal) domain.Outcome {
	if sig.Side != domain.OrderSideBuy && sig.Side != domain.OrderSideSell {
		return domain.Outcome{
			Message: fmt.Sprintf("%q is not a valid order side; use buy or sell", string(sig.Side)),
			Code:    domain.StatusInvalidOrderSide,
		}
	}

	unlock := c.locks.lock(domain.NormalizeSymbol(sig.Symbol))
	defer unlock()

	if c.lock != nil && c.cfg.EntryLockTTL > 0 {
		release, err := c.lock.Acquire(ctx, "trade:"+domain.NormalizeSymbol(sig.Symbol), c.cfg.EntryLockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			return domain.Outcome{
				Message: fmt.Sprintf("a trade decision for %s is already in progress", sig.Symbol),
				Code:    domain.StatusAlreadyTraded,
			}
		case err != nil:
			// Lock backend down: the in-process mutex still guards this
			// instance, so proceed.
			c.logger.WarnContext(ctx, "entry lock unavailable, proceeding with local guard only",
				slog.String("symbol", sig.Symbol),
				slog.String("error", err.Error()),
			)
		default:
			defer release()
		}
	}

	tracked := c.ledger.Contains(sig.Symbol) || c.brokerHolds(ctx, sig.Symbol)

	switch {
	case tracked && sig.Side == domain.OrderSideSell:
		return c.sell(ctx, sig)
	case tracked:
		return domain.Outcome{
			Message: fmt.Sprintf("asset %s is already being traded, skipping buying more", sig.Symbol),
			Code:    domain.StatusAlreadyTraded,
		}
	case sig.Side == domain.OrderSideSell:
		return domain.Outcome{
			Message: fmt.Sprintf("asset %s is not being traded, nothing to sell", sig.Symbol),
			Code:    domain.StatusNotTraded,
		}
	default:
		return c.buy(ctx, sig)
	}
}

// buy runs the entry decision: fetch market and account state, apply the
// risk limits, submit a market buy, record the entry, and spawn a watcher.
func (c *Coordinator) buy(ctx context.Context, sig domain.TradeSignal) domain.Outcome {
	price, err := c.prices.CurrentPrice(ctx, sig.Symbol)
	if err != nil {
		return c.failure(ctx, sig.Symbol, "fetch current price", err)
	}

	buyingPower, err := c.broker.BuyingPower(ctx)
	if err != nil {
		return c.failure(ctx, sig.Symbol, "fetch buying power", fmt.Errorf("%w: %v", domain.ErrAccountUnavailable, err))
	}

	open, err := c.broker.ListOpenPositions(ctx)
	if err != nil {
		return c.failure(ctx, sig.Symbol, "fetch open positions", fmt.Errorf("%w: %v", domain.ErrAccountUnavailable, err))
	}
	var exposure float64
	for _, pos := range open {
		exposure += pos.MarketValue
	}

	asset, err := c.broker.Asset(ctx, sig.Symbol)
	if err != nil {
		return c.failure(ctx, sig.Symbol, "fetch asset info", err)
	}

	decision, err := c.cfg.Limits.Evaluate(risk.Input{
		Price:        price,
		BuyingPower:  buyingPower,
		Exposure:     exposure,
		AssetClass:   asset.Class,
		Fractionable: asset.Fractionable,
	})
	if err != nil {
		return c.riskRejection(ctx, sig.Symbol, err)
	}

	stopLoss := risk.Round5(c.cfg.Limits.StopLoss(price))
	takeProfit := risk.Round5(c.cfg.Limits.TakeProfit(price))

	result, err := c.broker.SubmitOrder(ctx, domain.OrderTicket{
		ClientOrderID: uuid.NewString(),
		Symbol:        sig.Symbol,
		Quantity:      decision.Quantity,
		Side:          domain.OrderSideBuy,
		Kind:          domain.OrderKindMarket,
		TimeInForce:   domain.TimeInForceGTC,
	})
	if err != nil {
		return c.failure(ctx, sig.Symbol, "submit buy order", err)
	}
	if result.Rejected() {
		c.record(ctx, domain.TradeEvent{
			Symbol: sig.Symbol,
			Type:   domain.TradeEventRejected,
			Side:   domain.OrderSideBuy,
			Price:  price,
			Detail: result.RejectReason,
		})
		return domain.Outcome{
			Message: fmt.Sprintf("buy order for %s rejected: %s", sig.Symbol, result.RejectReason),
			Code:    domain.StatusOrderRejected,
		}
	}

	// Best-effort: prefer the brokerage's reconstructed entry price, fall
	// back to the quoted price used for the decision.
	entryPrice := price
	if entry, entryErr := c.entries.EntryPrice(ctx, sig.Symbol); entryErr == nil {
		entryPrice = entry
	}
	c.ledger.Set(sig.Symbol, entryPrice)

	c.spawnWatcher(sig.Symbol, takeProfit, stopLoss)

	c.record(ctx, domain.TradeEvent{
		Symbol:     sig.Symbol,
		Type:       domain.TradeEventEntry,
		Side:       domain.OrderSideBuy,
		Quantity:   decision.Quantity,
		Price:      price,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	})
	c.upsertPosition(ctx, domain.Position{
		Symbol:     sig.Symbol,
		Quantity:   decision.Quantity,
		EntryPrice: entryPrice,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		AssetClass: asset.Class,
		Status:     domain.PositionStatusOpen,
		OpenedAt:   time.Now().UTC(),
	})
	c.publish(ctx, ChannelTrades, map[string]any{
		"event":       "entry",
		"symbol":      sig.Symbol,
		"quantity":    decision.Quantity,
		"price":       price,
		"take_profit": takeProfit,
		"stop_loss":   stopLoss,
	})
	c.notify(ctx, "entry", "Position opened",
		fmt.Sprintf("%v %s @ %v (take profit %v, stop loss %v)",
			decision.Quantity, sig.Symbol, risk.Round5(price), takeProfit, stopLoss))

	c.logger.InfoContext(ctx, "buy order submitted",
		slog.String("symbol", sig.Symbol),
		slog.Float64("quantity", decision.Quantity),
		slog.Float64("price", price),
		slog.Float64("take_profit", takeProfit),
		slog.Float64("stop_loss", stopLoss),
	)

	return domain.Outcome{
		Message: fmt.Sprintf("order submitted for %v of %s, take profit at %v, stop loss at %v",
			decision.Quantity, sig.Symbol, takeProfit, stopLoss),
		Code: domain.StatusOK,
	}
}

// sell runs the exit decision for a tracked symbol. The position is closed
// unconditionally when the terminate override is set, or when the current
// price clears the entry price plus the asset class's minimum exit margin;
// otherwise a soft "not closed" outcome is returned.
func (c *Coordinator) sell(ctx context.Context, sig domain.TradeSignal) domain.Outcome {
	entryPrice, err := c.entries.EntryPrice(ctx, sig.Symbol)
	if err != nil {
		return c.failure(ctx, sig.Symbol, "reconstruct entry price", err)
	}

	current, err := c.prices.CurrentPrice(ctx, sig.Symbol)
	if err != nil {
		return c.failure(ctx, sig.Symbol, "fetch current price", err)
	}

	margin := c.cfg.Limits.MinExitMargin(c.assetClass(ctx, sig.Symbol))
	threshold := risk.Round5(entryPrice + margin)

	if !sig.Terminate && risk.Round5(current) <= threshold {
		return domain.Outcome{
			Message: fmt.Sprintf("trade not closed on sell signal: %s current price %v is not above entry price %v plus minimum exit margin %v",
				sig.Symbol, risk.Round5(current), entryPrice, margin),
			Code: domain.StatusOK,
		}
	}

	// Stop the watcher explicitly; the close task owns the exit from here.
	c.watchers.cancel(sig.Symbol)
	c.spawnCloser(sig.Symbol, sig.Terminate)

	return domain.Outcome{
		Message: fmt.Sprintf("closing %s on sell signal at current price %v (entry %v, minimum exit margin %v)",
			sig.Symbol, risk.Round5(current), entryPrice, margin),
		Code: domain.StatusOK,
	}
}

// riskRejection maps a limiter rejection onto its outcome without side
// effects.
func (c *Coordinator) riskRejection(ctx context.Context, symbol string, err error) domain.Outcome {
	c.logger.InfoContext(ctx, "entry rejected by risk limits",
		slog.String("symbol", symbol),
		slog.String("reason", err.Error()),
	)

	switch {
	case errors.Is(err, risk.ErrPortfolioLimitExceeded):
		return domain.Outcome{
			Message: "max active trade funds limit reached",
			Code:    domain.StatusPortfolioLimit,
		}
	case errors.Is(err, risk.ErrTradeTooSmall):
		return domain.Outcome{
			Message: fmt.Sprintf("computed quantity for %s rounds to zero", symbol),
			Code:    domain.StatusTradeLimit,
		}
	default:
		return domain.Outcome{
			Message: fmt.Sprintf("trade for %s exceeds the per-trade limit", symbol),
			Code:    domain.StatusTradeLimit,
		}
	}
}

// failure converts an upstream error into the generic failure outcome,
// keeping the original cause in the message.
func (c *Coordinator) failure(ctx context.Context, symbol, op string, err error) domain.Outcome {
	c.logger.ErrorContext(ctx, "trade decision failed",
		slog.String("symbol", symbol),
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return domain.Outcome{
		Message: fmt.Sprintf("%s for %s: %v", op, symbol, err),
		Code:    domain.StatusInternalError,
	}
}

// brokerHolds reports whether the brokerage currently lists an open position
// for the symbol. Snapshot failures count as "not held", matching the entry
// path's optimistic guard; the ledger check covers the common case.
func (c *Coordinator) brokerHolds(ctx context.Context, symbol string) bool {
	positions, err := c.broker.ListOpenPositions(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "position snapshot failed during tracking check",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return false
	}
	for _, pos := range positions {
		if domain.SameSymbol(pos.Symbol, symbol) {
			return true
		}
	}
	return false
}

// assetClass looks up the asset class for a symbol, defaulting to equity when
// the lookup fails.
func (c *Coordinator) assetClass(ctx context.Context, symbol string) domain.AssetClass {
	asset, err := c.broker.Asset(ctx, symbol)
	if err != nil {
		c.logger.WarnContext(ctx, "asset lookup failed, assuming equity",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return domain.AssetClassEquity
	}
	return asset.Class
}

// ActiveWatchers returns the number of live monitoring tasks.
func (c *Coordinator) ActiveWatchers() int {
	return c.watchers.active()
}

// Wait blocks until every spawned monitoring task has returned. Call after
// cancelling the lifetime context during shutdown.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// spawnWatcher starts the monitoring task for a freshly opened (or adopted)
// position and registers its cancellation handle.
func (c *Coordinator) spawnWatcher(symbol string, takeProfit, stopLoss float64) {
	wctx, cancel := context.WithCancel(c.lifetime)
	c.watchers.add(symbol, cancel)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.watch(wctx, symbol, takeProfit, stopLoss)
	}()
}

// spawnCloser starts the close task for a sell decision.
func (c *Coordinator) spawnCloser(symbol string, force bool) {
	cctx, cancel := context.WithCancel(c.lifetime)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.close(cctx, symbol, force)
	}()
}
