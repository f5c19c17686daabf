// Package pricing resolves prices for the trading core: a current market
// price with an explicit two-step source fallback, and the best-effort
// reconstruction of a position's entry price from live brokerage state.
package pricing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantara/tradewatch/internal/domain"
	"github.com/quantara/tradewatch/internal/risk"
)

// Resolver implements domain.PriceSource by querying the latest minute-bar
// close first and falling back to the latest-quote ask when the bar endpoint
// does not cover the asset. It returns domain.ErrPriceUnavailable only when
// both sources fail.
type Resolver struct {
	bars   domain.BarSource
	quotes domain.QuoteSource
	logger *slog.Logger
}

// NewResolver creates a Resolver over the given primary and secondary
// sources.
func NewResolver(bars domain.BarSource, quotes domain.QuoteSource, logger *slog.Logger) *Resolver {
	return &Resolver{
		bars:   bars,
		quotes: quotes,
		logger: logger.With(slog.String("component", "pricing")),
	}
}

// CurrentPrice returns the current market price for a symbol.
func (r *Resolver) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	price, barErr := r.bars.LatestBarClose(ctx, symbol)
	if barErr == nil {
		return price, nil
	}

	r.logger.DebugContext(ctx, "primary price source failed, trying quote fallback",
		slog.String("symbol", symbol),
		slog.String("error", barErr.Error()),
	)

	ask, quoteErr := r.quotes.LatestQuoteAsk(ctx, symbol)
	if quoteErr != nil {
		return 0, fmt.Errorf("pricing: %w for %s (bar: %v; quote: %v)",
			domain.ErrPriceUnavailable, symbol, barErr, quoteErr)
	}
	return ask, nil
}

// Compile-time interface check.
var _ domain.PriceSource = (*Resolver)(nil)

// EntryPricer reconstructs a position's entry price. The brokerage does not
// expose it directly, so it is derived from the live position snapshot as
// current price minus per-unit unrealized P/L. For a symbol with no open
// position the live current price is returned instead, which makes the
// baseline "no gain, no loss". The reconstruction depends on a live
// snapshot, so callers repeat it periodically rather than storing the value.
type EntryPricer struct {
	broker domain.BrokerGateway
	prices domain.PriceSource
	logger *slog.Logger
}

// NewEntryPricer creates an EntryPricer over the broker and price source.
func NewEntryPricer(broker domain.BrokerGateway, prices domain.PriceSource, logger *slog.Logger) *EntryPricer {
	return &EntryPricer{
		broker: broker,
		prices: prices,
		logger: logger.With(slog.String("component", "pricing")),
	}
}

// EntryPrice returns the reconstructed entry price for a symbol, rounded to
// the standard 5-decimal comparison precision.
func (e *EntryPricer) EntryPrice(ctx context.Context, symbol string) (float64, error) {
	positions, err := e.broker.ListOpenPositions(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "entry price: position snapshot failed, degrading to live price",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	} else {
		for _, pos := range positions {
			if domain.SameSymbol(pos.Symbol, symbol) {
				return risk.Round5(pos.CurrentPrice - pos.UnrealizedPnL), nil
			}
		}
	}

	price, priceErr := e.prices.CurrentPrice(ctx, symbol)
	if priceErr != nil {
		return 0, fmt.Errorf("pricing: entry price for %s: %w", symbol, priceErr)
	}
	return risk.Round5(price), nil
}
