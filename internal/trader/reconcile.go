package trader

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quantara/tradewatch/internal/domain"
	"github.com/quantara/tradewatch/internal/risk"
)

// Reconcile adopts every open brokerage position that is not already
// tracked: it reconstructs the entry price from the live snapshot, derives
// stop-loss and take-profit with the same formulas as a fresh entry,
// registers the ledger entry, and spawns a watcher. Run at startup so the
// bot resumes monitoring open risk after a restart instead of abandoning it.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	positions, err := c.broker.ListOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("trader: reconcile: list open positions: %w", err)
	}

	adopted := 0
	for _, pos := range positions {
		symbol := displaySymbol(pos)
		if c.ledger.Contains(symbol) {
			continue
		}

		entryPrice := risk.Round5(pos.CurrentPrice - pos.UnrealizedPnL)
		stopLoss := risk.Round5(c.cfg.Limits.StopLoss(entryPrice))
		takeProfit := risk.Round5(c.cfg.Limits.TakeProfit(entryPrice))

		c.ledger.Set(symbol, entryPrice)
		c.spawnWatcher(symbol, takeProfit, stopLoss)

		c.record(ctx, domain.TradeEvent{
			Symbol:     symbol,
			Type:       domain.TradeEventReconciled,
			Side:       domain.OrderSideBuy,
			Quantity:   pos.Quantity,
			Price:      entryPrice,
			StopLoss:   stopLoss,
			TakeProfit: takeProfit,
		})
		c.upsertPosition(ctx, domain.Position{
			Symbol:     symbol,
			Quantity:   pos.Quantity,
			EntryPrice: entryPrice,
			StopLoss:   stopLoss,
			TakeProfit: takeProfit,
			AssetClass: pos.AssetClass,
			Status:     domain.PositionStatusOpen,
			OpenedAt:   time.Now().UTC(),
		})
		c.notify(ctx, "reconciled", "Existing position adopted",
			fmt.Sprintf("monitoring %v %s (entry %v, take profit %v, stop loss %v)",
				pos.Quantity, symbol, entryPrice, takeProfit, stopLoss))

		c.logger.InfoContext(ctx, "adopted existing position",
			slog.String("symbol", symbol),
			slog.Float64("quantity", pos.Quantity),
			slog.Float64("entry_price", entryPrice),
			slog.Float64("take_profit", takeProfit),
			slog.Float64("stop_loss", stopLoss),
		)
		adopted++
	}

	c.logger.InfoContext(ctx, "reconciliation complete",
		slog.Int("open_positions", len(positions)),
		slog.Int("adopted", adopted),
	)
	return nil
}

// displaySymbol restores the signal-facing form of a brokerage symbol:
// crypto positions come back without the pair separator ("BTCUSD") while
// signals and quotes use "BTC/USD".
func displaySymbol(pos domain.BrokerPosition) string {
	if pos.AssetClass == domain.AssetClassCrypto && !strings.Contains(pos.Symbol, "/") && strings.HasSuffix(pos.Symbol, "USD") {
		return strings.TrimSuffix(pos.Symbol, "USD") + "/USD"
	}
	return pos.Symbol
}
