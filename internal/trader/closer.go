package trader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantara/tradewatch/internal/domain"
	"github.com/quantara/tradewatch/internal/risk"
)

// close is the task spawned for a sell decision. It polls until the position
// disappears from the brokerage's open list, submitting a market sell on
// every tick where the exit condition holds. With force set (the terminate
// override) the condition is unconditional; otherwise the current price must
// clear the reconstructed entry price plus the minimum exit margin, which is
// re-evaluated each tick against the live snapshot.
func (c *Coordinator) close(ctx context.Context, symbol string, force bool) {
	logger := c.logger.With(
		slog.String("component", "closer"),
		slog.String("symbol", symbol),
		slog.Bool("force", force),
	)

	logger.InfoContext(ctx, "close task started")

	for {
		pos, found, err := c.findPosition(ctx, symbol)
		switch {
		case err != nil:
			logger.WarnContext(ctx, "position snapshot failed, retrying next tick",
				slog.String("error", err.Error()),
			)

		case !found:
			// Sold, or closed externally; either way the exit is done.
			c.ledger.Remove(symbol)
			lastPrice, _ := c.lastPrice(ctx, symbol)
			c.markClosed(ctx, symbol, lastPrice)
			c.record(ctx, domain.TradeEvent{
				Symbol: symbol,
				Type:   domain.TradeEventExit,
				Side:   domain.OrderSideSell,
				Price:  lastPrice,
				Detail: "sell signal",
			})
			c.publish(ctx, ChannelTrades, map[string]any{
				"event":   "exit",
				"symbol":  symbol,
				"price":   lastPrice,
				"outcome": "sell signal",
			})
			c.notify(ctx, "exit", "Position closed on sell signal",
				fmt.Sprintf("%s sold @ %v", symbol, lastPrice))
			logger.InfoContext(ctx, "position closed on sell signal",
				slog.Float64("price", lastPrice),
			)
			return

		default:
			if err := c.closeTick(ctx, logger, pos, symbol, force); err != nil {
				logger.WarnContext(ctx, "close tick failed, retrying",
					slog.String("error", err.Error()),
				)
			}
		}

		if !sleepCtx(ctx, c.cfg.PollInterval) {
			return
		}
	}
}

// closeTick submits one exit attempt when the condition allows it.
func (c *Coordinator) closeTick(ctx context.Context, logger *slog.Logger, pos domain.BrokerPosition, symbol string, force bool) error {
	if !force {
		entryPrice, err := c.entries.EntryPrice(ctx, symbol)
		if err != nil {
			return fmt.Errorf("trader: reconstruct entry price: %w", err)
		}
		current, err := c.prices.CurrentPrice(ctx, symbol)
		if err != nil {
			return fmt.Errorf("trader: fetch current price: %w", err)
		}
		margin := c.cfg.Limits.MinExitMargin(pos.AssetClass)
		if risk.Round5(current) <= risk.Round5(entryPrice+margin) {
			logger.DebugContext(ctx, "exit margin not met, holding",
				slog.Float64("price", risk.Round5(current)),
				slog.Float64("entry", entryPrice),
				slog.Float64("margin", margin),
			)
			return nil
		}
	}

	result, err := c.broker.SubmitOrder(ctx, sellTicket(symbol, pos.Quantity))
	if err != nil {
		return fmt.Errorf("trader: submit exit order: %w", err)
	}
	logger.InfoContext(ctx, "exit order submitted",
		slog.Float64("quantity", pos.Quantity),
		slog.String("status", result.Status),
	)
	return nil
}
