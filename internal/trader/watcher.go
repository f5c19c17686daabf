package trader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantara/tradewatch/internal/domain"
	"github.com/quantara/tradewatch/internal/risk"
)

// watch is the monitoring task for one open position. It polls the current
// price every PollInterval and exits the position when it crosses the
// take-profit or stop-loss threshold, both fixed at entry time. A position
// that disappears from the brokerage's open list (a manual close or a fill
// the bot did not trigger) terminates the task without submitting anything.
//
// Monitoring is unbounded: a tick that fails to fetch data is logged and
// retried on the next tick, never fatal, so the task persists through
// transient data-source outages for as long as the position is open.
func (c *Coordinator) watch(ctx context.Context, symbol string, takeProfit, stopLoss float64) {
	logger := c.logger.With(
		slog.String("component", "watcher"),
		slog.String("symbol", symbol),
	)

	logger.InfoContext(ctx, "watcher armed",
		slog.Float64("take_profit", takeProfit),
		slog.Float64("stop_loss", stopLoss),
	)

	// Armed: wait one interval before the first check so the decision is
	// not made on data quoted immediately after entry.
	if !sleepCtx(ctx, c.cfg.PollInterval) {
		return
	}

	exitFailures := 0

	for {
		pos, found, err := c.findPosition(ctx, symbol)
		switch {
		case err != nil:
			logger.WarnContext(ctx, "position snapshot failed, retrying next tick",
				slog.String("error", err.Error()),
			)

		case !found:
			// Closed externally: clean up and stop without ordering.
			c.ledger.Remove(symbol)
			c.watchers.remove(symbol)
			c.markClosed(ctx, symbol, 0)
			c.record(ctx, domain.TradeEvent{
				Symbol: symbol,
				Type:   domain.TradeEventExternalClose,
				Side:   domain.OrderSideSell,
			})
			c.publish(ctx, ChannelTrades, map[string]any{
				"event":  "external_close",
				"symbol": symbol,
			})
			c.notify(ctx, "external_close", "Position closed externally",
				fmt.Sprintf("%s is no longer open at the brokerage; monitoring stopped", symbol))
			logger.InfoContext(ctx, "position closed externally, stopping watcher")
			return

		default:
			// Tracked entry price depends on a live snapshot; refresh it
			// best-effort each tick.
			if entry, entryErr := c.entries.EntryPrice(ctx, symbol); entryErr == nil {
				c.ledger.Set(symbol, entry)
			}

			price, priceErr := c.prices.CurrentPrice(ctx, symbol)
			if priceErr != nil {
				logger.WarnContext(ctx, "price unavailable, retrying next tick",
					slog.String("error", priceErr.Error()),
				)
			} else if done := c.watchTick(ctx, logger, pos, symbol, risk.Round5(price), takeProfit, stopLoss, &exitFailures); done {
				return
			}
		}

		if !sleepCtx(ctx, c.cfg.PollInterval) {
			// Cancelled: a coordinator-initiated close or process shutdown
			// owns any remaining cleanup.
			return
		}
	}
}

// watchTick evaluates one monitoring tick with a resolved price. It returns
// true when the watcher should terminate.
func (c *Coordinator) watchTick(
	ctx context.Context,
	logger *slog.Logger,
	pos domain.BrokerPosition,
	symbol string,
	price, takeProfit, stopLoss float64,
	exitFailures *int,
) bool {
	c.cachePrice(ctx, symbol, price)
	c.publish(ctx, ChannelWatcher, map[string]any{
		"event":       "tick",
		"symbol":      symbol,
		"price":       price,
		"take_profit": takeProfit,
		"stop_loss":   stopLoss,
	})

	logger.DebugContext(ctx, "checking position",
		slog.Float64("price", price),
		slog.Float64("take_profit", takeProfit),
		slog.Float64("stop_loss", stopLoss),
	)

	if price < risk.Round5(takeProfit) && price > risk.Round5(stopLoss) {
		return false
	}

	outcome := "profit"
	if price <= risk.Round5(stopLoss) {
		outcome = "loss"
	}

	result, err := c.broker.SubmitOrder(ctx, sellTicket(symbol, pos.Quantity))
	if err != nil || result.Rejected() {
		// The position is still open; the next tick resubmits.
		*exitFailures++
		detail := result.RejectReason
		if err != nil {
			detail = err.Error()
		}
		logger.WarnContext(ctx, "exit order not accepted, will retry",
			slog.String("outcome", outcome),
			slog.Int("attempt", *exitFailures),
			slog.String("detail", detail),
		)
		if c.cfg.MaxExitRetries > 0 && *exitFailures >= c.cfg.MaxExitRetries {
			logger.WarnContext(ctx, "exit retry budget exhausted, re-arming monitor",
				slog.Int("attempts", *exitFailures),
			)
			*exitFailures = 0
		}
		return false
	}

	c.ledger.Remove(symbol)
	c.watchers.remove(symbol)
	c.markClosed(ctx, symbol, price)
	c.record(ctx, domain.TradeEvent{
		Symbol:     symbol,
		Type:       domain.TradeEventExit,
		Side:       domain.OrderSideSell,
		Quantity:   pos.Quantity,
		Price:      price,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Detail:     outcome,
	})
	c.publish(ctx, ChannelTrades, map[string]any{
		"event":   "exit",
		"symbol":  symbol,
		"price":   price,
		"outcome": outcome,
	})
	c.notify(ctx, "exit", fmt.Sprintf("Position closed (%s)", outcome),
		fmt.Sprintf("sold %v %s @ %v (take profit %v, stop loss %v)",
			pos.Quantity, symbol, price, takeProfit, stopLoss))

	logger.InfoContext(ctx, "position exited",
		slog.String("outcome", outcome),
		slog.Float64("price", price),
		slog.Float64("quantity", pos.Quantity),
	)
	return true
}
