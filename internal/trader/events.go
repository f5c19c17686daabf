package trader

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantara/tradewatch/internal/domain"
)

// Signal bus channels the coordinator and its tasks publish on. The
// websocket hub re-broadcasts both to connected clients.
const (
	ChannelTrades  = "trades"
	ChannelWatcher = "watcher"
)

// record appends a trade event to the event store, best-effort.
func (c *Coordinator) record(ctx context.Context, evt domain.TradeEvent) {
	if c.events == nil {
		return
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	if err := c.events.Insert(ctx, evt); err != nil {
		c.logger.WarnContext(ctx, "trade event insert failed",
			slog.String("symbol", evt.Symbol),
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// publish sends an event payload to the signal bus, best-effort.
func (c *Coordinator) publish(ctx context.Context, channel string, payload map[string]any) {
	if c.bus == nil {
		return
	}
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	data, _ := json.Marshal(payload)
	if err := c.bus.Publish(ctx, channel, data); err != nil {
		c.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// notify delivers an operator notification, best-effort.
func (c *Coordinator) notify(ctx context.Context, event, title, message string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, event, title, message); err != nil {
		c.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// cachePrice stores the latest observed price, best-effort.
func (c *Coordinator) cachePrice(ctx context.Context, symbol string, price float64) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetPrice(ctx, symbol, price, time.Now().UTC()); err != nil {
		c.logger.WarnContext(ctx, "price cache write failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}
}

// lastPrice returns the most recently cached price for a symbol, falling
// back to a live lookup.
func (c *Coordinator) lastPrice(ctx context.Context, symbol string) (float64, error) {
	if c.cache != nil {
		if price, _, err := c.cache.GetPrice(ctx, symbol); err == nil {
			return price, nil
		}
	}
	return c.prices.CurrentPrice(ctx, symbol)
}

// upsertPosition writes position history, best-effort.
func (c *Coordinator) upsertPosition(ctx context.Context, pos domain.Position) {
	if c.store == nil {
		return
	}
	if err := c.store.Upsert(ctx, pos); err != nil {
		c.logger.WarnContext(ctx, "position upsert failed",
			slog.String("symbol", pos.Symbol),
			slog.String("error", err.Error()),
		)
	}
}

// markClosed records a position close in history, best-effort.
func (c *Coordinator) markClosed(ctx context.Context, symbol string, exitPrice float64) {
	if c.store == nil {
		return
	}
	if err := c.store.MarkClosed(ctx, symbol, exitPrice); err != nil {
		c.logger.WarnContext(ctx, "position close record failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}
}

// findPosition locates the open brokerage position for a symbol.
func (c *Coordinator) findPosition(ctx context.Context, symbol string) (domain.BrokerPosition, bool, error) {
	positions, err := c.broker.ListOpenPositions(ctx)
	if err != nil {
		return domain.BrokerPosition{}, false, err
	}
	for _, pos := range positions {
		if domain.SameSymbol(pos.Symbol, symbol) {
			return pos, true, nil
		}
	}
	return domain.BrokerPosition{}, false, nil
}

// sellTicket builds a market sell for the full tracked quantity.
func sellTicket(symbol string, quantity float64) domain.OrderTicket {
	return domain.OrderTicket{
		ClientOrderID: uuid.NewString(),
		Symbol:        symbol,
		Quantity:      quantity,
		Side:          domain.OrderSideSell,
		Kind:          domain.OrderKindMarket,
		TimeInForce:   domain.TimeInForceGTC,
	}
}

// sleepCtx sleeps for d, returning false if the context was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
