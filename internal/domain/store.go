package domain

import (
	"context"
	"time"
)

// TradeEventType labels a row in the trade event log.
type TradeEventType string

const (
	TradeEventEntry         TradeEventType = "entry"
	TradeEventExit          TradeEventType = "exit"
	TradeEventExternalClose TradeEventType = "external_close"
	TradeEventRejected      TradeEventType = "rejected"
	TradeEventReconciled    TradeEventType = "reconciled"
)

// TradeEvent is one append-only record of a decision or fill the bot made.
type TradeEvent struct {
	ID         string
	Symbol     string
	Type       TradeEventType
	Side       OrderSide
	Quantity   float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Detail     string
	CreatedAt  time.Time
}

// TradeEventStore persists the append-only trade event log. Writes from the
// decision path are best-effort: callers log failures and continue.
type TradeEventStore interface {
	Insert(ctx context.Context, evt TradeEvent) error
	ListBySymbol(ctx context.Context, symbol string, limit int) ([]TradeEvent, error)
	ListBefore(ctx context.Context, before time.Time) ([]TradeEvent, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// PositionStore persists position history across restarts.
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	MarkClosed(ctx context.Context, symbol string, exitPrice float64) error
	ListOpen(ctx context.Context) ([]Position, error)
	ListClosedBefore(ctx context.Context, before time.Time) ([]Position, error)
}
