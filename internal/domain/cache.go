package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest observed price per symbol.
// The watcher writes each polled price so the API and websocket hub can read
// without hitting the brokerage.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// SignalBus provides pub/sub fan-out of trade and watcher events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager provides distributed locking, used to extend the per-symbol
// entry guard across processes when more than one instance runs.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
