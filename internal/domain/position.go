package domain

import (
	"strings"
	"time"
)

// AssetClass is the brokerage's classification of a tradable symbol.
type AssetClass string

const (
	AssetClassEquity AssetClass = "us_equity"
	AssetClassCrypto AssetClass = "crypto"
)

// PositionStatus tracks a position through its monitored lifecycle.
type PositionStatus string

const (
	PositionStatusOpen    PositionStatus = "open"
	PositionStatusClosing PositionStatus = "closing"
	PositionStatusClosed  PositionStatus = "closed"
)

// Position is an asset under bot management. StopLoss and TakeProfit are
// derived once at entry and never recomputed for the life of the watcher.
type Position struct {
	Symbol     string
	Quantity   float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	AssetClass AssetClass
	Status     PositionStatus
	OpenedAt   time.Time
	ClosedAt   *time.Time
	ExitPrice  *float64
}

// BrokerPosition is a live position snapshot as reported by the brokerage.
// UnrealizedPnL is the per-unit profit or loss against the entry price.
type BrokerPosition struct {
	Symbol        string
	Quantity      float64
	CurrentPrice  float64
	MarketValue   float64
	UnrealizedPnL float64
	AssetClass    AssetClass
}

// NormalizeSymbol flattens a symbol to the form used for position matching:
// lowercase with the crypto pair separator removed, so "BTC/USD" matches the
// brokerage's "BTCUSD".
func NormalizeSymbol(symbol string) string {
	return strings.ToLower(strings.ReplaceAll(symbol, "/", ""))
}

// SameSymbol reports whether two symbols refer to the same asset regardless
// of separator or case.
func SameSymbol(a, b string) bool {
	return NormalizeSymbol(a) == NormalizeSymbol(b)
}
