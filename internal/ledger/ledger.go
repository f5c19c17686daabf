// Package ledger holds the in-memory source of truth for which symbols the
// bot is currently tracking and at what entry price.
package ledger

import (
	"sync"

	"github.com/quantara/tradewatch/internal/domain"
)

// Ledger is a thread-safe mapping from normalized symbol to tracked entry
// price. All operations are total: removing a missing symbol is a defined
// no-op, so callers never need to guard or suppress errors around
// bookkeeping.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]float64
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[string]float64)}
}

// Contains reports whether the symbol is currently tracked.
func (l *Ledger) Contains(symbol string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[domain.NormalizeSymbol(symbol)]
	return ok
}

// Entry returns the tracked entry price for a symbol, and whether the symbol
// is tracked at all.
func (l *Ledger) Entry(symbol string) (float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	price, ok := l.entries[domain.NormalizeSymbol(symbol)]
	return price, ok
}

// Set records or refreshes the entry price for a symbol.
func (l *Ledger) Set(symbol string, entryPrice float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[domain.NormalizeSymbol(symbol)] = entryPrice
}

// Remove drops a symbol from the ledger. Removing an absent symbol is a
// no-op: the monitoring loop removes opportunistically and must tolerate
// double-removal.
func (l *Ledger) Remove(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, domain.NormalizeSymbol(symbol))
}

// Len returns the number of tracked symbols.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Snapshot returns a copy of the tracked symbol -> entry price map, keyed by
// normalized symbol.
func (l *Ledger) Snapshot() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]float64, len(l.entries))
	for sym, price := range l.entries {
		out[sym] = price
	}
	return out
}
