package trader

import (
	"context"
	"sync"

	"github.com/quantara/tradewatch/internal/domain"
)

// keyedMutex serializes work per symbol. Mutexes are created on demand and
// never removed; the key set is bounded in practice by the portfolio
// exposure limit.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// registry tracks the cancellation handle of the live monitoring task per
// symbol, so the coordinator can stop a watcher explicitly when it initiates
// a close instead of waiting for the watcher's next poll to notice.
type registry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func newRegistry() *registry {
	return &registry{cancels: make(map[string]context.CancelFunc)}
}

// add records the cancel handle for a symbol's monitoring task. If a handle
// is already registered it is cancelled first; at most one live task exists
// per symbol.
func (r *registry) add(symbol string, cancel context.CancelFunc) {
	key := domain.NormalizeSymbol(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.cancels[key]; ok {
		prev()
	}
	r.cancels[key] = cancel
}

// cancel stops the monitoring task for a symbol, if one is registered, and
// removes the handle. It reports whether a task was cancelled.
func (r *registry) cancel(symbol string) bool {
	key := domain.NormalizeSymbol(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	cancelFn, ok := r.cancels[key]
	if ok {
		cancelFn()
		delete(r.cancels, key)
	}
	return ok
}

// remove drops the handle for a symbol without cancelling. Monitoring tasks
// call this on self-termination; removing an absent handle is a no-op.
func (r *registry) remove(symbol string) {
	key := domain.NormalizeSymbol(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, key)
}

// active returns the number of registered monitoring tasks.
func (r *registry) active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}
