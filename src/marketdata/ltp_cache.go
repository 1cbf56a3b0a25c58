package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LTPCache holds the most recent tick per symbol. The ticker stream
// writes into it, the paper broker and executor loops read from it.
type LTPCache struct {
	mu    sync.RWMutex
	ticks map[string]tick

	// maxAge bounds how stale a cached price may be before reads fail.
	// Zero means no bound.
	maxAge time.Duration
	now    func() time.Time
}

type tick struct {
	price float64
	at    time.Time
}

func NewLTPCache(maxAge time.Duration) *LTPCache {
	return &LTPCache{
		ticks:  make(map[string]tick),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Set records the latest traded price for a symbol.
func (c *LTPCache) Set(symbol string, price float64, at time.Time) {
	if at.IsZero() {
		at = c.now()
	}

	c.mu.Lock()
	c.ticks[symbol] = tick{price: price, at: at}
	c.mu.Unlock()
}

// LastPrice returns the cached price for a symbol. Satisfies the paper
// broker's price source.
func (c *LTPCache) LastPrice(_ context.Context, symbol string) (float64, error) {
	c.mu.RLock()
	t, ok := c.ticks[symbol]
	c.mu.RUnlock()

	if !ok {
		return 0, fmt.Errorf("no tick cached for %s", symbol)
	}
	if c.maxAge > 0 && c.now().Sub(t.at) > c.maxAge {
		return 0, fmt.Errorf("cached tick for %s is stale", symbol)
	}

	return t.price, nil
}
