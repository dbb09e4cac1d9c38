package risk

import (
	"sync"
	"time"
)

// CooldownTracker blocks re-entry into a ticker for a window after it was sold.
// Entries are kept indefinitely; IsActive is relative to the caller's clock.
type CooldownTracker struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{entries: make(map[string]time.Time)}
}

// RecordSell upserts the last-sell time for ticker. An older timestamp never replaces a newer one.
func (c *CooldownTracker) RecordSell(ticker string, ts time.Time) {
	key := NormalizeTicker(ticker)
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.entries[key]; ok && prev.After(ts) {
		return
	}
	c.entries[key] = ts
}

// IsActive reports whether ticker was sold less than window ago.
func (c *CooldownTracker) IsActive(ticker string, now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	c.mu.RLock()
	ts, ok := c.entries[NormalizeTicker(ticker)]
	c.mu.RUnlock()
	return ok && now.Sub(ts) < window
}

// LastSell returns the recorded sell time for ticker.
func (c *CooldownTracker) LastSell(ticker string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, ok := c.entries[NormalizeTicker(ticker)]
	return ts, ok
}

// ActiveCount returns how many tickers are currently cooling down.
func (c *CooldownTracker) ActiveCount(now time.Time, window time.Duration) int {
	if window <= 0 {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, ts := range c.entries {
		if now.Sub(ts) < window {
			n++
		}
	}
	return n
}

// Entries returns a copy of every entry for persistence.
func (c *CooldownTracker) Entries() map[string]time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]time.Time, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Restore merges persisted entries, keeping the newest timestamp per ticker.
func (c *CooldownTracker) Restore(entries map[string]time.Time) {
	for ticker, ts := range entries {
		c.RecordSell(ticker, ts)
	}
}
