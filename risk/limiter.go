package risk

import "sync"

// CycleLimiter caps the number of executable decisions per cycle.
type CycleLimiter struct {
	mu    sync.Mutex
	cap   int
	count int
}

func NewCycleLimiter(cap int) *CycleLimiter {
	if cap < 0 {
		cap = 0
	}
	return &CycleLimiter{cap: cap}
}

// Reset zeroes the counter. Called once at cycle start.
func (l *CycleLimiter) Reset() {
	l.mu.Lock()
	l.count = 0
	l.mu.Unlock()
}

// TryAcquire takes one slot, returning false once the cap is reached.
func (l *CycleLimiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count >= l.cap {
		return false
	}
	l.count++
	return true
}

func (l *CycleLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *CycleLimiter) Cap() int { return l.cap }
