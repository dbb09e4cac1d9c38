package risk

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCycleLimiter(t *testing.T) {
	l := NewCycleLimiter(3)
	assert.True(t, l.TryAcquire())
	assert.True(t, l.TryAcquire())
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	assert.Equal(t, 3, l.Count())

	l.Reset()
	assert.Equal(t, 0, l.Count())
	assert.True(t, l.TryAcquire())
}

func TestCycleLimiterZeroCap(t *testing.T) {
	assert.False(t, NewCycleLimiter(0).TryAcquire())
	assert.Equal(t, 0, NewCycleLimiter(-2).Cap())
}

func TestCycleLimiterConcurrentAcquire(t *testing.T) {
	l := NewCycleLimiter(3)
	var granted int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire() {
				atomic.AddInt64(&granted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(3), granted)
	assert.Equal(t, 3, l.Count())
}
