package guard

import (
	"sync"
	"time"
)

// windowCounter tracks attempts inside one rolling window.
type windowCounter struct {
	count   int
	resetAt time.Time
}

// slidingLimiter is a fixed-budget limiter over a rolling window. Entries
// self-expire: stale buckets are replaced lazily on access and removed by
// Sweep.
type slidingLimiter struct {
	mu      sync.Mutex
	budget  int
	window  time.Duration
	buckets map[string]*windowCounter
	now     func() time.Time
}

func newSlidingLimiter(budget int, window time.Duration) *slidingLimiter {
	return &slidingLimiter{
		budget:  budget,
		window:  window,
		buckets: make(map[string]*windowCounter),
		now:     time.Now,
	}
}

// allow consumes one unit from key's bucket. When the budget is exhausted it
// returns false with the time remaining until the bucket resets.
func (l *slidingLimiter) allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		l.buckets[key] = &windowCounter{count: 1, resetAt: now.Add(l.window)}
		return true, 0
	}
	if b.count >= l.budget {
		return false, b.resetAt.Sub(now)
	}
	b.count++
	return true, 0
}

// refund returns one unit to key's bucket when a later check rejected the
// attempt. A missing or already-expired bucket is a no-op.
func (l *slidingLimiter) refund(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok || !l.now().Before(b.resetAt) {
		return
	}
	if b.count > 0 {
		b.count--
	}
}

// sweep drops expired buckets so the map stays bounded even for keys that
// are never touched again.
func (l *slidingLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, key)
		}
	}
}

func (l *slidingLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
