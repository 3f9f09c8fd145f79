package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	n       int
	expires time.Time
}

// MemoryCounter is a process-local Counter. Expired entries are dropped
// lazily on Put; there is no background goroutine.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryCounter creates an empty MemoryCounter. A nil now means time.Now.
func NewMemoryCounter(now func() time.Time) *MemoryCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounter{entries: make(map[string]entry), now: now}
}

// Get implements Counter.
func (c *MemoryCounter) Get(_ context.Context, key string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		return 0, false, nil
	}
	return e.n, true, nil
}

// Put implements Counter.
func (c *MemoryCounter) Put(_ context.Context, key string, n int, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweep(now)
	c.entries[key] = entry{n: n, expires: now.Add(ttl)}
	return nil
}

// size returns the number of stored entries, expired ones included.
func (c *MemoryCounter) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCounter) sweep(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
}
