// Package ratelimit admits at most a fixed number of requests per wall-clock
// minute, counted in a shared store.
//
// The check is a read followed by a separate write. Two requests that read
// the same count both pass and both write count+1, so concurrent bursts can
// exceed the limit. Windows are fixed minutes, so a burst straddling a
// minute boundary can reach twice the limit.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/remitlab/sheetrelay/internal/id"
	"github.com/remitlab/sheetrelay/internal/logging"
)

const (
	DefaultLimit  = 30
	DefaultWindow = 60 * time.Second
)

// Counter stores per-bucket request counts with expiry.
type Counter interface {
	// Get returns the live count for key; ok is false if absent or expired.
	Get(ctx context.Context, key string) (n int, ok bool, err error)
	// Put stores n under key, expiring ttl from now.
	Put(ctx context.Context, key string, n int, ttl time.Duration) error
}

// LimitError is returned when the current bucket is full.
type LimitError struct {
	Key   string
	Count int
	Limit int
}

func (e *LimitError) Error() string {
	return "Too many requests. Please try again later."
}

// Limiter applies the per-minute limit.
type Limiter struct {
	counter Counter
	limit   int
	window  time.Duration
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLimit sets the number of admitted requests per bucket.
func WithLimit(n int) Option {
	return func(l *Limiter) { l.limit = n }
}

// WithWindow sets the counter expiry.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) { l.window = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter over counter.
func New(counter Counter, opts ...Option) *Limiter {
	l := &Limiter{
		counter: counter,
		limit:   DefaultLimit,
		window:  DefaultWindow,
		now:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Allow admits one request or returns a *LimitError. A rejected request does
// not increment the counter.
func (l *Limiter) Allow(ctx context.Context) error {
	key := id.FormatBucketKey(l.now())

	n, ok, err := l.counter.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("reading rate counter: %w", err)
	}
	if !ok {
		n = 0
	}
	if n >= l.limit {
		logging.FromContext(ctx).Warn("rate limit exceeded", "bucket", key, "count", n, "limit", l.limit)
		return &LimitError{Key: key, Count: n, Limit: l.limit}
	}

	if err := l.counter.Put(ctx, key, n+1, l.window); err != nil {
		return fmt.Errorf("writing rate counter: %w", err)
	}
	return nil
}
