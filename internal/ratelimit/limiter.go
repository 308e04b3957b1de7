// Package ratelimit implements a fixed-window request counter backed by a
// key-value store with expiry.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Store increments counters that expire at the end of their window.
type Store interface {
	// Increment adds one to key and returns the new count and the time left
	// in the key's window. The window starts on the first increment.
	Increment(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// Result describes the outcome of a Check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Duration
}

// ResetSeconds returns the remaining window in whole seconds, rounded up.
func (r Result) ResetSeconds() int {
	if r.Reset <= 0 {
		return 0
	}
	return int(math.Ceil(r.Reset.Seconds()))
}

// Limiter allows at most max requests per key within each window.
type Limiter struct {
	store  Store
	max    int
	window time.Duration
}

// New creates a Limiter. The window is rounded up to whole seconds because
// expiry is set in seconds.
func New(store Store, max int, window time.Duration) *Limiter {
	return &Limiter{
		store:  store,
		max:    max,
		window: roundUpSeconds(window),
	}
}

// Limit returns the maximum number of requests per window.
func (l *Limiter) Limit() int {
	return l.max
}

// Window returns the effective window.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Check counts a request for key. Callers decide how to treat errors; the
// HTTP middleware fails open.
func (l *Limiter) Check(ctx context.Context, key string) (Result, error) {
	count, ttl, err := l.store.Increment(ctx, key, l.window)
	if err != nil {
		return Result{Allowed: true, Limit: l.max, Remaining: l.max}, fmt.Errorf("increment %s: %w", key, err)
	}

	remaining := l.max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(l.max),
		Limit:     l.max,
		Remaining: remaining,
		Reset:     ttl,
	}, nil
}

func roundUpSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	secs := math.Ceil(d.Seconds())
	return time.Duration(secs) * time.Second
}
