package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepThreshold bounds how many keys accumulate before expired ones are dropped.
const sweepThreshold = 10000

type counter struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is an in-process Store. It is used when no Redis URL is
// configured and in tests, where the clock can be replaced.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*counter
	now     func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*counter),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if len(s.entries) >= sweepThreshold {
		s.sweep(now)
	}

	c, ok := s.entries[key]
	if !ok || !now.Before(c.expiresAt) {
		c = &counter{expiresAt: now.Add(window)}
		s.entries[key] = c
	}
	c.count++

	return c.count, c.expiresAt.Sub(now), nil
}

// Len returns the number of tracked keys, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) sweep(now time.Time) {
	for key, c := range s.entries {
		if !now.Before(c.expiresAt) {
			delete(s.entries, key)
		}
	}
}
