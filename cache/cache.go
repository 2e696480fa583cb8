package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Clock returns the current time. Tests substitute a controllable clock to
// drive expiry without sleeping.
type Clock func() time.Time

// entry holds a cached value with its expiry deadline.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Store is a bounded, time-expiring key/value store. Capacity overflow evicts
// the least recently used entry; reads past an entry's TTL are misses.
// It is safe for concurrent use: single-key Get and Set are atomic.
type Store[V any] struct {
	name string
	lru  *lru.Cache[string, entry[V]]
	ttl  time.Duration
	now  Clock
}

// Option customises a Store.
type Option func(*options)

type options struct {
	clock Clock
	name  string
}

// WithClock overrides the time source used for expiry.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithName labels the store in log output.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// New creates a Store holding at most maxEntries values for ttl each.
func New[V any](maxEntries int, ttl time.Duration, opts ...Option) (*Store[V], error) {
	o := options{clock: time.Now, name: "cache"}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%s: ttl must be positive, got %v", o.name, ttl)
	}
	c, err := lru.New[string, entry[V]](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.name, err)
	}
	return &Store[V]{
		name: o.name,
		lru:  c,
		ttl:  ttl,
		now:  o.clock,
	}, nil
}

// Get returns the value stored under key if it has not expired.
func (s *Store[V]) Get(key string) (V, bool) {
	e, ok := s.lru.Get(key)
	if !ok || !s.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, replacing any previous value. The last writer
// for a key wins.
func (s *Store[V]) Set(key string, value V) {
	s.lru.Add(key, entry[V]{
		value:     value,
		expiresAt: s.now().Add(s.ttl),
	})
}

// Len returns the number of entries currently held, expired or not.
func (s *Store[V]) Len() int {
	return s.lru.Len()
}

// TTL returns the lifetime applied to new entries.
func (s *Store[V]) TTL() time.Duration {
	return s.ttl
}

// PurgeExpired removes every expired entry and returns how many were dropped.
func (s *Store[V]) PurgeExpired() int {
	now := s.now()
	purged := 0
	for _, k := range s.lru.Keys() {
		if e, ok := s.lru.Peek(k); ok && !now.Before(e.expiresAt) {
			s.lru.Remove(k)
			purged++
		}
	}
	return purged
}

// Janitor purges expired entries every interval until ctx is cancelled.
func (s *Store[V]) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.PurgeExpired(); n > 0 {
				slog.Debug("cache: purged expired entries", "cache", s.name, "count", n)
			}
		}
	}
}
