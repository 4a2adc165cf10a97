// Package cache holds short-lived backend reads keyed by reviewer and certification so that a
// mutation can invalidate exactly the views it affects.
package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/keyforge/accessreview/internal/metrics"
)

const keySep = ":"

type Store struct {
	c *gocache.Cache
}

// New returns a store whose entries expire after ttl. A non-positive ttl disables caching.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		return &Store{}
	}
	return &Store{c: gocache.New(ttl, 2*ttl)}
}

// Key joins parts into a cache key. Prefixes built with Key match keys built from more parts.
func Key(parts ...string) string {
	return strings.Join(parts, keySep)
}

func (s *Store) enabled() bool {
	return s != nil && s.c != nil
}

func (s *Store) Get(key string) (any, bool) {
	if !s.enabled() {
		return nil, false
	}
	v, ok := s.c.Get(key)
	if ok {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	}
	return v, ok
}

func (s *Store) Set(key string, v any) {
	if !s.enabled() {
		return
	}
	s.c.Set(key, v, gocache.DefaultExpiration)
}

// Invalidate drops key and every key nested under it, returning how many entries were removed.
func (s *Store) Invalidate(key string) int {
	if !s.enabled() {
		return 0
	}
	removed := 0
	for k := range s.c.Items() {
		if k == key || strings.HasPrefix(k, key+keySep) {
			s.c.Delete(k)
			removed++
		}
	}
	if removed > 0 {
		metrics.CacheInvalidationsTotal.Add(float64(removed))
	}
	return removed
}

// Fetch returns the cached value for key or loads, stores and returns it. Load errors are not cached.
func Fetch[T any](ctx context.Context, s *Store, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := s.Get(key); ok {
		if tv, ok := v.(T); ok {
			return tv, nil
		}
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	s.Set(key, v)
	return v, nil
}
