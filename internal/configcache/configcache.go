// Package configcache implements the Config Cache (spec §4.3): a small,
// short-TTL LRU in front of the external UserConfigStore collaborator, so
// a burst of requests for the same session doesn't stampede the store.
package configcache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/basakil/catalogd/internal/collab"
)

const (
	defaultCapacity = 1000
	defaultTTL      = 5 * time.Minute
)

type entry struct {
	config   collab.UserConfig
	expires  time.Time
}

// Cache is the Config Cache.
type Cache struct {
	store collab.UserConfigStore
	ttl   time.Duration
	group singleflight.Group

	mu  sync.Mutex
	lru *lru.Cache

	hits, misses uint64
}

// Options configures capacity and TTL; zero values fall back to spec
// defaults (1000 entries, 5 minutes).
type Options struct {
	Capacity int
	TTL      time.Duration
}

func New(store collab.UserConfigStore, opts Options) (*Cache, error) {
	if opts.Capacity <= 0 {
		opts.Capacity = defaultCapacity
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	l, err := lru.New(opts.Capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{store: store, ttl: opts.TTL, lru: l}, nil
}

// Get returns the session's UserConfig, fetching from the store on a
// miss or expiry. Concurrent misses for the same session coalesce into a
// single store call.
func (c *Cache) Get(ctx context.Context, sessionID string) (collab.UserConfig, error) {
	now := time.Now()

	c.mu.Lock()
	if v, ok := c.lru.Get(sessionID); ok {
		e := v.(entry)
		if now.Before(e.expires) {
			c.hits++
			c.mu.Unlock()
			return e.config, nil
		}
		c.lru.Remove(sessionID)
	}
	c.misses++
	c.mu.Unlock()

	v, err, _ := c.group.Do(sessionID, func() (interface{}, error) {
		cfg, err := c.store.UserConfig(ctx, sessionID)
		if err != nil {
			return collab.UserConfig{}, err
		}
		c.mu.Lock()
		c.lru.Add(sessionID, entry{config: cfg, expires: time.Now().Add(c.ttl)})
		c.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		return collab.UserConfig{}, err
	}
	return v.(collab.UserConfig), nil
}

// Invalidate drops a single session's cached config, e.g. after the
// session's preferences are updated out of band.
func (c *Cache) Invalidate(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(sessionID)
}

func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
