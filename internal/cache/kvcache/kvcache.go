// Package kvcache implements the Response Cache's SHARED backend on top
// of a remote key-value store. The teacher's own hashicorp/consul/api KV
// client is repurposed here as the generic "remote key-value store"
// collaborator the spec describes — the payload envelope below carries
// its own fresh-until/stale-until pair because the KV store has no
// native TTL.
package kvcache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"

	"github.com/basakil/catalogd/internal/cache"
)

// envelope is what's actually stored at each KV key.
type envelope struct {
	Payload      []byte          `json:"payload,omitempty"`
	Digest       [32]byte        `json:"digest"`
	Source       cache.SourceKind `json:"source"`
	NegativeKind string          `json:"negative_kind,omitempty"`
	InsertedAt   time.Time       `json:"inserted_at"`
	FreshUntil   time.Time       `json:"fresh_until"`
	StaleUntil   time.Time       `json:"stale_until"`
	Endpoint     string          `json:"endpoint"`
}

// Cache is the shared ResponseCache backend.
type Cache struct {
	kv     *api.KV
	prefix string
	group  singleflight.Group
	logger hclog.Logger

	mu   sync.Mutex
	hits, misses uint64
}

// New builds a shared Cache over client's KV store, namespacing all keys
// under prefix (e.g. "catalogd/cache/").
func New(client *api.Client, prefix string, logger hclog.Logger) *Cache {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Cache{kv: client.KV(), prefix: prefix, logger: logger.Named("cache.kv")}
}

func (c *Cache) key(fp cache.Fingerprint) string {
	return c.prefix + string(fp)
}

func (c *Cache) GetOrFetch(ctx context.Context, fp cache.Fingerprint, endpoint string, ttl time.Duration, produce cache.Producer) ([]byte, cache.ResultMeta, error) {
	now := time.Now()

	env, ok, loadErr := c.load(fp)
	if loadErr != nil {
		return nil, cache.ResultMeta{}, &cache.BackendError{Err: loadErr}
	}
	if ok {
		if digestMatches(env) {
			if now.Before(env.FreshUntil) {
				c.mu.Lock()
				c.hits++
				c.mu.Unlock()
				return env.Payload, cache.ResultMeta{Hit: true, Negative: env.Source == cache.SourceNegative, NegativeKind: env.NegativeKind}, nil
			}
			if now.Before(env.StaleUntil) {
				c.mu.Lock()
				c.hits++
				c.mu.Unlock()
				go c.refresh(endpoint, fp, ttl, produce)
				return env.Payload, cache.ResultMeta{Hit: true, Stale: true, Negative: env.Source == cache.SourceNegative, NegativeKind: env.NegativeKind}, nil
			}
		}
		// corrupted or expired: fall through to a coalesced fetch below.
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()

	v, err, _ := c.group.Do(string(fp), func() (interface{}, error) {
		return c.fetchAndStore(endpoint, fp, ttl, produce)
	})
	if err != nil {
		return nil, cache.ResultMeta{}, err
	}
	env := v.(envelope)
	return env.Payload, cache.ResultMeta{Negative: env.Source == cache.SourceNegative, NegativeKind: env.NegativeKind}, nil
}

func (c *Cache) refresh(endpoint string, fp cache.Fingerprint, ttl time.Duration, produce cache.Producer) {
	c.group.Do(string(fp), func() (interface{}, error) {
		return c.fetchAndStore(endpoint, fp, ttl, produce)
	})
}

func (c *Cache) fetchAndStore(endpoint string, fp cache.Fingerprint, ttl time.Duration, produce cache.Producer) (envelope, error) {
	payload, err := produce(context.Background())
	now := time.Now()

	var env envelope
	if err == nil {
		env = envelope{
			Payload:    payload,
			Digest:     sum(payload),
			Source:     cache.SourceOK,
			InsertedAt: now,
			FreshUntil: now.Add(ttl),
			StaleUntil: now.Add(ttl * 5 / 2),
			Endpoint:   endpoint,
		}
	} else if neg, ok := asNegativeError(err); ok {
		negTTL := neg.TTL
		env = envelope{
			Source:       cache.SourceNegative,
			NegativeKind: neg.Kind,
			InsertedAt:   now,
			FreshUntil:   now.Add(negTTL),
			StaleUntil:   now.Add(negTTL),
			Endpoint:     endpoint,
		}
	} else {
		return envelope{}, err
	}

	if err := c.store(fp, env); err != nil {
		c.logger.Warn("failed to write cache entry to shared backend", "error", err)
		return envelope{}, &cache.BackendError{Err: err}
	}
	return env, nil
}

func (c *Cache) load(fp cache.Fingerprint) (envelope, bool, error) {
	pair, _, err := c.kv.Get(c.key(fp), nil)
	if err != nil {
		return envelope{}, false, err
	}
	if pair == nil {
		return envelope{}, false, nil
	}
	var env envelope
	if err := json.Unmarshal(pair.Value, &env); err != nil {
		return envelope{}, false, nil // corrupt payload: treated as a miss
	}
	return env, true, nil
}

func (c *Cache) store(fp cache.Fingerprint, env envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = c.kv.Put(&api.KVPair{Key: c.key(fp), Value: raw}, nil)
	return err
}

// Invalidate deletes every key under the given endpoint prefix. Since
// keys are fingerprint hashes rather than readable paths, this performs
// a scan-and-filter over the cache's own prefix tree rather than a KV
// prefix delete.
func (c *Cache) Invalidate(endpoint string) {
	pairs, _, err := c.kv.List(c.prefix, nil)
	if err != nil {
		c.logger.Warn("invalidate: failed to list shared cache keys", "error", err)
		return
	}
	for _, p := range pairs {
		var env envelope
		if json.Unmarshal(p.Value, &env) == nil && env.Endpoint == endpoint {
			_, _ = c.kv.Delete(p.Key, nil)
		}
	}
}

func (c *Cache) Stats() cache.Stats {
	pairs, _, err := c.kv.List(c.prefix, nil)
	size := 0
	if err == nil {
		size = len(pairs)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return cache.Stats{Hits: c.hits, Misses: c.misses, Size: size}
}

func (c *Cache) Close() error { return nil }

func digestMatches(env envelope) bool {
	return sum(env.Payload) == env.Digest
}
