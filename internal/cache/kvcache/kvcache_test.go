package kvcache

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/require"

	"github.com/basakil/catalogd/internal/cache"
)

// fakeConsulKV is a minimal in-memory stand-in for Consul's KV HTTP API,
// just enough surface (GET/PUT/DELETE/recurse-list) for *api.KV to drive.
type fakeConsulKV struct {
	mu    sync.Mutex
	store map[string][]byte
}

func newFakeConsulKV() *fakeConsulKV {
	return &fakeConsulKV{store: map[string][]byte{}}
}

func (f *fakeConsulKV) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/v1/kv/")
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			f.store[key] = body
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("true"))

		case http.MethodGet:
			if r.URL.Query().Has("recurse") {
				var pairs []*api.KVPair
				for k, v := range f.store {
					if strings.HasPrefix(k, key) {
						pairs = append(pairs, &api.KVPair{Key: k, Value: v})
					}
				}
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(pairs)
				return
			}
			v, ok := f.store[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode([]*api.KVPair{{Key: key, Value: v}})

		case http.MethodDelete:
			delete(f.store, key)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("true"))
		}
	}
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	fake := newFakeConsulKV()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	cfg := api.DefaultConfig()
	cfg.Address = srv.URL
	client, err := api.NewClient(cfg)
	require.NoError(t, err)

	return New(client, "catalogd/cache/", nil)
}

func TestCache_GetOrFetch_MissProducesAndStores(t *testing.T) {
	c := newTestCache(t)
	var calls int
	produce := func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte(`{"v":1}`), nil
	}

	fp := cache.NewFingerprint("catalog/movie/top", nil, "en")
	payload, meta, err := c.GetOrFetch(context.Background(), fp, "catalog/movie/top", time.Minute, produce)
	require.NoError(t, err)
	require.Equal(t, []byte(`{"v":1}`), payload)
	require.False(t, meta.Hit)
	require.Equal(t, 1, calls)

	payload2, meta2, err := c.GetOrFetch(context.Background(), fp, "catalog/movie/top", time.Minute, produce)
	require.NoError(t, err)
	require.Equal(t, []byte(`{"v":1}`), payload2)
	require.True(t, meta2.Hit)
	require.Equal(t, 1, calls, "a fresh hit must not re-invoke the producer")
}

func TestCache_Invalidate_RemovesOnlyMatchingEndpoint(t *testing.T) {
	c := newTestCache(t)
	produce := func(ctx context.Context) ([]byte, error) { return []byte(`{}`), nil }

	fpA := cache.NewFingerprint("catalog/movie/top", nil, "en")
	fpB := cache.NewFingerprint("catalog/series/top", nil, "en")
	_, _, err := c.GetOrFetch(context.Background(), fpA, "catalog/movie/top", time.Minute, produce)
	require.NoError(t, err)
	_, _, err = c.GetOrFetch(context.Background(), fpB, "catalog/series/top", time.Minute, produce)
	require.NoError(t, err)

	c.Invalidate("catalog/movie/top")

	stats := c.Stats()
	require.Equal(t, 1, stats.Size)
}

func TestCache_Stats_ReportsSizeAfterWrites(t *testing.T) {
	c := newTestCache(t)
	produce := func(ctx context.Context) ([]byte, error) { return []byte(`{}`), nil }

	fp := cache.NewFingerprint("catalog/movie/top", nil, "en")
	_, _, err := c.GetOrFetch(context.Background(), fp, "catalog/movie/top", time.Minute, produce)
	require.NoError(t, err)

	require.Equal(t, 1, c.Stats().Size)
}
