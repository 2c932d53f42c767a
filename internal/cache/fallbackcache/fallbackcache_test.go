package fallbackcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/basakil/catalogd/internal/cache"
)

type stubCache struct {
	err        error
	payload    []byte
	calls      int
	invalidated string
}

func (s *stubCache) GetOrFetch(ctx context.Context, fp cache.Fingerprint, endpoint string, ttl time.Duration, produce cache.Producer) ([]byte, cache.ResultMeta, error) {
	s.calls++
	if s.err != nil {
		return nil, cache.ResultMeta{}, s.err
	}
	return s.payload, cache.ResultMeta{Hit: true}, nil
}

func (s *stubCache) Invalidate(prefix string) { s.invalidated = prefix }
func (s *stubCache) Stats() cache.Stats       { return cache.Stats{Size: s.calls} }
func (s *stubCache) Close() error             { return nil }

func TestCache_FallsThroughOnBackendError(t *testing.T) {
	shared := &stubCache{err: &cache.BackendError{Err: errors.New("connection refused")}}
	fallback := &stubCache{payload: []byte(`{"ok":true}`)}

	var degradedCalled bool
	c := New(shared, fallback, nil, func() { degradedCalled = true })

	payload, _, err := c.GetOrFetch(context.Background(), cache.Fingerprint("fp"), "catalog/x", time.Minute, nil)
	require.NoError(t, err)
	require.Equal(t, []byte(`{"ok":true}`), payload)
	require.True(t, degradedCalled)
	require.True(t, c.Stats().Degraded)
}

func TestCache_NonBackendErrorPropagatesWithoutDegrading(t *testing.T) {
	shared := &stubCache{err: errors.New("producer failed")}
	fallback := &stubCache{}

	c := New(shared, fallback, nil, nil)
	_, _, err := c.GetOrFetch(context.Background(), cache.Fingerprint("fp"), "catalog/x", time.Minute, nil)

	require.Error(t, err)
	require.False(t, c.isDegraded())
	require.Equal(t, 0, fallback.calls)
}

func TestCache_StaysDegradedAfterFirstFallthrough(t *testing.T) {
	shared := &stubCache{err: &cache.BackendError{Err: errors.New("down")}}
	fallback := &stubCache{payload: []byte("a")}

	c := New(shared, fallback, nil, nil)
	_, _, _ = c.GetOrFetch(context.Background(), cache.Fingerprint("fp"), "e", time.Minute, nil)
	_, _, _ = c.GetOrFetch(context.Background(), cache.Fingerprint("fp2"), "e", time.Minute, nil)

	require.Equal(t, 1, shared.calls, "a degraded cache must stop calling the shared backend")
	require.Equal(t, 2, fallback.calls)
}

func TestCache_InvalidateRoutesToActiveBackend(t *testing.T) {
	shared := &stubCache{}
	fallback := &stubCache{}
	c := New(shared, fallback, nil, nil)

	c.Invalidate("catalog/x")
	require.Equal(t, "catalog/x", shared.invalidated)
	require.Empty(t, fallback.invalidated)
}
