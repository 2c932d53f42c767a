package metrics

import (
	"testing"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/stretchr/testify/require"
)

func newTestSink(t *testing.T, cap int) *Sink {
	t.Helper()
	c, err := lru.New(cap)
	require.NoError(t, err)
	return &Sink{latencies: c}
}

func TestSink_ObserveLatency_TracksPercentiles(t *testing.T) {
	s := newTestSink(t, 10)

	for i := 1; i <= 100; i++ {
		s.ObserveLatency("catalog", time.Duration(i)*time.Millisecond)
	}

	p50, p95 := s.Percentiles("catalog")
	require.Equal(t, 50*time.Millisecond, p50)
	require.Equal(t, 95*time.Millisecond, p95)
}

func TestSink_Percentiles_ZeroForUnknownEndpoint(t *testing.T) {
	s := newTestSink(t, 10)
	p50, p95 := s.Percentiles("nope")
	require.Zero(t, p50)
	require.Zero(t, p95)
}

func TestSink_ObserveLatency_BoundedCardinalityEvictsOldest(t *testing.T) {
	s := newTestSink(t, 2)

	s.ObserveLatency("a", time.Millisecond)
	s.ObserveLatency("b", time.Millisecond)
	s.ObserveLatency("c", time.Millisecond)

	require.Equal(t, 2, s.latencies.Len())
	require.False(t, s.latencies.Contains("a"), "oldest endpoint should have been evicted")
}

func TestLatencyHistogram_RingBufferWrapsAtCap(t *testing.T) {
	h := newLatencyHistogram()
	for i := 0; i < latencySampleCap+10; i++ {
		h.observe(time.Duration(i) * time.Millisecond)
	}
	require.Len(t, h.samples, latencySampleCap)
}
