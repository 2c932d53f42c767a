// Package metrics wires up Observability (spec §4.7) the same way the
// teacher's agent/cache package does: global armon/go-metrics counters
// and gauges, here fed into a Prometheus sink registered with the
// default Prometheus registry. The per-endpoint latency map is capped
// via hashicorp/golang-lru with oldest-eviction; the counters keyed by
// request path, endpoint or error kind go straight to go-metrics and
// are not capped.
package metrics

import (
	"time"

	gometrics "github.com/armon/go-metrics"
	gometricsprom "github.com/armon/go-metrics/prometheus"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultCardinalityCap = 500

// Sink wraps process-wide metrics state: a go-metrics global sink for
// counters/gauges, plus bounded per-X tracking structures the go-metrics
// label model doesn't cover well (we want hard eviction, not just
// "many time series").
type Sink struct {
	latencies *lru.Cache // endpoint -> *latencyHistogram
}

// New installs a Prometheus-backed go-metrics global sink and returns
// the Sink handle used for per-endpoint latency tracking.
func New(serviceName string) (*Sink, error) {
	promSink, err := gometricsprom.NewPrometheusSink()
	if err != nil {
		return nil, err
	}
	cfg := gometrics.DefaultConfig(serviceName)
	cfg.EnableHostname = false
	if _, err := gometrics.NewGlobal(cfg, promSink); err != nil {
		return nil, err
	}

	cache, err := lru.New(defaultCardinalityCap)
	if err != nil {
		return nil, err
	}
	return &Sink{latencies: cache}, nil
}

// IncrRequest counts one served request for path.
func IncrRequest(path string) {
	gometrics.IncrCounter([]string{"catalogd", "requests", path}, 1)
}

// IncrCacheHit / IncrCacheMiss / IncrCoalescedWait count Response Cache
// observability per spec §4.7.
func IncrCacheHit(backend string) {
	gometrics.IncrCounter([]string{"catalogd", "cache", backend, "hit"}, 1)
}

func IncrCacheMiss(backend string) {
	gometrics.IncrCounter([]string{"catalogd", "cache", backend, "miss"}, 1)
}

func IncrCoalescedWait(backend string) {
	gometrics.IncrCounter([]string{"catalogd", "cache", backend, "coalesced_wait"}, 1)
}

// IncrUpstreamCall and IncrClassifiedError track the Upstream Client.
func IncrUpstreamCall(endpoint string) {
	gometrics.IncrCounter([]string{"catalogd", "upstream", endpoint, "call"}, 1)
}

func IncrClassifiedError(kind string) {
	gometrics.IncrCounter([]string{"catalogd", "upstream", "error", kind}, 1)
}

func IncrTokenBucketWait() {
	gometrics.IncrCounter([]string{"catalogd", "ratelimit", "wait"}, 1)
}

func IncrIngestSuccess() {
	gometrics.IncrCounter([]string{"catalogd", "ratings", "ingest_success"}, 1)
}

func IncrIngestFailure() {
	gometrics.IncrCounter([]string{"catalogd", "ratings", "ingest_failure"}, 1)
}

// SetCacheSize / SetRatingsSize / SetInFlightUpstream report gauges.
func SetCacheSize(backend string, n int) {
	gometrics.SetGauge([]string{"catalogd", "cache", backend, "size"}, float32(n))
}

func SetRatingsSize(n int) {
	gometrics.SetGauge([]string{"catalogd", "ratings", "live_size"}, float32(n))
}

func SetInFlightUpstream(n int) {
	gometrics.SetGauge([]string{"catalogd", "upstream", "in_flight"}, float32(n))
}

// latencyHistogram is a minimal p50/p95 estimator over a small rolling
// sample, avoiding a full histogram sketch dependency for this bounded
// per-endpoint tracking.
type latencyHistogram struct {
	samples []time.Duration
	next    int
}

const latencySampleCap = 256

func newLatencyHistogram() *latencyHistogram {
	return &latencyHistogram{samples: make([]time.Duration, 0, latencySampleCap)}
}

func (h *latencyHistogram) observe(d time.Duration) {
	if len(h.samples) < latencySampleCap {
		h.samples = append(h.samples, d)
		return
	}
	h.samples[h.next%latencySampleCap] = d
	h.next++
}

func (h *latencyHistogram) percentile(p float64) time.Duration {
	if len(h.samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), h.samples...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

// ObserveLatency records one endpoint's request latency. Per-endpoint
// histograms are capped at defaultCardinalityCap distinct endpoints
// (spec §4.7 "bounded cardinality ... oldest-eviction").
func (s *Sink) ObserveLatency(endpoint string, d time.Duration) {
	var h *latencyHistogram
	if v, ok := s.latencies.Get(endpoint); ok {
		h = v.(*latencyHistogram)
	} else {
		h = newLatencyHistogram()
		s.latencies.Add(endpoint, h)
	}
	h.observe(d)
	gometrics.AddSample([]string{"catalogd", "latency", endpoint}, float32(d.Milliseconds()))
}

// Percentiles returns the p50/p95 for endpoint, or zero values if no
// samples have been recorded yet.
func (s *Sink) Percentiles(endpoint string) (p50, p95 time.Duration) {
	v, ok := s.latencies.Get(endpoint)
	if !ok {
		return 0, 0
	}
	h := v.(*latencyHistogram)
	return h.percentile(0.50), h.percentile(0.95)
}

// Registerer exposes the default Prometheus registry the go-metrics
// prometheus sink publishes into. The handlers do not mount a
// Prometheus scrape endpoint on it.
func Registerer() prometheus.Registerer { return prometheus.DefaultRegisterer }
