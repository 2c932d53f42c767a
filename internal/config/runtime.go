// Package config implements the Graceful Lifecycle's configuration
// surface (spec §6 "Configuration options"): an HCL-decoded, validated
// RuntimeConfig, following the shape of the teacher's own
// agent/config/runtime.go (field-per-option, hcl struct tags, a
// Sanitized() view for logging).
package config

import (
	"fmt"
	"time"
)

// CacheBackend selects the Response Cache's backing variant.
type CacheBackend string

const (
	CacheBackendShared    CacheBackend = "shared"
	CacheBackendInProcess CacheBackend = "inprocess"
)

// RuntimeConfig is the fully-resolved configuration the process runs
// with, after HCL decode, environment overrides, and defaulting.
type RuntimeConfig struct {
	// ListenAddr is the HTTP bind address, e.g. "0.0.0.0:8080".
	//
	// hcl: listen_addr = string
	ListenAddr string

	// UpstreamBaseURL is the content database's base URL.
	//
	// hcl: upstream_base_url = string
	UpstreamBaseURL string

	// CacheBackend selects shared (remote KV) or inprocess. Falls back to
	// inprocess automatically on backend failure at startup (spec §4.8).
	//
	// hcl: cache_backend = string
	CacheBackend CacheBackend

	// CacheMaxEntries is the in-process cache's hard cap.
	//
	// hcl: cache_max_entries = int
	CacheMaxEntries int

	// SharedCacheAddr is the remote KV store's address, used only when
	// CacheBackend is "shared".
	//
	// hcl: shared_cache_addr = string
	SharedCacheAddr string

	// RatingsMinVotes filters the ingest import (spec §6 default 100).
	//
	// hcl: ratings_min_votes = int
	RatingsMinVotes int64

	// RatingsRefreshInterval is how often the ingest scheduler re-runs
	// (spec §6 default 24h).
	//
	// hcl: ratings_refresh_interval = "duration"
	RatingsRefreshInterval time.Duration

	// RatingsDatasetURL is where the ingest process downloads the
	// compressed ratings dataset from.
	//
	// hcl: ratings_dataset_url = string
	RatingsDatasetURL string

	// RateLimitBudget is the Upstream Client's steady-state outbound
	// rate, in requests/second (spec §6 default ~35/s).
	//
	// hcl: rate_limit_budget = float
	RateLimitBudget float64

	// RateLimitBurst is the TokenBucket's burst capacity.
	//
	// hcl: rate_limit_burst = int
	RateLimitBurst int

	// ResponseBodyLimit caps accepted request bodies (spec §6 default
	// 100 KiB).
	//
	// hcl: response_body_limit = int
	ResponseBodyLimit int64

	// PerIPRateLimit caps inbound requests per client IP per second.
	//
	// hcl: per_ip_rate_limit = float
	PerIPRateLimit float64

	// EncryptionKey is the 32-byte credential-encryption key, validated
	// at startup (spec §6; CRITICAL dependency per §4.8).
	//
	// hcl: encryption_key = string
	EncryptionKey string

	// SessionSecret is the ≥32-character session-signing secret,
	// validated at startup (spec §6).
	//
	// hcl: session_secret = string
	SessionSecret string

	// Environment toggles stack-trace redaction in logs: "production"
	// redacts, anything else includes them (spec §7).
	//
	// hcl: environment = string
	Environment string

	// UpstreamTimeout bounds every outbound upstream call (spec §4.1,
	// §5).
	//
	// hcl: upstream_timeout = "duration"
	UpstreamTimeout time.Duration

	// ShutdownDrainTimeout bounds how long graceful shutdown waits for
	// in-flight requests to finish (spec §4.8).
	//
	// hcl: shutdown_drain_timeout = "duration"
	ShutdownDrainTimeout time.Duration
}

// Default returns a RuntimeConfig populated with spec §6's documented
// defaults, meant to be overridden by HCL decode and environment
// variables in Load.
func Default() RuntimeConfig {
	return RuntimeConfig{
		ListenAddr:             "0.0.0.0:8080",
		CacheBackend:           CacheBackendInProcess,
		CacheMaxEntries:        50000,
		RatingsMinVotes:        100,
		RatingsRefreshInterval: 24 * time.Hour,
		RateLimitBudget:        35,
		RateLimitBurst:         10,
		ResponseBodyLimit:      100 * 1024,
		PerIPRateLimit:         20,
		Environment:            "production",
		UpstreamTimeout:        10 * time.Second,
		ShutdownDrainTimeout:   30 * time.Second,
	}
}

// Validate checks structural configuration fields. The encryption key
// and session secret are deliberately NOT checked here: their
// acceptable forms (raw or base64-encoded) are the CRITICAL dependency
// check command/agent's keyring validators own (spec §4.8), and
// duplicating a stricter rule here would reject a base64-encoded key
// before it ever reached that check.
func (c *RuntimeConfig) Validate() error {
	if c.CacheBackend != CacheBackendShared && c.CacheBackend != CacheBackendInProcess {
		return fmt.Errorf("cache_backend must be %q or %q, got %q", CacheBackendShared, CacheBackendInProcess, c.CacheBackend)
	}
	if c.UpstreamBaseURL == "" {
		return fmt.Errorf("upstream_base_url is required")
	}
	return nil
}

// Sanitized returns a logging-safe view with secrets masked, following
// the teacher's own Sanitized() convention (agent/config/runtime.go)
// but hand-written rather than reflective since this config surface is
// a fraction of the teacher's size.
func (c *RuntimeConfig) Sanitized() map[string]interface{} {
	return map[string]interface{}{
		"listen_addr":              c.ListenAddr,
		"upstream_base_url":        c.UpstreamBaseURL,
		"cache_backend":            string(c.CacheBackend),
		"cache_max_entries":        c.CacheMaxEntries,
		"shared_cache_addr":        c.SharedCacheAddr,
		"ratings_min_votes":        c.RatingsMinVotes,
		"ratings_refresh_interval": c.RatingsRefreshInterval.String(),
		"ratings_dataset_url":      c.RatingsDatasetURL,
		"rate_limit_budget":        c.RateLimitBudget,
		"rate_limit_burst":         c.RateLimitBurst,
		"response_body_limit":      c.ResponseBodyLimit,
		"per_ip_rate_limit":        c.PerIPRateLimit,
		"encryption_key":           "hidden",
		"session_secret":           "hidden",
		"environment":              c.Environment,
		"upstream_timeout":         c.UpstreamTimeout.String(),
		"shutdown_drain_timeout":   c.ShutdownDrainTimeout.String(),
	}
}
