package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/hcl"
)

// fileConfig mirrors RuntimeConfig's hcl-decodable shape. Durations and
// the cache-backend enum are strings in HCL and converted explicitly,
// the same two-step decode-then-convert the teacher's acl.Parse uses
// for its own hcl.Decode call.
type fileConfig struct {
	ListenAddr             string `hcl:"listen_addr"`
	UpstreamBaseURL        string `hcl:"upstream_base_url"`
	CacheBackend           string `hcl:"cache_backend"`
	CacheMaxEntries        int    `hcl:"cache_max_entries"`
	SharedCacheAddr        string `hcl:"shared_cache_addr"`
	RatingsMinVotes        int64  `hcl:"ratings_min_votes"`
	RatingsRefreshInterval string `hcl:"ratings_refresh_interval"`
	RatingsDatasetURL      string `hcl:"ratings_dataset_url"`
	RateLimitBudget        float64 `hcl:"rate_limit_budget"`
	RateLimitBurst         int    `hcl:"rate_limit_burst"`
	ResponseBodyLimit      int64  `hcl:"response_body_limit"`
	PerIPRateLimit         float64 `hcl:"per_ip_rate_limit"`
	EncryptionKey          string `hcl:"encryption_key"`
	SessionSecret          string `hcl:"session_secret"`
	Environment            string `hcl:"environment"`
	UpstreamTimeout        string `hcl:"upstream_timeout"`
	ShutdownDrainTimeout   string `hcl:"shutdown_drain_timeout"`
}

// Load reads an HCL config file (if path is non-empty), applies
// CATALOGD_-prefixed environment overrides for secrets, defaults
// everything else (spec §6), and runs Validate (cache_backend and
// upstream_base_url only; the key and secret are not checked here).
func Load(path string) (RuntimeConfig, error) {
	rc := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return RuntimeConfig{}, fmt.Errorf("reading config file: %w", err)
		}

		var fc fileConfig
		if err := hcl.Decode(&fc, string(raw)); err != nil {
			return RuntimeConfig{}, fmt.Errorf("parsing config file: %w", err)
		}
		applyFileConfig(&rc, fc)
	}

	applyEnvOverrides(&rc)

	if err := rc.Validate(); err != nil {
		return RuntimeConfig{}, err
	}
	return rc, nil
}

func applyFileConfig(rc *RuntimeConfig, fc fileConfig) {
	if fc.ListenAddr != "" {
		rc.ListenAddr = fc.ListenAddr
	}
	if fc.UpstreamBaseURL != "" {
		rc.UpstreamBaseURL = fc.UpstreamBaseURL
	}
	if fc.CacheBackend != "" {
		rc.CacheBackend = CacheBackend(fc.CacheBackend)
	}
	if fc.CacheMaxEntries != 0 {
		rc.CacheMaxEntries = fc.CacheMaxEntries
	}
	if fc.SharedCacheAddr != "" {
		rc.SharedCacheAddr = fc.SharedCacheAddr
	}
	if fc.RatingsMinVotes != 0 {
		rc.RatingsMinVotes = fc.RatingsMinVotes
	}
	if fc.RatingsRefreshInterval != "" {
		if d, err := time.ParseDuration(fc.RatingsRefreshInterval); err == nil {
			rc.RatingsRefreshInterval = d
		}
	}
	if fc.RatingsDatasetURL != "" {
		rc.RatingsDatasetURL = fc.RatingsDatasetURL
	}
	if fc.RateLimitBudget != 0 {
		rc.RateLimitBudget = fc.RateLimitBudget
	}
	if fc.RateLimitBurst != 0 {
		rc.RateLimitBurst = fc.RateLimitBurst
	}
	if fc.ResponseBodyLimit != 0 {
		rc.ResponseBodyLimit = fc.ResponseBodyLimit
	}
	if fc.PerIPRateLimit != 0 {
		rc.PerIPRateLimit = fc.PerIPRateLimit
	}
	if fc.EncryptionKey != "" {
		rc.EncryptionKey = fc.EncryptionKey
	}
	if fc.SessionSecret != "" {
		rc.SessionSecret = fc.SessionSecret
	}
	if fc.Environment != "" {
		rc.Environment = fc.Environment
	}
	if fc.UpstreamTimeout != "" {
		if d, err := time.ParseDuration(fc.UpstreamTimeout); err == nil {
			rc.UpstreamTimeout = d
		}
	}
	if fc.ShutdownDrainTimeout != "" {
		if d, err := time.ParseDuration(fc.ShutdownDrainTimeout); err == nil {
			rc.ShutdownDrainTimeout = d
		}
	}
}

// applyEnvOverrides lets secrets be injected without touching disk,
// e.g. CATALOGD_ENCRYPTION_KEY / CATALOGD_SESSION_SECRET in a container
// environment.
func applyEnvOverrides(rc *RuntimeConfig) {
	if v := os.Getenv("CATALOGD_ENCRYPTION_KEY"); v != "" {
		rc.EncryptionKey = v
	}
	if v := os.Getenv("CATALOGD_SESSION_SECRET"); v != "" {
		rc.SessionSecret = v
	}
	if v := os.Getenv("CATALOGD_UPSTREAM_BASE_URL"); v != "" {
		rc.UpstreamBaseURL = v
	}
	if v := os.Getenv("CATALOGD_CACHE_BACKEND"); v != "" {
		rc.CacheBackend = CacheBackend(v)
	}
	if v := os.Getenv("CATALOGD_RATE_LIMIT_BUDGET"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			rc.RateLimitBudget = f
		}
	}
}
