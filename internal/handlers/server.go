// Package handlers implements Request Handlers (spec §4.6): manifest,
// catalog, meta, health, and status. The handler signature —
// func(resp, req) (interface{}, error) wrapped centrally for JSON
// encoding — is adapted directly from the teacher's agent_endpoint.go
// convention; here the central wrapper also computes the ETag,
// short-circuits conditional requests, and maps the apierror taxonomy
// to HTTP status.
package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/basakil/catalogd/internal/apierror"
	"github.com/basakil/catalogd/internal/cache"
	"github.com/basakil/catalogd/internal/collab"
	"github.com/basakil/catalogd/internal/configcache"
	"github.com/basakil/catalogd/internal/enrich"
	"github.com/basakil/catalogd/internal/metrics"
	"github.com/basakil/catalogd/internal/ratings"
	"github.com/basakil/catalogd/internal/session"
	"github.com/basakil/catalogd/internal/upstream"
)

// endpointFunc is every handler's shape (spec §4.6 convention, grounded
// on agent_endpoint.go's `func(resp http.ResponseWriter, req
// *http.Request) (interface{}, error)`).
type endpointFunc func(resp http.ResponseWriter, req *http.Request) (interface{}, error)

// Server holds every collaborator a Request Handler dispatches to.
type Server struct {
	Config       collab.UserConfigStore
	ConfigCache  *configcache.Cache
	ResponseCache cache.ResponseCache
	Ratings      *ratings.Engine
	Pipeline     *enrich.Pipeline
	Upstream     *upstream.Client
	TokenValidator collab.TokenValidator
	Revoked      *session.RevokedTokenSet
	Metrics      *metrics.Sink
	Logger       hclog.Logger

	BodyLimit    int64
	StartedAt    time.Time
	Version      string
	Channel      string
	Commit       string
	Degraded     func() map[string]bool

	perIPMu   sync.Mutex
	perIP     map[string]*rate.Limiter
	perIPRate float64
}

func NewServer(bodyLimit int64, perIPRate float64, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Server{
		BodyLimit: bodyLimit,
		StartedAt: time.Now(),
		Logger:    logger.Named("handlers"),
		perIP:     make(map[string]*rate.Limiter),
		perIPRate: perIPRate,
	}
}

// Mux builds the HTTP route table (spec §6 HTTP surface).
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", s.wrap(s.Health))
	mux.Handle("/api/status", s.wrap(s.Status))
	mux.Handle("/", s.wrap(s.dispatch))

	// gzip compresses every response body above gziphandler's own
	// threshold; kept as a teacher dependency (NYTimes/gziphandler) used
	// for exactly this purpose in the original agent HTTP server.
	return gziphandler.GzipHandler(s.withPerIPLimit(mux))
}

var (
	manifestPattern = regexp.MustCompile(`^/([^/]+)/manifest\.json$`)
	catalogPattern  = regexp.MustCompile(`^/([^/]+)/catalog/([^/]+)/([^/]+?)(?:/([^/]+))?\.json$`)
	metaPattern     = regexp.MustCompile(`^/([^/]+)/meta/([^/]+)/([^/]+?)(?:/([^/]+))?\.json$`)
)

// dispatch routes everything that isn't /health or /api/status, since
// the path shape (userId, type, catalogId/id, optional extra) doesn't
// fit cleanly into net/http's pattern matching without Go 1.22's
// method+wildcard routes; the teacher's own minimal-router convention
// (no third-party mux dependency, per its go.mod) is preserved here.
func (s *Server) dispatch(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	path := req.URL.Path

	if m := manifestPattern.FindStringSubmatch(path); m != nil {
		return s.manifestFor(req, m[1])
	}
	if m := catalogPattern.FindStringSubmatch(path); m != nil {
		return s.catalogFor(req, m[1], m[2], m[3], m[4])
	}
	if m := metaPattern.FindStringSubmatch(path); m != nil {
		return s.metaFor(req, m[1], m[2], m[3], m[4])
	}
	return nil, apierror.New(apierror.NotFound, "no route for "+path)
}

// wrap centralises JSON encoding, ETag computation, conditional
// short-circuiting, body-size enforcement, and taxonomy→status mapping
// (spec §4.6, §7).
func (s *Server) wrap(fn endpointFunc) http.Handler {
	return http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		start := time.Now()
		req.Body = http.MaxBytesReader(resp, req.Body, s.BodyLimit)

		metrics.IncrRequest(req.URL.Path)

		out, err := fn(resp, req)

		if s.Metrics != nil {
			s.Metrics.ObserveLatency(req.URL.Path, time.Since(start))
		}

		if err != nil {
			s.writeError(resp, req, err)
			return
		}
		if out == nil {
			resp.WriteHeader(http.StatusNoContent)
			return
		}

		payload, mErr := json.Marshal(out)
		if mErr != nil {
			s.writeError(resp, req, apierror.Wrap(apierror.Internal, "encoding response", mErr))
			return
		}

		etag := computeETag(payload, req.URL.Path)
		if notModified(req, etag) {
			resp.Header().Set("ETag", etag)
			resp.WriteHeader(http.StatusNotModified)
			return
		}

		resp.Header().Set("Content-Type", "application/json")
		resp.Header().Set("ETag", etag)
		resp.WriteHeader(http.StatusOK)
		_, _ = resp.Write(payload)
	})
}

// writeError implements spec §7's user-visible degrade-gracefully rule:
// for the catalog and meta endpoints an internal or dependency-degraded
// error yields an empty success payload instead of an error status,
// while the manifest, /health and /api/status, and VALIDATION/NOT_FOUND/
// UNAUTHORIZED errors still report their real status.
func (s *Server) writeError(resp http.ResponseWriter, req *http.Request, err error) {
	apiErr, ok := err.(*apierror.Error)
	if !ok {
		apiErr = apierror.Wrap(apierror.Internal, err.Error(), err)
	}

	s.Logger.Warn("request failed", "path", req.URL.Path, "kind", apiErr.Kind, "message", apiErr.Message)

	if apiErr.Kind == apierror.Internal || apiErr.Kind == apierror.DependencyDegraded {
		if strings.Contains(req.URL.Path, "/catalog/") {
			s.writeJSON(resp, catalogResponse{Metas: []enrich.EnrichedItem{}})
			return
		}
		if strings.Contains(req.URL.Path, "/meta/") {
			s.writeJSON(resp, metaResponse{Meta: map[string]interface{}{}})
			return
		}
	}

	http.Error(resp, apiErr.Error(), apiErr.Status())
}

func (s *Server) writeJSON(resp http.ResponseWriter, v interface{}) {
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(resp).Encode(v)
}

// withPerIPLimit enforces spec §6's "rate-limited per IP" requirement
// using the same golang.org/x/time/rate primitive internal/ratelimit
// wraps for the Upstream Client, here one limiter per client IP.
func (s *Server) withPerIPLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		if s.perIPRate <= 0 {
			next.ServeHTTP(resp, req)
			return
		}
		ip := clientIP(req)

		s.perIPMu.Lock()
		lim, ok := s.perIP[ip]
		if !ok {
			burst := int(s.perIPRate)
			if burst < 1 {
				burst = 1
			}
			lim = rate.NewLimiter(rate.Limit(s.perIPRate), burst)
			s.perIP[ip] = lim
		}
		s.perIPMu.Unlock()

		if !lim.Allow() {
			http.Error(resp, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(resp, req)
	})
}

func clientIP(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	return req.RemoteAddr
}

