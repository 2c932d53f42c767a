// Package upstream implements the single outbound HTTP collaborator
// every cache miss eventually calls through to (spec §4.1). It owns
// request construction, the shared rate limiter, deadline enforcement,
// retry-after honouring, and error classification; it does not know
// about caching, fingerprints, or enrichment.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	uuid "github.com/hashicorp/go-uuid"

	"github.com/basakil/catalogd/internal/ratelimit"
)

// Result is what fetch/fetchMany hand back to a Producer.
type Result struct {
	Payload []byte
	Status  int
}

// Hints carries transport-level signals a caller may want to act on
// (e.g. the response cache's digest-based self-healing check doesn't
// need these, but observability does).
type Hints struct {
	TraceID    string
	RetryAfter time.Duration
}

// Client is the Upstream Client (spec §4.1): one per process, sharing a
// single TokenBucket across every concurrent caller.
type Client struct {
	httpClient *http.Client
	baseURL    string
	bucket     *ratelimit.TokenBucket
	logger     hclog.Logger

	maxConcurrentFetchMany int
}

// Config holds Client construction parameters.
type Config struct {
	BaseURL                string
	Timeout                time.Duration
	RatePerSecond          float64
	Burst                  int
	MaxConcurrentFetchMany int
	Logger                 hclog.Logger
}

func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg.MaxConcurrentFetchMany < 1 {
		cfg.MaxConcurrentFetchMany = 8
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		bucket:     ratelimit.New(cfg.RatePerSecond, cfg.Burst),
		logger:     logger.Named("upstream"),
		maxConcurrentFetchMany: cfg.MaxConcurrentFetchMany,
	}
}

// Fetch performs a single upstream call for endpoint with the given query
// parameters, returning the raw response body or a classified *Error.
func (c *Client) Fetch(ctx context.Context, endpoint string, params url.Values) (Result, Hints, error) {
	traceID, _ := uuid.GenerateUUID()
	hints := Hints{TraceID: traceID}

	if err := c.bucket.Acquire(ctx); err != nil {
		return Result{}, hints, &Error{Kind: ErrTimeout, Message: err.Error()}
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Result{}, hints, &Error{Kind: ErrMalformed, Message: err.Error()}
	}
	req.Header.Set("X-Trace-Id", traceID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ue, ok := err.(*url.Error); ctx.Err() != nil || (ok && ue.Timeout()) {
			return Result{}, hints, &Error{Kind: ErrTimeout, Message: err.Error()}
		}
		return Result{}, hints, &Error{Kind: ErrTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return Result{}, hints, &Error{Kind: ErrTransient, Status: resp.StatusCode, Message: err.Error()}
	}

	if retryAfter, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
		hints.RetryAfter = retryAfter
		c.bucket.DrainUntil(time.Now().Add(retryAfter), 0)
		c.logger.Warn("upstream requested retry-after, draining token bucket",
			"endpoint", endpoint, "retry_after", retryAfter, "trace_id", traceID)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := classify(resp.StatusCode, string(body))
		return Result{Payload: body, Status: resp.StatusCode}, hints, &Error{
			Kind:    kind,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("upstream %s returned %d", endpoint, resp.StatusCode),
		}
	}

	return Result{Payload: body, Status: resp.StatusCode}, hints, nil
}

// FetchJSON is a convenience wrapper decoding a successful response body
// as JSON into out.
func (c *Client) FetchJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) (Hints, error) {
	res, hints, err := c.Fetch(ctx, endpoint, params)
	if err != nil {
		return hints, err
	}
	if err := json.NewDecoder(bytes.NewReader(res.Payload)).Decode(out); err != nil {
		return hints, &Error{Kind: ErrMalformed, Status: res.Status, Message: err.Error()}
	}
	return hints, nil
}

// FetchMany batches a page's worth of per-ID lookups (e.g. title
// cross-reference or rating lookups) into bounded-concurrency calls, all
// drawing from the same shared TokenBucket (spec §4.1 "fetchMany batches
// ... respecting the same rate limit"). Results are returned in the same
// order as ids.
func (c *Client) FetchMany(ctx context.Context, endpoint string, paramsFor func(id string) url.Values, ids []string) ([]Result, []Hints, []error) {
	results := make([]Result, len(ids))
	hintsOut := make([]Hints, len(ids))
	errs := make([]error, len(ids))

	sem := make(chan struct{}, c.maxConcurrentFetchMany)
	var wg sync.WaitGroup

	for i, id := range ids {
		select {
		case <-ctx.Done():
			errs[i] = &Error{Kind: ErrTimeout, Message: ctx.Err().Error()}
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer func() { <-sem }()

			res, hints, err := c.Fetch(ctx, endpoint, paramsFor(id))
			results[i] = res
			hintsOut[i] = hints
			errs[i] = err
		}(i, id)
	}
	wg.Wait()

	return results, hintsOut, errs
}

func parseRetryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d > 0 {
			return d, true
		}
	}
	return 0, false
}
