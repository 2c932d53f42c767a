package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/basakil/catalogd/internal/apierror"
	"github.com/basakil/catalogd/internal/cache"
	"github.com/basakil/catalogd/internal/enrich"
	"github.com/basakil/catalogd/internal/upstream"
)

// Negative-cache TTLs for classified upstream failures (spec §4.2):
// NOT_FOUND entries live 30 minutes, AUTH entries only 60 seconds.
const (
	negativeTTLNotFound = 30 * time.Minute
	negativeTTLAuth     = 60 * time.Second
)

const catalogTTL = 5 * time.Minute

// catalogResponse is the client-facing catalog schema (spec §6).
type catalogResponse struct {
	Metas           []enrich.EnrichedItem `json:"metas"`
	CacheMaxAge     int                   `json:"cacheMaxAge"`
	StaleRevalidate int                   `json:"staleRevalidate"`
}

var validCatalogTypes = map[string]bool{"movie": true, "series": true}

// catalogFor implements spec §4.6's Catalog endpoint: validates type,
// parses the extra segment, resolves category filters, dispatches
// through the response cache and enrichment pipeline.
func (s *Server) catalogFor(req *http.Request, userID, catalogType, catalogID, extra string) (interface{}, error) {
	if userID == "" || catalogID == "" {
		return nil, apierror.New(apierror.Validation, "userId and catalogId are required")
	}
	if !validCatalogTypes[catalogType] {
		return nil, apierror.New(apierror.Validation, "type must be movie or series")
	}

	ctx := req.Context()
	cfg, err := s.ConfigCache.Get(ctx, userID)
	if err != nil {
		return nil, apierror.Wrap(apierror.DependencyDegraded, "loading user config", err)
	}

	params := parseExtra(extra)
	resolvedCategory := resolveCategoryID(params.Genres, cfg.DisplayLocale)

	opts := enrich.Options{
		ExcludedCategories: cfg.ExcludedGenres,
		GlobalPosterSvcOn:  cfg.PosterServiceOn,
		PlaceholderPoster:  placeholderPoster,
		BaseURL:            baseURL(req),
		Shuffle:            cfg.ShuffleCatalogOrder,
	}

	if opts.Shuffle {
		page, totalPages, err := s.fetchCatalogPage(ctx, catalogType, catalogID, params, resolvedCategory, 1)
		if err != nil {
			return nil, err
		}
		if idx := enrich.RandomPageIndex(totalPages); idx != 1 {
			page, _, err = s.fetchCatalogPage(ctx, catalogType, catalogID, params, resolvedCategory, idx)
			if err != nil {
				return nil, err
			}
		}
		opts.TotalPagesForShuffle = totalPages
		result := s.Pipeline.Run(ctx, page, opts)
		return catalogResponse{Metas: result.Items, CacheMaxAge: 0, StaleRevalidate: 0}, nil
	}

	fp := cache.NewFingerprint(
		"catalog/"+catalogType+"/"+catalogID,
		map[string]string{
			"skip":   strconv.Itoa(params.Skip),
			"search": params.Search,
			"genre":  strings.Join(params.Genres, ","),
			"user":   userID,
		},
		cfg.DisplayLocale,
	)

	payload, meta, err := s.ResponseCache.GetOrFetch(ctx, fp, "catalog", catalogTTL, func(ctx context.Context) ([]byte, error) {
		page, totalPages, err := s.fetchCatalogPage(ctx, catalogType, catalogID, params, resolvedCategory, 1)
		if err != nil {
			return nil, negativeCacheableErr(err)
		}
		opts.TotalPagesForShuffle = totalPages
		result := s.Pipeline.Run(ctx, page, opts)
		return json.Marshal(catalogResponse{Metas: result.Items, CacheMaxAge: int(catalogTTL.Seconds()), StaleRevalidate: int(catalogTTL.Seconds() * 5 / 2)})
	})
	if err != nil {
		return nil, classifyUpstreamErr(err)
	}
	if meta.Negative {
		return nil, negativeHitErr(meta.NegativeKind)
	}

	var out catalogResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, apierror.Wrap(apierror.Internal, "decoding cached catalog response", err)
	}
	return out, nil
}

// fetchCatalogPage calls the Upstream Client for one page of results.
// pageIndex selects which upstream page to request (1 unless
// randomisation is in effect).
func (s *Server) fetchCatalogPage(ctx context.Context, catalogType, catalogID string, params extraParams, categoryID string, pageIndex int) (enrich.Page, int, error) {
	var body struct {
		Items        []enrich.Item `json:"items"`
		TotalResults int           `json:"totalResults"`
		TotalPages   int           `json:"totalPages"`
	}
	values := catalogQueryValues(catalogType, catalogID, params, categoryID, pageIndex)
	_, err := s.Upstream.FetchJSON(ctx, "/catalog", values, &body)
	if err != nil {
		return enrich.Page{}, 0, err
	}
	return enrich.Page{Items: body.Items, TotalResults: body.TotalResults, TotalPages: body.TotalPages}, body.TotalPages, nil
}

// resolveCategoryID resolves genre labels to category IDs using
// localised, then static, then fuzzy (substring / word-bag) matching,
// per spec §4.6.
func resolveCategoryID(genres []string, locale string) string {
	if len(genres) == 0 {
		return ""
	}
	label := genres[0]

	if id, ok := localisedCategoryIDs[locale+":"+strings.ToLower(label)]; ok {
		return id
	}
	if id, ok := staticCategoryIDs[strings.ToLower(label)]; ok {
		return id
	}
	return fuzzyCategoryMatch(label)
}

var localisedCategoryIDs = map[string]string{}

var staticCategoryIDs = map[string]string{
	"action":  "28",
	"comedy":  "35",
	"drama":   "18",
	"horror":  "27",
}

// fuzzyCategoryMatch falls back to substring / word-bag matching when a
// genre label isn't in either lookup table.
func fuzzyCategoryMatch(label string) string {
	label = strings.ToLower(label)
	words := strings.Fields(label)
	for name, id := range staticCategoryIDs {
		if strings.Contains(name, label) || strings.Contains(label, name) {
			return id
		}
		for _, w := range words {
			if w == name {
				return id
			}
		}
	}
	return ""
}

func placeholderPoster(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/static/poster-placeholder.png"
}

func baseURL(req *http.Request) string {
	scheme := "https"
	if req.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + req.Host
}

// classifyUpstreamErr maps a failure surfaced through the response cache
// back to the apierror taxonomy (spec §7). It must run before the
// DEPENDENCY_DEGRADED fallback so NOT_FOUND/AUTH/QUOTA/MALFORMED/TIMEOUT
// classifications from the Upstream Client (internal/upstream/errors.go)
// aren't all flattened into one generic kind.
func classifyUpstreamErr(err error) error {
	if apiErr, ok := err.(*apierror.Error); ok {
		return apiErr
	}
	var uerr *upstream.Error
	if errors.As(err, &uerr) {
		switch uerr.Kind {
		case upstream.ErrNotFound:
			return apierror.Wrap(apierror.NotFound, "title not found upstream", err)
		case upstream.ErrAuth:
			return apierror.Wrap(apierror.Unauthorized, "upstream rejected credentials", err)
		case upstream.ErrQuota:
			return apierror.Wrap(apierror.DependencyDegraded, "upstream quota exhausted", err)
		case upstream.ErrMalformed:
			return apierror.Wrap(apierror.Internal, "upstream returned malformed data", err)
		case upstream.ErrTimeout, upstream.ErrTransient:
			return apierror.Wrap(apierror.DependencyDegraded, "upstream temporarily unavailable", err)
		}
	}
	return apierror.Wrap(apierror.DependencyDegraded, "upstream catalog fetch failed", err)
}

// negativeCacheableErr wraps a classified upstream NOT_FOUND/AUTH failure
// into a cache.NegativeError (spec §4.2's negative-caching rules) before
// it is returned to a response-cache Producer; every other kind is
// returned unchanged so it is never negative-cached (spec §4.2: "MALFORMED,
// QUOTA, TIMEOUT, TRANSIENT are not cached").
func negativeCacheableErr(err error) error {
	var uerr *upstream.Error
	if !errors.As(err, &uerr) {
		return err
	}
	switch uerr.Kind {
	case upstream.ErrNotFound:
		return &cache.NegativeError{Err: err, TTL: negativeTTLNotFound, Kind: string(apierror.NotFound)}
	case upstream.ErrAuth:
		return &cache.NegativeError{Err: err, TTL: negativeTTLAuth, Kind: string(apierror.Unauthorized)}
	default:
		return err
	}
}

// negativeHitErr reconstructs the apierror a negative cache hit
// represents, surfacing it as NOT_FOUND/UNAUTHORIZED (spec §7) instead of
// trying to decode the empty payload a negative entry stores.
func negativeHitErr(kind string) error {
	switch apierror.Kind(kind) {
	case apierror.NotFound:
		return apierror.New(apierror.NotFound, "title not found upstream")
	case apierror.Unauthorized:
		return apierror.New(apierror.Unauthorized, "upstream rejected credentials")
	default:
		return apierror.New(apierror.NotFound, "title not found upstream")
	}
}

func catalogQueryValues(catalogType, catalogID string, params extraParams, categoryID string, pageIndex int) url.Values {
	q := url.Values{
		"type":      {catalogType},
		"catalogId": {catalogID},
		"skip":      {strconv.Itoa(params.Skip)},
		"page":      {strconv.Itoa(pageIndex)},
	}
	if params.Search != "" {
		q.Set("search", params.Search)
	}
	if categoryID != "" {
		q.Set("category", categoryID)
	}
	if params.DisplayLanguage != "" {
		q.Set("displayLanguage", params.DisplayLanguage)
	}
	return q
}
