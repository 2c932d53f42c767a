package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/basakil/catalogd/internal/apierror"
	"github.com/basakil/catalogd/internal/cache"
)

const metaTTL = 15 * time.Minute

// metaResponse is the client-facing meta schema (spec §6).
type metaResponse struct {
	Meta            map[string]interface{} `json:"meta"`
	CacheMaxAge     int                    `json:"cacheMaxAge"`
	StaleRevalidate int                    `json:"staleRevalidate"`
	StaleError      int                    `json:"staleError"`
}

var (
	externalIDPattern = regexp.MustCompile(`^tt\d{7,10}$`)
	typedIDPattern    = regexp.MustCompile(`^([a-zA-Z0-9_-]+):(\d+)$`)
	bareNumericID     = regexp.MustCompile(`^\d+$`)
)

// parseMetaID accepts the three ID forms spec §4.6 documents: an
// external "tt"-prefixed ID, a typed "database:numeric" form, or a bare
// numeric ID.
func parseMetaID(id string) (database, numericOrExternal string, ok bool) {
	switch {
	case externalIDPattern.MatchString(id):
		return "imdb", id, true
	case typedIDPattern.MatchString(id):
		m := typedIDPattern.FindStringSubmatch(id)
		return m[1], m[2], true
	case bareNumericID.MatchString(id):
		return "", id, true
	default:
		return "", "", false
	}
}

// metaFor implements spec §4.6's Meta endpoint. Series requests fetch
// episode listings and localised logos in parallel with the details
// call.
func (s *Server) metaFor(req *http.Request, userID, metaType, id, extra string) (interface{}, error) {
	if userID == "" || id == "" {
		return nil, apierror.New(apierror.Validation, "userId and id are required")
	}
	if !validCatalogTypes[metaType] {
		return nil, apierror.New(apierror.Validation, "type must be movie or series")
	}
	database, ref, ok := parseMetaID(id)
	if !ok {
		return nil, apierror.New(apierror.Validation, "id must be a tt-prefixed external id, database:numeric, or bare numeric id")
	}

	ctx := req.Context()
	cfg, err := s.ConfigCache.Get(ctx, userID)
	if err != nil {
		return nil, apierror.Wrap(apierror.DependencyDegraded, "loading user config", err)
	}

	params := parseExtra(extra)
	fp := cache.NewFingerprint("meta/"+metaType+"/"+id, map[string]string{"user": userID}, cfg.DisplayLocale)

	payload, meta, err := s.ResponseCache.GetOrFetch(ctx, fp, "meta", metaTTL, func(ctx context.Context) ([]byte, error) {
		m, err := s.fetchMeta(ctx, metaType, database, ref, params, cfg.DisplayLocale)
		if err != nil {
			return nil, negativeCacheableErr(err)
		}
		return json.Marshal(metaResponse{
			Meta:            m,
			CacheMaxAge:     int(metaTTL.Seconds()),
			StaleRevalidate: int(metaTTL.Seconds() * 5 / 2),
			StaleError:      int(metaTTL.Seconds() * 5 / 2),
		})
	})
	if err != nil {
		return nil, classifyUpstreamErr(err)
	}
	if meta.Negative {
		return nil, negativeHitErr(meta.NegativeKind)
	}

	var out metaResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, apierror.Wrap(apierror.Internal, "decoding cached meta response", err)
	}
	return out, nil
}

func (s *Server) fetchMeta(ctx context.Context, metaType, database, ref string, params extraParams, locale string) (map[string]interface{}, error) {
	values := url.Values{"id": {ref}}
	if database != "" {
		values.Set("database", database)
	}
	if params.DisplayLanguage != "" {
		values.Set("displayLanguage", params.DisplayLanguage)
	} else if locale != "" {
		values.Set("displayLanguage", locale)
	}

	var details map[string]interface{}
	if metaType != "series" {
		if _, err := s.Upstream.FetchJSON(ctx, "/meta", values, &details); err != nil {
			return nil, err
		}
		s.attachRating(details, ref)
		return details, nil
	}

	var (
		episodes []interface{}
		logos    map[string]interface{}
		detErr, epErr, logoErr error
	)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		detErr = fetchJSONInto(ctx, s, "/meta", values, &details)
	}()
	go func() {
		defer wg.Done()
		epErr = fetchJSONInto(ctx, s, "/meta/episodes", url.Values{"id": {ref}}, &episodes)
	}()
	go func() {
		defer wg.Done()
		logoErr = fetchJSONInto(ctx, s, "/meta/logos", values, &logos)
	}()
	wg.Wait()

	if detErr != nil {
		return nil, detErr
	}
	if epErr == nil {
		details["videos"] = episodes
	}
	if logoErr == nil {
		details["logos"] = logos
	}

	s.attachRating(details, ref)
	return details, nil
}

func (s *Server) attachRating(details map[string]interface{}, ref string) {
	if s.Ratings == nil {
		return
	}
	if r, ok := s.Ratings.Lookup(ref); ok {
		details["imdbRating"] = strconv.FormatFloat(r.Rating, 'f', 1, 64)
	}
}

func fetchJSONInto(ctx context.Context, s *Server, endpoint string, values url.Values, out interface{}) error {
	_, err := s.Upstream.FetchJSON(ctx, endpoint, values, out)
	return err
}
