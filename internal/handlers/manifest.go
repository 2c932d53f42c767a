package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/basakil/catalogd/internal/apierror"
	"github.com/basakil/catalogd/internal/cache"
	"github.com/basakil/catalogd/internal/collab"
)

const manifestTTL = 10 * time.Minute

// manifestResponse is the client-facing manifest schema (spec §4.6).
type manifestResponse struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Catalogs []manifestCatalog `json:"catalogs"`
}

type manifestCatalog struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"` // localised category name
}

// manifestFor implements spec §4.6's Manifest endpoint: shape depends on
// user config; if the user opted into shuffled catalog order the
// response is non-cacheable and bypasses the response cache entirely,
// otherwise it goes through the normal cache/ETag path.
func (s *Server) manifestFor(req *http.Request, userID string) (interface{}, error) {
	if userID == "" {
		return nil, apierror.New(apierror.Validation, "userId is required")
	}

	ctx := req.Context()
	cfg, err := s.ConfigCache.Get(ctx, userID)
	if err != nil {
		return nil, apierror.Wrap(apierror.DependencyDegraded, "loading user config", err)
	}

	if cfg.ShuffleCatalogOrder {
		return s.buildManifest(cfg), nil
	}

	fp := cache.NewFingerprint("manifest", map[string]string{"user": userID}, cfg.DisplayLocale)
	payload, _, err := s.ResponseCache.GetOrFetch(ctx, fp, "manifest", manifestTTL, func(ctx context.Context) ([]byte, error) {
		return json.Marshal(s.buildManifest(cfg))
	})
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, "building manifest", err)
	}

	var out manifestResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, apierror.Wrap(apierror.Internal, "decoding cached manifest", err)
	}
	return out, nil
}

func (s *Server) buildManifest(cfg collab.UserConfig) manifestResponse {
	catalogs := make([]manifestCatalog, 0, len(cfg.ExcludedGenres))
	for _, genre := range cfg.ExcludedGenres {
		catalogs = append(catalogs, manifestCatalog{Type: "movie", ID: genre, Name: localiseCategory(genre, cfg.DisplayLocale)})
	}
	return manifestResponse{
		ID:       "catalogd",
		Name:     "Catalog Provider",
		Catalogs: catalogs,
	}
}

func localiseCategory(genre, locale string) string {
	if locale == "" {
		return genre
	}
	return genre + " (" + locale + ")"
}
