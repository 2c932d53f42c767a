package handlers

import (
	"net/http"
	"time"

	"github.com/basakil/catalogd/internal/cache"
)

type statusResponse struct {
	Version            string               `json:"version"`
	Channel            string               `json:"channel"`
	Commit             string               `json:"commit"`
	UptimeSeconds      int64                `json:"uptimeSeconds"`
	Backends           map[string]string    `json:"backends"`
	CacheStats         cache.Stats          `json:"cacheStats"`
	RatingsLiveSize    int                  `json:"ratingsLiveSize"`
	RatingsState       string               `json:"ratingsState"`
	RatingsImportState *importStateResponse `json:"ratingsImportState,omitempty"`
}

// importStateResponse is the ImportState entity (spec §3): the ratings
// dataset's source tag, last-import instant, and record count.
type importStateResponse struct {
	SourceTag   string    `json:"sourceTag"`
	LastImport  time.Time `json:"lastImport"`
	RecordCount int       `json:"recordCount"`
}

// Status implements spec §6's `GET /api/status`: version, channel,
// commit, uptime, configured backends, coarse counts.
func (s *Server) Status(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	out := statusResponse{
		Version:       s.Version,
		Channel:       s.Channel,
		Commit:        s.Commit,
		UptimeSeconds: int64(time.Since(s.StartedAt).Seconds()),
		Backends:      map[string]string{},
	}
	if s.ResponseCache != nil {
		out.CacheStats = s.ResponseCache.Stats()
	}
	if s.Ratings != nil {
		out.RatingsLiveSize = s.Ratings.Size()
		out.RatingsState = s.Ratings.State().String()
		if lastImport := s.Ratings.ImportedAt(); !lastImport.IsZero() {
			out.RatingsImportState = &importStateResponse{
				SourceTag:   s.Ratings.SourceTag(),
				LastImport:  lastImport,
				RecordCount: s.Ratings.Size(),
			}
		}
	}
	return out, nil
}
