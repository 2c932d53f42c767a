package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// httpDatasetSource implements ratings.DatasetSource over a plain HTTP
// GET against a gzip-compressed dataset URL, using If-None-Match /
// ETag for the conditional-download semantics spec §4.4 describes. It
// is deliberately independent of internal/upstream.Client: the dataset
// download is a bulk transfer on its own quota lane, not a
// rate-limited per-request JSON call.
type httpDatasetSource struct {
	client *http.Client
	url    string
}

func newHTTPDatasetSource(url string, timeout time.Duration) *httpDatasetSource {
	return &httpDatasetSource{client: &http.Client{Timeout: timeout * 20}, url: url}
}

func (s *httpDatasetSource) Fetch(ctx context.Context, priorTag string) (io.ReadCloser, string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, "", false, err
	}
	if priorTag != "" {
		req.Header.Set("If-None-Match", priorTag)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", false, err
	}

	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		return nil, priorTag, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", false, fmt.Errorf("dataset source returned status %d", resp.StatusCode)
	}

	tag := resp.Header.Get("ETag")
	if tag == "" {
		tag = resp.Header.Get("Last-Modified")
	}
	return resp.Body, tag, false, nil
}
