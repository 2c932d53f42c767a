package agent

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPDatasetSource_FetchReturnsBodyAndETag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc123"`)
		w.Write([]byte("dataset-bytes"))
	}))
	defer srv.Close()

	src := newHTTPDatasetSource(srv.URL, time.Second)
	body, tag, notModified, err := src.Fetch(context.Background(), "")
	require.NoError(t, err)
	require.False(t, notModified)
	require.Equal(t, `"abc123"`, tag)

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, "dataset-bytes", string(data))
}

func TestHTTPDatasetSource_FetchHonoursConditionalNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, `"abc123"`, r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	src := newHTTPDatasetSource(srv.URL, time.Second)
	body, tag, notModified, err := src.Fetch(context.Background(), `"abc123"`)
	require.NoError(t, err)
	require.True(t, notModified)
	require.Nil(t, body)
	require.Equal(t, `"abc123"`, tag)
}

func TestHTTPDatasetSource_FetchErrorsOnUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := newHTTPDatasetSource(srv.URL, time.Second)
	_, _, _, err := src.Fetch(context.Background(), "")
	require.Error(t, err)
}
