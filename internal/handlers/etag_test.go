package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeETag_DeterministicAndSalted(t *testing.T) {
	payload := []byte(`{"a":1}`)
	a := computeETag(payload, "catalog")
	b := computeETag(payload, "catalog")
	c := computeETag(payload, "meta")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c, "different salts over identical bytes must not collide")
}

func TestNotModified_MatchesIfNoneMatch(t *testing.T) {
	etag := computeETag([]byte("x"), "salt")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-None-Match", etag)
	require.True(t, notModified(req, etag))

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.Header.Set("If-None-Match", `"deadbeef"`)
	require.False(t, notModified(req2, etag))

	req3 := httptest.NewRequest(http.MethodGet, "/", nil)
	req3.Header.Set("If-None-Match", "*")
	require.True(t, notModified(req3, etag))
}

func TestSplitETagList(t *testing.T) {
	out := splitETagList(`"a", "b",   "c"`)
	require.Equal(t, []string{`"a"`, `"b"`, `"c"`}, out)
}
