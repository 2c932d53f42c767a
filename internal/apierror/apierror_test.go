package apierror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_StatusMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{Validation, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{Unauthorized, http.StatusUnauthorized},
		{DependencyDegraded, http.StatusServiceUnavailable},
		{Internal, http.StatusInternalServerError},
	}
	for _, c := range cases {
		err := New(c.kind, "boom")
		require.Equal(t, c.want, err.Status())
	}
}

func TestWrap_UnwrapsToCause(t *testing.T) {
	cause := errors.New("underlying failure")
	err := Wrap(Internal, "wrapping", cause)

	require.Equal(t, cause, errors.Unwrap(err))
	require.True(t, errors.Is(err, cause))
}

func TestError_MessageInErrorString(t *testing.T) {
	err := New(Validation, "userId is required")
	require.Contains(t, err.Error(), "userId is required")
	require.Contains(t, err.Error(), "VALIDATION")
}
