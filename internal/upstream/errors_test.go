package upstream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify_StatusCodes(t *testing.T) {
	require.Equal(t, ErrNotFound, classify(404, ""))
	require.Equal(t, ErrAuth, classify(401, ""))
	require.Equal(t, ErrAuth, classify(403, ""))
	require.Equal(t, ErrQuota, classify(429, ""))
	require.Equal(t, ErrTransient, classify(503, ""))
	require.Equal(t, ErrMalformed, classify(400, ""))
}

func TestClassify_BodyHeuristicIsWordBounded(t *testing.T) {
	// spec testable property 7: the 5xx heuristic itself must not match a
	// digit embedded in a larger token or count.
	require.False(t, serverErrorPattern.MatchString("found 5 matches"))
	require.False(t, serverErrorPattern.MatchString("150000 votes"))
	require.True(t, serverErrorPattern.MatchString("status 500 from server"))
}

func TestClassifyError_StatusTextHeuristic(t *testing.T) {
	require.Equal(t, ErrTransient, ClassifyError("status 500 from server"))
}

func TestClassify_QuotaBodyHeuristic(t *testing.T) {
	require.Equal(t, ErrQuota, classify(200, "request quota exceeded, try later"))
}
