package agent

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateEncryptionKey_AcceptsRawAndBase64(t *testing.T) {
	raw := strings.Repeat("k", 32)
	require.NoError(t, validateEncryptionKey(raw))

	encoded := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 32)))
	require.NoError(t, validateEncryptionKey(encoded))
}

func TestValidateEncryptionKey_RejectsWrongLength(t *testing.T) {
	require.Error(t, validateEncryptionKey("too-short"))
}

func TestValidateSessionSecret_RejectsShort(t *testing.T) {
	require.Error(t, validateSessionSecret("short"))
	require.NoError(t, validateSessionSecret(strings.Repeat("s", 32)))
}
