package agent

import (
	"encoding/base64"
	"fmt"
)

// validateEncryptionKey checks the 32-byte credential-encryption key
// (spec §6) required at startup. The base64 round-trip check is
// adapted from the teacher's own initKeyring, which validated a gossip
// keyring entry the same way before accepting it; here there is no
// gossip keyring, just a single symmetric key guarding stored
// credentials.
func validateEncryptionKey(key string) error {
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err == nil {
		// Accept a base64-encoded 32-byte key as well as a raw 32-byte
		// string, since operators commonly generate keys with
		// `head -c32 /dev/urandom | base64`.
		if len(decoded) == 32 {
			return nil
		}
	}
	if len(key) != 32 {
		return fmt.Errorf("encryption key must be 32 raw bytes or base64-encoded 32 bytes, got %d bytes", len(key))
	}
	return nil
}

// validateSessionSecret checks the session-signing secret (spec §6):
// at least 32 characters.
func validateSessionSecret(secret string) error {
	if len(secret) < 32 {
		return fmt.Errorf("session secret must be at least 32 characters, got %d", len(secret))
	}
	return nil
}
