package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// computeETag derives a strong validator from the SHA-256 of the
// serialised payload plus a contextual salt (spec §4.6: "a strong
// validator derived from the SHA-256 of the serialised payload plus a
// contextual salt"; §6 "ETag algorithm: SHA-256, MD5 explicitly
// forbidden"). salt scopes the digest to the handler/context producing
// it, so two endpoints never collide on identical bytes.
func computeETag(payload []byte, salt string) string {
	h := sha256.New()
	h.Write([]byte(salt))
	h.Write([]byte{0}) // separator: guards against salt+payload concatenation collisions
	h.Write(payload)
	return `"` + hex.EncodeToString(h.Sum(nil)) + `"`
}

// notModified reports whether req's conditional headers match etag, per
// spec §4.6 "honour conditional-request headers to return the empty
// not-modified response on match" and testable property 6.
func notModified(req *http.Request, etag string) bool {
	inm := req.Header.Get("If-None-Match")
	if inm == "" {
		return false
	}
	for _, candidate := range splitETagList(inm) {
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}

func splitETagList(header string) []string {
	var out []string
	for _, field := range strings.Split(header, ",") {
		field = strings.TrimSpace(field)
		if field != "" {
			out = append(out, field)
		}
	}
	return out
}
