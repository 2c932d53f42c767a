package upstream

import "regexp"

// ErrKind is the taxonomy upstream failures are reduced to (spec §4.1).
type ErrKind uint8

const (
	ErrTransient ErrKind = iota
	ErrQuota
	ErrNotFound
	ErrAuth
	ErrMalformed
	ErrTimeout
)

func (k ErrKind) String() string {
	switch k {
	case ErrTransient:
		return "TRANSIENT"
	case ErrQuota:
		return "QUOTA"
	case ErrNotFound:
		return "NOT_FOUND"
	case ErrAuth:
		return "AUTH"
	case ErrMalformed:
		return "MALFORMED"
	case ErrTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Error is the classified error returned by fetch/fetchMany.
type Error struct {
	Kind    ErrKind
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Message }

// serverErrorPattern matches a 5xx-looking status mentioned in free text,
// bounded by non-digit characters on both sides so a literal "5" embedded
// in a longer number (e.g. "found 5 matches" or vote count "150000")
// never false-positives, per spec §4.1's regression-critical note and
// testable property 7. This replaces the teacher's own fragile ad-hoc
// substring search (spec §9 "string-based error classification").
var serverErrorPattern = regexp.MustCompile(`\b5\d\d\b`)

var quotaPattern = regexp.MustCompile(`(?i)\b(quota|rate.?limit)\b`)
var authPattern = regexp.MustCompile(`(?i)\b(unauthori[sz]ed|forbidden|invalid.?api.?key)\b`)
var notFoundPattern = regexp.MustCompile(`(?i)\bnot.?found\b`)

// classify reduces an HTTP status plus response text into an ErrKind.
// Status, when it is 404, 401/403, 429, 4xx or 5xx, takes priority; any
// other status (0 for a transport-level failure with no response, or a
// 2xx/3xx) falls through to the text heuristic, and text that matches
// nothing is TRANSIENT.
func classify(status int, body string) ErrKind {
	switch {
	case status == 404:
		return ErrNotFound
	case status == 401 || status == 403:
		return ErrAuth
	case status == 429:
		return ErrQuota
	case status >= 500 && status < 600:
		return ErrTransient
	case status >= 400 && status < 500:
		return ErrMalformed
	}

	switch {
	case notFoundPattern.MatchString(body):
		return ErrNotFound
	case authPattern.MatchString(body):
		return ErrAuth
	case quotaPattern.MatchString(body):
		return ErrQuota
	case serverErrorPattern.MatchString(body):
		return ErrTransient
	default:
		return ErrTransient
	}
}

// ClassifyError exposes the text heuristic directly for callers (and
// tests) that only have a message string, matching the invariant check in
// spec §8 testable property 7: classifyError("status 500 from server")
// is TRANSIENT via the 5xx pattern, while "found 5 matches" does not
// match that pattern (it still ends up TRANSIENT through the default).
func ClassifyError(message string) ErrKind {
	return classify(0, message)
}
