// Package collab defines the external collaborator interfaces the
// service depends on but does not implement (spec Non-goals: user
// account management, token issuance, and the title cross-reference
// database are owned by other systems). Each interface is the narrowest
// contract this service needs from that system.
package collab

import (
	"context"
	"time"
)

// UserConfig is a session's display preferences, as owned by the
// external account service.
type UserConfig struct {
	SessionID           string
	DisplayLocale       string
	ExcludedGenres      []string
	AdultContent        bool
	ShuffleCatalogOrder bool
	PosterServiceOn     bool
	UpdatedAt           time.Time
}

// UserConfigStore is the external collaborator the Config Cache fronts.
type UserConfigStore interface {
	UserConfig(ctx context.Context, sessionID string) (UserConfig, error)
}

// TokenValidator validates a bearer session token and, when valid,
// returns the session ID it authenticates. Revocation is handled locally
// by internal/session; TokenValidator only answers "is this token
// well-formed and currently issued".
type TokenValidator interface {
	Validate(ctx context.Context, token string) (sessionID string, err error)
}

// CrossRefEntry is a single title's cross-reference record (the
// canonical ID mapping between the catalog provider's IDs and this
// service's own ID space).
type CrossRefEntry struct {
	TitleID    string
	ExternalID string
	PosterURL  string
}

// CrossRefLookup is the external title cross-reference database. Lookups
// are miss-tolerant: a missing ID is not an error, it simply yields
// ok=false so enrichment can proceed without that title's cross-ref data.
type CrossRefLookup interface {
	Lookup(ctx context.Context, titleID string) (CrossRefEntry, bool, error)
	LookupMany(ctx context.Context, titleIDs []string) (map[string]CrossRefEntry, error)
}
