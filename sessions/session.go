package sessions

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies the identity provider that produced a credential or session.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderApple  Provider = "apple"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{ProviderGoogle, ProviderApple}

// ParseProvider converts user input such as "Google" into a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
	return p, nil
}

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderApple:
		return true
	}
	return false
}

func (p Provider) String() string {
	return string(p)
}

// Session is the application identity produced by a successful token exchange.
// Sessions are values: they are copied, never updated in place. Re-authentication
// replaces the whole Session.
type Session struct {
	UserID      string    // Stable opaque identifier issued by the backend
	Email       string    // May be empty when the provider withholds it
	DisplayName string    // Optional
	AvatarURL   string    // Optional
	Provider    Provider  // Provider that produced the session
	IssuedAt    time.Time // When the session was created (UTC)
	AccessToken string    // Optional backend bearer token for API calls
}

// Validate checks the invariants every stored or published Session must hold.
func (s Session) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return ErrEmptyUserID
	}
	if !s.Provider.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, s.Provider)
	}
	// RFC 3339 has four-digit years; both stores serialize through it
	if y := s.IssuedAt.UTC().Year(); y < 0 || y > 9999 {
		return fmt.Errorf("%w: %d", ErrIssuedAtRange, y)
	}
	return nil
}

// Equal reports whether both sessions carry the same identity in every field.
func (s Session) Equal(other Session) bool {
	return s.UserID == other.UserID &&
		s.Email == other.Email &&
		s.DisplayName == other.DisplayName &&
		s.AvatarURL == other.AvatarURL &&
		s.Provider == other.Provider &&
		s.IssuedAt.Equal(other.IssuedAt) &&
		s.AccessToken == other.AccessToken
}

// NormalizeTime strips the monotonic clock reading and converts to UTC so that
// a time survives serialization unchanged.
func NormalizeTime(t time.Time) time.Time {
	return t.Round(0).UTC()
}

// Hints carries profile data a provider hands out alongside its credential.
// Apple only relays the user's name on the first authorization.
type Hints struct {
	GivenName  string `json:"givenName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
	Email      string `json:"email,omitempty"`
}

// IsZero reports whether no hint is set.
func (h Hints) IsZero() bool {
	return h == Hints{}
}

// FullName joins the given and family names.
func (h Hints) FullName() string {
	return strings.TrimSpace(h.GivenName + " " + h.FamilyName)
}

// Credential is the opaque artifact returned by a provider flow. Only the token
// exchange client interprets it; it is never persisted.
type Credential struct {
	Provider          Provider
	Token             string // Provider identity token (JWT)
	AuthorizationCode string // Optional one-time code, when the provider issues one
	Hints             Hints
}

// String never includes the token.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{provider=%s}", c.Provider)
}
