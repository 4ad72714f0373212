package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// TokenSource exposes the current session's backend access token to API
// clients, for example through oauth2.NewClient. It reads the published state
// on every call, so a sign-out takes effect immediately.
func (c *Coordinator) TokenSource() oauth2.TokenSource {
	return sessionTokenSource{c: c}
}

type sessionTokenSource struct {
	c *Coordinator
}

func (ts sessionTokenSource) Token() (*oauth2.Token, error) {
	s, ok := ts.c.CurrentState().CurrentSession()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	if s.AccessToken == "" {
		return nil, fmt.Errorf("%w: session has no access token", ErrNotAuthenticated)
	}

	tok := &oauth2.Token{AccessToken: s.AccessToken, TokenType: "Bearer"}

	// The signature is the backend's business; only the expiry is read here.
	// Opaque tokens carry no expiry and are used until the backend rejects them.
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		tok.Expiry = claims.ExpiresAt.Time
	}
	if !tok.Valid() {
		return nil, fmt.Errorf("%w: access token expired at %s", ErrNotAuthenticated, tok.Expiry.Format(time.RFC3339))
	}
	return tok, nil
}
