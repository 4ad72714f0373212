// Package google signs users in with Google using the authorization code flow
// with PKCE, redirected to a loopback listener.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Rajat-Ahuja1997/last-time/providers"
	"github.com/Rajat-Ahuja1997/last-time/providers/loopback"
	"github.com/Rajat-Ahuja1997/last-time/sessions"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const Issuer = "https://accounts.google.com"

// Scopes requested on every sign-in. Only the identity token is needed.
var Scopes = []string{oidc.ScopeOpenID, "email", "profile"}

var _ providers.Adapter = (*Adapter)(nil)

// IDTokenVerifier checks an identity token's signature, issuer, audience and expiry.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// Config holds the OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string // Installed-app clients may leave this empty
	Callback     loopback.Config
}

// Adapter implements providers.Adapter for Google.
type Adapter struct {
	cfg        Config
	opener     providers.Opener
	endpoint   oauth2.Endpoint
	issuer     string
	httpClient *http.Client
	logger     zerolog.Logger

	verifierLock sync.Mutex
	verifier     IDTokenVerifier
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithVerifier skips OIDC discovery and verifies tokens with v.
func WithVerifier(v IDTokenVerifier) Option {
	return func(a *Adapter) {
		a.verifier = v
	}
}

// WithEndpoint overrides Google's authorization and token endpoints.
func WithEndpoint(e oauth2.Endpoint) Option {
	return func(a *Adapter) {
		a.endpoint = e
	}
}

// WithIssuer overrides the issuer used for OIDC discovery.
func WithIssuer(issuer string) Option {
	return func(a *Adapter) {
		a.issuer = issuer
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		a.httpClient = c
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New creates the Google adapter. opener presents the consent page.
func New(cfg Config, opener providers.Opener, options ...Option) (*Adapter, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("[google.New] client id is required")
	}
	if opener == nil {
		return nil, errors.New("[google.New] opener is required")
	}
	a := &Adapter{
		cfg:        cfg,
		opener:     opener,
		endpoint:   endpoints.Google,
		issuer:     Issuer,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Provider() sessions.Provider {
	return sessions.ProviderGoogle
}

// googleCallback is the redirect Google sends back to the loopback listener.
type googleCallback struct {
	Code             string
	Scope            string
	Error            string
	ErrorDescription string
}

func parseCallback(values url.Values) googleCallback {
	return googleCallback{
		Code:             values.Get("code"),
		Scope:            values.Get("scope"),
		Error:            values.Get("error"),
		ErrorDescription: values.Get("error_description"),
	}
}

// googleClaims are the profile claims read from a verified identity token.
type googleClaims struct {
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// RequestCredential runs the consent flow and returns the verified identity token.
func (a *Adapter) RequestCredential(ctx context.Context) (sessions.Credential, error) {
	verifier, err := a.idTokenVerifier(ctx)
	if err != nil {
		return sessions.Credential{}, err
	}

	state := uuid.NewString()
	nonce := uuid.NewString()
	codeVerifier := oauth2.GenerateVerifier()

	listener, err := loopback.Listen(a.cfg.Callback, state, a.logger)
	if err != nil {
		return sessions.Credential{}, providers.Wrap(providers.ErrProviderUnavailable, err, "start callback listener")
	}
	defer listener.Close()

	oauthConfig := a.oauth2Config(listener.RedirectURL())
	authURL := oauthConfig.AuthCodeURL(state,
		oauth2.S256ChallengeOption(codeVerifier),
		oidc.Nonce(nonce),
	)

	a.logger.Debug().Str("provider", "google").Msg("presenting consent page")
	if err := a.opener(ctx, authURL); err != nil {
		return sessions.Credential{}, providers.Wrap(providers.ErrProviderUnavailable, err, "open consent page")
	}

	values, err := listener.Wait(ctx)
	if err != nil {
		return sessions.Credential{}, fmt.Errorf("waiting for google callback: %w", err)
	}
	callback := parseCallback(values)
	if callback.Error != "" {
		return sessions.Credential{}, callbackError(callback)
	}
	if callback.Code == "" {
		return sessions.Credential{}, providers.Wrap(providers.ErrProviderUnavailable, nil, "callback without authorization code")
	}

	token, err := oauthConfig.Exchange(
		context.WithValue(ctx, oauth2.HTTPClient, a.httpClient),
		callback.Code,
		oauth2.VerifierOption(codeVerifier),
	)
	if err != nil {
		return sessions.Credential{}, providers.Wrap(providers.ErrProviderUnavailable, err, "code exchange")
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return sessions.Credential{}, providers.Wrap(providers.ErrScopeDenied, nil, "no id_token in token response")
	}

	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return sessions.Credential{}, providers.Wrap(providers.ErrInvalidToken, err, "verify id_token")
	}
	if idToken.Nonce != nonce {
		return sessions.Credential{}, providers.Wrap(providers.ErrInvalidToken, nil, "nonce mismatch")
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return sessions.Credential{}, providers.Wrap(providers.ErrInvalidToken, err, "decode id_token claims")
	}

	return sessions.Credential{
		Provider: sessions.ProviderGoogle,
		Token:    rawIDToken,
		Hints: sessions.Hints{
			GivenName:  claims.GivenName,
			FamilyName: claims.FamilyName,
			Email:      claims.Email,
		},
	}, nil
}

func (a *Adapter) oauth2Config(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		Endpoint:     a.endpoint,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
	}
}

// idTokenVerifier discovers Google's signing keys once and reuses the verifier.
func (a *Adapter) idTokenVerifier(ctx context.Context) (IDTokenVerifier, error) {
	a.verifierLock.Lock()
	defer a.verifierLock.Unlock()

	if a.verifier != nil {
		return a.verifier, nil
	}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, a.httpClient), a.issuer)
	if err != nil {
		return nil, providers.Wrap(providers.ErrProviderUnavailable, err, "oidc discovery")
	}
	a.verifier = provider.Verifier(&oidc.Config{ClientID: a.cfg.ClientID})
	return a.verifier, nil
}

func callbackError(cb googleCallback) error {
	msg := cb.Error
	if cb.ErrorDescription != "" {
		msg += ": " + cb.ErrorDescription
	}
	switch cb.Error {
	case "access_denied":
		return providers.Wrap(providers.ErrUserCancelled, nil, msg)
	case "invalid_scope":
		return providers.Wrap(providers.ErrScopeDenied, nil, msg)
	default:
		return providers.Wrap(providers.ErrProviderUnavailable, nil, msg)
	}
}
