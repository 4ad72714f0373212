// Package apple signs users in with Apple. Apple posts the authorization code
// and identity token straight to the redirect URL (response_mode=form_post),
// so the client never holds an Apple client secret.
package apple

import (
	"context"
	"encoding/json"
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
)

const (
	Issuer  = "https://appleid.apple.com"
	AuthURL = "https://appleid.apple.com/auth/authorize"
)

// Scopes requested on every sign-in: full name and email.
var Scopes = []string{"name", "email"}

var _ providers.Adapter = (*Adapter)(nil)

// IDTokenVerifier checks an identity token's signature, issuer, audience and expiry.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// Config holds the Sign in with Apple registration.
type Config struct {
	BundleID string          // Client identifier registered with Apple; the token audience
	Callback loopback.Config // PublicURL must match a return URL registered with Apple
}

// Adapter implements providers.Adapter for Apple.
type Adapter struct {
	cfg        Config
	opener     providers.Opener
	authURL    string
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

// WithAuthURL overrides Apple's authorization endpoint.
func WithAuthURL(u string) Option {
	return func(a *Adapter) {
		a.authURL = u
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

// New creates the Apple adapter. opener presents the consent page.
func New(cfg Config, opener providers.Opener, options ...Option) (*Adapter, error) {
	if cfg.BundleID == "" {
		return nil, errors.New("[apple.New] bundle id is required")
	}
	if opener == nil {
		return nil, errors.New("[apple.New] opener is required")
	}
	a := &Adapter{
		cfg:        cfg,
		opener:     opener,
		authURL:    AuthURL,
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
	return sessions.ProviderApple
}

// appleCallback is the form Apple posts to the redirect URL.
type appleCallback struct {
	Code    string
	IDToken string
	Error   string
	User    *appleUser // Only present on the first authorization
}

type appleUser struct {
	Name struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"name"`
	Email string `json:"email"`
}

func parseCallback(values url.Values) (appleCallback, error) {
	cb := appleCallback{
		Code:    values.Get("code"),
		IDToken: values.Get("id_token"),
		Error:   values.Get("error"),
	}
	if raw := values.Get("user"); raw != "" {
		var u appleUser
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return cb, fmt.Errorf("decode user: %w", err)
		}
		cb.User = &u
	}
	return cb, nil
}

func (cb appleCallback) hints() sessions.Hints {
	if cb.User == nil {
		return sessions.Hints{}
	}
	return sessions.Hints{
		GivenName:  cb.User.Name.FirstName,
		FamilyName: cb.User.Name.LastName,
		Email:      cb.User.Email,
	}
}

// RequestCredential runs the consent flow and returns the verified identity token.
func (a *Adapter) RequestCredential(ctx context.Context) (sessions.Credential, error) {
	verifier, err := a.idTokenVerifier(ctx)
	if err != nil {
		return sessions.Credential{}, err
	}

	state := uuid.NewString()
	nonce := uuid.NewString()

	listener, err := loopback.Listen(a.cfg.Callback, state, a.logger)
	if err != nil {
		return sessions.Credential{}, providers.Wrap(providers.ErrProviderUnavailable, err, "start callback listener")
	}
	defer listener.Close()

	oauthConfig := &oauth2.Config{
		ClientID:    a.cfg.BundleID,
		Endpoint:    oauth2.Endpoint{AuthURL: a.authURL},
		RedirectURL: listener.RedirectURL(),
		Scopes:      Scopes,
	}
	authURL := oauthConfig.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_type", "code id_token"),
		oauth2.SetAuthURLParam("response_mode", "form_post"),
		oidc.Nonce(nonce),
	)

	a.logger.Debug().Str("provider", "apple").Msg("presenting consent page")
	if err := a.opener(ctx, authURL); err != nil {
		return sessions.Credential{}, providers.Wrap(providers.ErrProviderUnavailable, err, "open consent page")
	}

	values, err := listener.Wait(ctx)
	if err != nil {
		return sessions.Credential{}, fmt.Errorf("waiting for apple callback: %w", err)
	}
	callback, err := parseCallback(values)
	if err != nil {
		return sessions.Credential{}, providers.Wrap(providers.ErrProviderUnavailable, err, "malformed callback")
	}

	switch callback.Error {
	case "":
	case "user_cancelled_authorize":
		return sessions.Credential{}, providers.Wrap(providers.ErrUserCancelled, nil, callback.Error)
	case "invalid_scope":
		return sessions.Credential{}, providers.Wrap(providers.ErrScopeDenied, nil, callback.Error)
	default:
		return sessions.Credential{}, providers.Wrap(providers.ErrProviderUnavailable, nil, callback.Error)
	}
	if callback.IDToken == "" {
		return sessions.Credential{}, providers.Wrap(providers.ErrScopeDenied, nil, "no id_token in callback")
	}

	idToken, err := verifier.Verify(ctx, callback.IDToken)
	if err != nil {
		return sessions.Credential{}, providers.Wrap(providers.ErrInvalidToken, err, "verify id_token")
	}
	if idToken.Nonce != nonce {
		return sessions.Credential{}, providers.Wrap(providers.ErrInvalidToken, nil, "nonce mismatch")
	}

	return sessions.Credential{
		Provider:          sessions.ProviderApple,
		Token:             callback.IDToken,
		AuthorizationCode: callback.Code,
		Hints:             callback.hints(),
	}, nil
}

// idTokenVerifier discovers Apple's signing keys once and reuses the verifier.
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
	a.verifier = provider.Verifier(&oidc.Config{ClientID: a.cfg.BundleID})
	return a.verifier, nil
}
