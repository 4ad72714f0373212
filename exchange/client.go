// Package exchange trades a provider credential for an application session
// with the backend identity service. It never retries; retry policy belongs
// to the caller.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/Rajat-Ahuja1997/last-time/internal/errors"
	"github.com/Rajat-Ahuja1997/last-time/internal/utils"
	"github.com/Rajat-Ahuja1997/last-time/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	ExchangePath = "/auth/exchange"
	SignOutPath  = "/auth/signout"

	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// Request is the body posted to the exchange endpoint.
type Request struct {
	Provider          string          `json:"provider"`
	Credential        string          `json:"credential"`
	AuthorizationCode string          `json:"authorizationCode,omitempty"`
	Hints             *sessions.Hints `json:"hints,omitempty"`
}

// Response is the success body of the exchange endpoint.
type Response struct {
	UserID      *string `json:"userId"`
	Email       *string `json:"email"`
	DisplayName *string `json:"displayName,omitempty"`
	AvatarURL   *string `json:"avatarUrl,omitempty"`
	AccessToken *string `json:"accessToken,omitempty"`
}

// Client talks to the backend identity service.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	nowTime    func() time.Time
	logger     zerolog.Logger
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// WithHTTPClient replaces the default client, whose timeout is DefaultTimeout.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, apperrors.Wrapf(apperrors.ErrMissingConfig, "[exchange.New] backend base url")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, apperrors.Wrapf(err, "[exchange.New] parse backend base url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidConfig, "[exchange.New] backend base url %q is not absolute", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		nowTime:    time.Now,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Exchange sends cred for provider to the backend and returns the resulting
// Session. A finished ctx is returned as the context error, unclassified.
func (c *Client) Exchange(ctx context.Context, provider sessions.Provider, cred sessions.Credential) (sessions.Session, error) {
	if !provider.Valid() {
		return sessions.Session{}, fmt.Errorf("%w: unsupported provider %q", ErrInvalidCredential, provider)
	}
	if cred.Provider != provider {
		return sessions.Session{}, fmt.Errorf("%w: credential issued by %q, not %q", ErrInvalidCredential, cred.Provider, provider)
	}
	if strings.TrimSpace(cred.Token) == "" {
		return sessions.Session{}, fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}

	body := Request{
		Provider:          provider.String(),
		Credential:        cred.Token,
		AuthorizationCode: cred.AuthorizationCode,
	}
	if !cred.Hints.IsZero() {
		body.Hints = &cred.Hints
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return sessions.Session{}, fmt.Errorf("%w: encode request: %v", ErrInvalidCredential, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(ExchangePath), bytes.NewReader(payload))
	if err != nil {
		return sessions.Session{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return sessions.Session{}, c.transportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn().Str("provider", provider.String()).Int("status", resp.StatusCode).Msg("backend rejected credential")
		return sessions.Session{}, fmt.Errorf("%w: status %d: %s", ErrBackendRejected, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return sessions.Session{}, ctxErr
		}
		return sessions.Session{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(utils.Value(out.UserID)) == "" {
		return sessions.Session{}, fmt.Errorf("%w: missing userId", ErrMalformedResponse)
	}

	return sessions.Session{
		UserID:      utils.Value(out.UserID),
		Email:       utils.Value(out.Email),
		DisplayName: utils.Value(out.DisplayName),
		AvatarURL:   utils.Value(out.AvatarURL),
		Provider:    provider,
		IssuedAt:    sessions.NormalizeTime(c.nowTime()),
		AccessToken: utils.Value(out.AccessToken),
	}, nil
}

// Revoke ends the backend session behind s. Sessions without an access token
// have nothing to revoke.
func (c *Client) Revoke(ctx context.Context, s sessions.Session) error {
	if s.AccessToken == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(SignOutPath), http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportErr(ctx, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: sign-out status %d", ErrBackendRejected, resp.StatusCode)
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.JoinPath(path).String()
}

// transportErr keeps caller cancellation distinguishable from network failure.
func (c *Client) transportErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
