package google_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/Rajat-Ahuja1997/last-time/internal/testutil"
	"github.com/Rajat-Ahuja1997/last-time/providers"
	"github.com/Rajat-Ahuja1997/last-time/providers/google"
	"github.com/Rajat-Ahuja1997/last-time/sessions"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testClientID = "test-client.apps.googleusercontent.com"

// testFixture plays Google: the opener acts as the browser and the token
// server answers the code exchange.
type testFixture struct {
	issuer      *testutil.Issuer
	tokenServer *httptest.Server

	mu            sync.Mutex
	authParams    url.Values
	tokenResponse func(nonce string) map[string]any
	tokenStatus   int
	callback      func(authParams url.Values) url.Values
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		issuer:      testutil.NewIssuer(t, google.Issuer),
		tokenStatus: http.StatusOK,
	}
	f.tokenResponse = func(nonce string) map[string]any {
		return map[string]any{
			"access_token": "google-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token": f.issuer.Sign(t, testClientID, "google-sub-1", nonce, map[string]any{
				"email":       "user@gmail.com",
				"given_name":  "Test",
				"family_name": "User",
			}),
		}
	}
	f.callback = func(authParams url.Values) url.Values {
		return url.Values{"state": {authParams.Get("state")}, "code": {"auth-code-1"}}
	}

	f.tokenServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		authParams := f.authParams
		status := f.tokenStatus
		f.mu.Unlock()

		// PKCE: the verifier must hash to the challenge sent on the consent URL
		sum := sha256.Sum256([]byte(r.Form.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != authParams.Get("code_challenge") ||
			r.Form.Get("code") != "auth-code-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.tokenResponse(authParams.Get("nonce")))
	}))
	t.Cleanup(f.tokenServer.Close)
	return f
}

func (f *testFixture) opener(t *testing.T) providers.Opener {
	return func(ctx context.Context, authURL string) error {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		params := u.Query()

		f.mu.Lock()
		f.authParams = params
		f.mu.Unlock()

		resp, err := http.Get(params.Get("redirect_uri") + "?" + f.callback(params).Encode())
		require.NoError(t, err)
		resp.Body.Close()
		return nil
	}
}

func (f *testFixture) adapter(t *testing.T, opener providers.Opener) *google.Adapter {
	t.Helper()
	a, err := google.New(google.Config{ClientID: testClientID}, opener,
		google.WithVerifier(f.issuer.Verifier(testClientID)),
		google.WithEndpoint(oauth2.Endpoint{
			AuthURL:  "https://accounts.example.test/o/oauth2/auth",
			TokenURL: f.tokenServer.URL,
		}),
		google.WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	return a
}

func TestAdapter_RequestCredential_Success(t *testing.T) {
	f := setupTestFixture(t)
	a := f.adapter(t, f.opener(t))
	require.Equal(t, sessions.ProviderGoogle, a.Provider())

	cred, err := a.RequestCredential(context.Background())
	require.NoError(t, err)
	require.Equal(t, sessions.ProviderGoogle, cred.Provider)
	require.NotEmpty(t, cred.Token)
	require.Equal(t, "user@gmail.com", cred.Hints.Email)
	require.Equal(t, "Test User", cred.Hints.FullName())

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, testClientID, f.authParams.Get("client_id"))
	require.Equal(t, "openid email profile", f.authParams.Get("scope"))
	require.Equal(t, "S256", f.authParams.Get("code_challenge_method"))
	require.NotEmpty(t, f.authParams.Get("nonce"))
}

func TestAdapter_RequestCredential_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(t *testing.T, f *testFixture)
		wantErr error
	}{
		{
			name: "user denies consent",
			mutate: func(t *testing.T, f *testFixture) {
				f.callback = func(p url.Values) url.Values {
					return url.Values{"state": {p.Get("state")}, "error": {"access_denied"}}
				}
			},
			wantErr: providers.ErrUserCancelled,
		},
		{
			name: "scope rejected",
			mutate: func(t *testing.T, f *testFixture) {
				f.callback = func(p url.Values) url.Values {
					return url.Values{"state": {p.Get("state")}, "error": {"invalid_scope"}}
				}
			},
			wantErr: providers.ErrScopeDenied,
		},
		{
			name: "no id token granted",
			mutate: func(t *testing.T, f *testFixture) {
				f.tokenResponse = func(string) map[string]any {
					return map[string]any{"access_token": "a", "token_type": "Bearer"}
				}
			},
			wantErr: providers.ErrScopeDenied,
		},
		{
			name: "nonce mismatch",
			mutate: func(t *testing.T, f *testFixture) {
				f.tokenResponse = func(string) map[string]any {
					return map[string]any{
						"access_token": "a",
						"token_type":   "Bearer",
						"id_token":     f.issuer.Sign(t, testClientID, "sub", "replayed-nonce", nil),
					}
				}
			},
			wantErr: providers.ErrInvalidToken,
		},
		{
			name: "wrong audience",
			mutate: func(t *testing.T, f *testFixture) {
				f.tokenResponse = func(nonce string) map[string]any {
					return map[string]any{
						"access_token": "a",
						"token_type":   "Bearer",
						"id_token":     f.issuer.Sign(t, "someone-else", "sub", nonce, nil),
					}
				}
			},
			wantErr: providers.ErrInvalidToken,
		},
		{
			name: "token endpoint down",
			mutate: func(t *testing.T, f *testFixture) {
				f.tokenStatus = http.StatusServiceUnavailable
			},
			wantErr: providers.ErrProviderUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			tt.mutate(t, f)
			a := f.adapter(t, f.opener(t))

			_, err := a.RequestCredential(context.Background())
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAdapter_RequestCredential_AbandonedFlow(t *testing.T) {
	f := setupTestFixture(t)
	a := f.adapter(t, func(context.Context, string) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := a.RequestCredential(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, providers.ErrProviderUnavailable)
}

func TestAdapter_DiscoveryFailure(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	defer down.Close()

	a, err := google.New(google.Config{ClientID: testClientID}, func(context.Context, string) error {
		t.Fatal("consent page must not open when discovery fails")
		return nil
	}, google.WithIssuer(down.URL), google.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = a.RequestCredential(context.Background())
	require.ErrorIs(t, err, providers.ErrProviderUnavailable)
}

func TestNew_Validation(t *testing.T) {
	_, err := google.New(google.Config{}, providers.LogOpener(zerolog.Nop()))
	require.Error(t, err)

	_, err = google.New(google.Config{ClientID: testClientID}, nil)
	require.Error(t, err)
}
