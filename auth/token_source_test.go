package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Rajat-Ahuja1997/last-time/auth"
	"github.com/Rajat-Ahuja1997/last-time/exchange"
	"github.com/Rajat-Ahuja1997/last-time/internal/utils"
	"github.com/Rajat-Ahuja1997/last-time/sessions"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func backendToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return tok
}

func TestTokenSource(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t)
	ts := f.coord.TokenSource()

	_, err := ts.Token()
	require.ErrorIs(t, err, auth.ErrNotAuthenticated)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := backendToken(t, exp)
	f.exchanger.SetResponse(exchange.Response{UserID: utils.Ptr("u1"), AccessToken: utils.Ptr(raw)})
	_, err = f.coord.SignIn(context.Background(), sessions.ProviderGoogle)
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	require.Equal(t, raw, tok.AccessToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.True(t, exp.Equal(tok.Expiry))

	// The activity client authenticates through the standard oauth2 transport
	gotAuthz := make(chan string, 1)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuthz <- r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer api.Close()
	resp, err := oauth2.NewClient(context.Background(), ts).Get(api.URL + "/activity/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "Bearer "+raw, <-gotAuthz)

	require.NoError(t, f.coord.SignOut(context.Background()))
	_, err = ts.Token()
	require.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestTokenSource_ExpiredAndOpaqueTokens(t *testing.T) {
	f := setupTestFixture(t)
	f.start(t)

	f.exchanger.SetResponse(exchange.Response{UserID: utils.Ptr("u1"), AccessToken: utils.Ptr(backendToken(t, time.Now().Add(-time.Minute)))})
	_, err := f.coord.SignIn(context.Background(), sessions.ProviderApple)
	require.NoError(t, err)
	_, err = f.coord.TokenSource().Token()
	require.ErrorIs(t, err, auth.ErrNotAuthenticated)

	f.exchanger.SetResponse(exchange.Response{UserID: utils.Ptr("u1"), AccessToken: utils.Ptr("opaque-token")})
	_, err = f.coord.SignIn(context.Background(), sessions.ProviderApple)
	require.NoError(t, err)
	tok, err := f.coord.TokenSource().Token()
	require.NoError(t, err)
	require.Equal(t, "opaque-token", tok.AccessToken)
	require.True(t, tok.Expiry.IsZero())

	f.exchanger.SetResponse(exchange.Response{UserID: utils.Ptr("u1")})
	_, err = f.coord.SignIn(context.Background(), sessions.ProviderApple)
	require.NoError(t, err)
	_, err = f.coord.TokenSource().Token()
	require.ErrorIs(t, err, auth.ErrNotAuthenticated)
}
