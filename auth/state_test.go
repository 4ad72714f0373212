package auth_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Rajat-Ahuja1997/last-time/auth"
	"github.com/Rajat-Ahuja1997/last-time/sessions"
	"github.com/stretchr/testify/require"
)

func TestAuthState(t *testing.T) {
	s := sessions.Session{UserID: "u1", Provider: sessions.ProviderApple}

	require.Equal(t, "idle", auth.Idle().String())
	require.Equal(t, "loading(google)", auth.Loading(sessions.ProviderGoogle).String())
	require.Equal(t, "authenticated(apple/u1)", auth.Authenticated(s).String())
	require.Equal(t, "unauthenticated", auth.Unauthenticated().String())

	failed := auth.Failed(&auth.Error{Kind: auth.KindTimeout, Provider: sessions.ProviderApple})
	require.Equal(t, "error(timeout)", failed.String())
	require.Equal(t, sessions.ProviderApple, failed.Provider)
	require.Equal(t, "Sign-in failed, try again.", failed.Message())
	require.Empty(t, auth.Unauthenticated().Message())

	got, ok := auth.Authenticated(s).CurrentSession()
	require.True(t, ok)
	require.Equal(t, s, got)
	_, ok = failed.CurrentSession()
	require.False(t, ok)
}

func TestErrorKind(t *testing.T) {
	for _, k := range []auth.ErrorKind{auth.KindNetworkError, auth.KindTimeout} {
		require.True(t, k.Retryable(), k)
	}
	for _, k := range []auth.ErrorKind{
		auth.KindUserCancelled, auth.KindBackendRejected, auth.KindMalformedResponse,
		auth.KindConcurrentSignInRejected, auth.KindPersistenceError,
	} {
		require.False(t, k.Retryable(), k)
	}

	require.True(t, auth.KindScopeDenied.IsProviderKind())
	require.False(t, auth.KindInvalidCredential.IsProviderKind())
	require.NotEqual(t, auth.KindUserCancelled.UserMessage(), auth.KindBackendRejected.UserMessage())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("sign in: %w", &auth.Error{Kind: auth.KindNetworkError, Provider: sessions.ProviderGoogle, Err: cause})

	require.ErrorIs(t, err, cause)
	kind, ok := auth.KindOf(err)
	require.True(t, ok)
	require.Equal(t, auth.KindNetworkError, kind)
	require.Contains(t, err.Error(), "google: network_error: boom")

	_, ok = auth.KindOf(cause)
	require.False(t, ok)
}
