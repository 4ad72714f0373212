package loopback_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Rajat-Ahuja1997/last-time/providers/loopback"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T, state string) *loopback.Listener {
	t.Helper()
	l, err := loopback.Listen(loopback.Config{}, state, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestListener_QueryCallback(t *testing.T) {
	l := listen(t, "state-1")
	require.True(t, strings.HasPrefix(l.RedirectURL(), "http://127.0.0.1:"))
	require.True(t, strings.HasSuffix(l.RedirectURL(), loopback.DefaultPath))

	t.Run("wrong state is rejected", func(t *testing.T) {
		resp, err := http.Get(l.RedirectURL() + "?state=other&code=abc")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	resp, err := http.Get(l.RedirectURL() + "?state=state-1&code=abc")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	require.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	values, err := l.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "abc", values.Get("code"))

	t.Run("second callback conflicts", func(t *testing.T) {
		resp, err := http.Get(l.RedirectURL() + "?state=state-1&code=def")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestListener_FormPostCallback(t *testing.T) {
	l := listen(t, "state-2")

	resp, err := http.PostForm(l.RedirectURL(), url.Values{
		"state":    {"state-2"},
		"code":     {"code-2"},
		"id_token": {"token-2"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	values, err := l.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "token-2", values.Get("id_token"))
}

func TestListener_WaitHonoursContext(t *testing.T) {
	l := listen(t, "state-3")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestListener_PublicURL(t *testing.T) {
	l, err := loopback.Listen(loopback.Config{PublicURL: "https://app.example.com/auth/apple"}, "s", zerolog.Nop())
	require.NoError(t, err)
	defer l.Close()
	require.Equal(t, "https://app.example.com/auth/apple", l.RedirectURL())
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}

func TestListen_RequiresState(t *testing.T) {
	_, err := loopback.Listen(loopback.Config{}, "", zerolog.Nop())
	require.Error(t, err)
}
