package config_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/Rajat-Ahuja1997/last-time/internal/config"
	apperrors "github.com/Rajat-Ahuja1997/last-time/internal/errors"
	"github.com/stretchr/testify/require"
)

func validVars() map[string]string {
	return map[string]string{
		"GOOGLE_CLIENT_ID": "client.apps.googleusercontent.com",
		"BACKEND_BASE_URL": "https://api.lasttime.example",
	}
}

func TestNewFromMap_Defaults(t *testing.T) {
	cfg, err := config.NewFromMap(validVars())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "Last Time", cfg.GetAppName())
	require.Equal(t, "DEV", cfg.GetEnv())
	require.Equal(t, "info", cfg.GetLogLevel())
	require.Equal(t, "127.0.0.1:0", cfg.GetCallbackAddr())
	require.Equal(t, 5*time.Minute, cfg.GetSignInTimeout())
	require.Equal(t, 30*time.Second, cfg.GetExchangeTimeout())
	require.Equal(t, config.StoreFile, cfg.GetSessionStore())
	require.Equal(t, "./data/session.json", cfg.GetSessionPath())

	key, err := cfg.GetSessionEncryptionKey()
	require.NoError(t, err)
	require.Nil(t, key)
}

func TestNewFromMap_Overrides(t *testing.T) {
	vars := validVars()
	key := make([]byte, 32)
	vars["SESSION_ENCRYPTION_KEY"] = base64.StdEncoding.EncodeToString(key)
	vars["SESSION_STORE"] = "sqlite"
	vars["SESSION_PATH"] = "/tmp/session.db"
	vars["SIGN_IN_TIMEOUT"] = "90s"
	vars["APPLE_BUNDLE_ID"] = "com.example.lasttime"
	vars["APPLE_REDIRECT_URL"] = "https://lasttime.example/apple/callback"

	cfg, err := config.NewFromMap(vars)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, config.StoreSQLite, cfg.GetSessionStore())
	require.Equal(t, 90*time.Second, cfg.GetSignInTimeout())
	require.Equal(t, "com.example.lasttime", cfg.GetAppleBundleID())
	require.Equal(t, "https://lasttime.example/apple/callback", cfg.GetAppleRedirectURL())

	got, err := cfg.GetSessionEncryptionKey()
	require.NoError(t, err)
	require.Equal(t, key, got)
}

func TestNewFromMap_BadDuration(t *testing.T) {
	vars := validVars()
	vars["EXCHANGE_TIMEOUT"] = "soon"
	_, err := config.NewFromMap(vars)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]string)
		wantErr error
		mention string
	}{
		{"no provider", func(v map[string]string) { delete(v, "GOOGLE_CLIENT_ID") }, apperrors.ErrMissingConfig, "GOOGLE_CLIENT_ID"},
		{"no backend", func(v map[string]string) { delete(v, "BACKEND_BASE_URL") }, apperrors.ErrMissingConfig, "BACKEND_BASE_URL"},
		{"relative backend", func(v map[string]string) { v["BACKEND_BASE_URL"] = "api/v1" }, apperrors.ErrInvalidConfig, "BACKEND_BASE_URL"},
		{"unknown store", func(v map[string]string) { v["SESSION_STORE"] = "keychain" }, apperrors.ErrInvalidConfig, "SESSION_STORE"},
		{"short key", func(v map[string]string) {
			v["SESSION_ENCRYPTION_KEY"] = base64.StdEncoding.EncodeToString([]byte("short"))
		}, apperrors.ErrInvalidConfig, "32 bytes"},
		{"negative timeout", func(v map[string]string) { v["SIGN_IN_TIMEOUT"] = "-1m" }, apperrors.ErrInvalidConfig, "SIGN_IN_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := validVars()
			tt.mutate(vars)
			cfg, err := config.NewFromMap(vars)
			require.NoError(t, err)

			err = cfg.Validate()
			require.ErrorIs(t, err, tt.wantErr)
			require.True(t, strings.Contains(err.Error(), tt.mention), err.Error())
		})
	}
}
