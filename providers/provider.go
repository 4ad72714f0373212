// Package providers defines the contract every identity provider adapter
// implements. Adapters drive the provider's consent flow and hand back an
// opaque credential; they never create, store or publish sessions.
package providers

import (
	"context"

	"github.com/Rajat-Ahuja1997/last-time/sessions"
	"github.com/rs/zerolog"
)

// Adapter drives one provider's sign-in flow.
type Adapter interface {
	// Provider identifies the adapter
	Provider() sessions.Provider

	// RequestCredential presents the provider's consent surface and blocks until
	// the flow completes, fails, or ctx is done. Failures wrap ErrUserCancelled,
	// ErrProviderUnavailable, ErrScopeDenied or ErrInvalidToken; a finished ctx
	// is reported as the context error.
	RequestCredential(ctx context.Context) (sessions.Credential, error)
}

// Opener presents an authorization URL to the user, usually by launching the
// system browser.
type Opener func(ctx context.Context, authURL string) error

// LogOpener asks the user to visit the URL through the log.
func LogOpener(logger zerolog.Logger) Opener {
	return func(_ context.Context, authURL string) error {
		logger.Info().Str("url", authURL).Msg("Open this URL in a browser to continue signing in")
		return nil
	}
}
