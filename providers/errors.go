package providers

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUserCancelled       = errors.New("user cancelled sign-in")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	ErrScopeDenied         = errors.New("requested scope denied")

	// ErrInvalidToken means the provider returned an identity token that failed
	// signature, audience or nonce verification.
	ErrInvalidToken = errors.New("provider returned an invalid identity token")
)

// Wrap attaches kind to err unless err is a context error, which is passed
// through so callers can tell timeouts apart from provider failures.
func Wrap(kind error, err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	if err == nil {
		return fmt.Errorf("%w: %s", kind, msg)
	}
	return fmt.Errorf("%w: %s: %v", kind, msg, err)
}
