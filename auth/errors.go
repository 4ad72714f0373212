package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/Rajat-Ahuja1997/last-time/exchange"
	apperrors "github.com/Rajat-Ahuja1997/last-time/internal/errors"
	"github.com/Rajat-Ahuja1997/last-time/providers"
	"github.com/Rajat-Ahuja1997/last-time/sessions"
)

var (
	// ErrNotStarted is returned by SignIn and SignOut before Start has seeded the state.
	ErrNotStarted = errors.New("coordinator not started")

	// ErrNotAuthenticated is returned by the token source when there is no current session.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrAttemptSuperseded is the cause reported to a SignIn caller whose
	// attempt was abandoned by a SignOut.
	ErrAttemptSuperseded = errors.New("sign-in superseded by sign-out")
)

// ErrorKind classifies every failure the coordinator publishes.
type ErrorKind string

const (
	// Provider flow failures
	KindUserCancelled       ErrorKind = "user_cancelled"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindScopeDenied         ErrorKind = "scope_denied"

	// Sign-in failures
	KindInvalidCredential        ErrorKind = "invalid_credential"
	KindNetworkError             ErrorKind = "network_error"
	KindBackendRejected          ErrorKind = "backend_rejected"
	KindMalformedResponse        ErrorKind = "malformed_response"
	KindTimeout                  ErrorKind = "timeout"
	KindConcurrentSignInRejected ErrorKind = "concurrent_sign_in_rejected"

	KindPersistenceError ErrorKind = "persistence_error"
)

// IsProviderKind reports whether k came from the provider's own flow.
func (k ErrorKind) IsProviderKind() bool {
	switch k {
	case KindUserCancelled, KindProviderUnavailable, KindScopeDenied:
		return true
	}
	return false
}

// Retryable reports whether a UI may offer an immediate retry.
func (k ErrorKind) Retryable() bool {
	return k == KindNetworkError || k == KindTimeout
}

// UserMessage is the text shown to the user for k.
func (k ErrorKind) UserMessage() string {
	switch k {
	case KindUserCancelled:
		return "Sign-in was cancelled."
	case KindProviderUnavailable:
		return "The sign-in provider is unavailable right now."
	case KindScopeDenied:
		return "Sign-in needs permission to read your name and email."
	case KindPersistenceError:
		return "Your sign-in could not be saved on this device."
	default:
		return "Sign-in failed, try again."
	}
}

// Error is the typed failure returned by the coordinator and carried by an
// Error state.
type Error struct {
	Kind     ErrorKind
	Provider sessions.Provider // Empty for failures outside a sign-in attempt
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Provider != "" {
		msg = e.Provider.String() + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var authErr *Error
	if apperrors.As(err, &authErr) {
		return authErr.Kind, true
	}
	return "", false
}

type stage int

const (
	stageProvider stage = iota
	stageExchange
	stagePersist
)

// classify maps a leaf failure onto an ErrorKind. Unrecognized errors fall
// back to the kind of the stage they came from.
func classify(st stage, err error) ErrorKind {
	switch {
	case apperrors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case apperrors.Is(err, context.Canceled):
		return KindUserCancelled
	case apperrors.Is(err, providers.ErrUserCancelled):
		return KindUserCancelled
	case apperrors.Is(err, providers.ErrScopeDenied):
		return KindScopeDenied
	case apperrors.Is(err, providers.ErrProviderUnavailable):
		return KindProviderUnavailable
	case apperrors.Is(err, providers.ErrInvalidToken), apperrors.Is(err, exchange.ErrInvalidCredential):
		return KindInvalidCredential
	case apperrors.Is(err, exchange.ErrNetwork):
		return KindNetworkError
	case apperrors.Is(err, exchange.ErrBackendRejected):
		return KindBackendRejected
	case apperrors.Is(err, exchange.ErrMalformedResponse):
		return KindMalformedResponse
	case apperrors.Is(err, sessions.ErrPersistence):
		return KindPersistenceError
	}

	switch st {
	case stageProvider:
		return KindProviderUnavailable
	case stageExchange:
		return KindNetworkError
	default:
		return KindPersistenceError
	}
}

func newError(kind ErrorKind, provider sessions.Provider, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

func persistenceError(op string, err error) *Error {
	return newError(KindPersistenceError, "", fmt.Errorf("%s: %w", op, err))
}
