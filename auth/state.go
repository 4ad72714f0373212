package auth

import (
	"fmt"
	"time"

	"github.com/Rajat-Ahuja1997/last-time/sessions"
)

// Status tags the active AuthState variant.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusAuthenticated
	StatusUnauthenticated
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// AuthState is the single value observers read. Only the fields belonging to
// Status are set.
type AuthState struct {
	Status   Status
	Provider sessions.Provider // Loading, Authenticated and sign-in errors
	Session  sessions.Session  // Authenticated
	Err      *Error            // Error
	At       time.Time         // When the transition happened
}

func Idle() AuthState {
	return AuthState{Status: StatusIdle}
}

func Loading(provider sessions.Provider) AuthState {
	return AuthState{Status: StatusLoading, Provider: provider}
}

func Authenticated(s sessions.Session) AuthState {
	return AuthState{Status: StatusAuthenticated, Provider: s.Provider, Session: s}
}

func Unauthenticated() AuthState {
	return AuthState{Status: StatusUnauthenticated}
}

func Failed(err *Error) AuthState {
	return AuthState{Status: StatusError, Provider: err.Provider, Err: err}
}

// CurrentSession returns the session when authenticated.
func (s AuthState) CurrentSession() (sessions.Session, bool) {
	if s.Status != StatusAuthenticated {
		return sessions.Session{}, false
	}
	return s.Session, true
}

// Message is the user-facing text for an Error state and empty otherwise.
func (s AuthState) Message() string {
	if s.Status != StatusError || s.Err == nil {
		return ""
	}
	return s.Err.Kind.UserMessage()
}

func (s AuthState) String() string {
	switch s.Status {
	case StatusLoading:
		return fmt.Sprintf("loading(%s)", s.Provider)
	case StatusAuthenticated:
		return fmt.Sprintf("authenticated(%s/%s)", s.Session.Provider, s.Session.UserID)
	case StatusError:
		if s.Err != nil {
			return fmt.Sprintf("error(%s)", s.Err.Kind)
		}
	}
	return s.Status.String()
}

func (s AuthState) withTime(t time.Time) AuthState {
	s.At = t
	return s
}
