package sessions

import "errors"

var (
	ErrEmptyUserID     = errors.New("session user id is empty")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrIssuedAtRange   = errors.New("session issue time outside years 0-9999")

	// ErrPersistence wraps every failure of a Repo implementation.
	ErrPersistence = errors.New("session persistence failed")
)
