package exchange

import "errors"

var (
	// ErrInvalidCredential is returned before any request is sent when the
	// credential cannot be exchanged (empty token, unknown or mismatched provider).
	ErrInvalidCredential = errors.New("invalid credential")
	ErrNetwork           = errors.New("backend unreachable")
	ErrBackendRejected   = errors.New("backend rejected credential")
	ErrMalformedResponse = errors.New("malformed backend response")
)
