package chat

import "errors"

var (
	// ErrStorage reports that the persistence layer is unavailable or
	// rejected a write. Sends that fail with it were not recorded.
	ErrStorage = errors.New("storage error")

	// ErrMalformedRequest reports a request missing required fields. It is
	// raised before any side effect.
	ErrMalformedRequest = errors.New("malformed request")

	ErrNotFound     = errors.New("not found")
	ErrEmailTaken   = errors.New("email already in use")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// ErrSenderMismatch reports a sender id that differs from the identity
	// bound to the connection or token.
	ErrSenderMismatch = errors.New("sender does not match authenticated user")

	// ErrNotRegistered reports a channel request made before register.
	ErrNotRegistered = errors.New("connection is not registered")
)
