package chaterrors

import "errors"

// Common errors
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrConflict              = errors.New("conflict")
	ErrEncryptionUnavailable = errors.New("encryption service unavailable")
	ErrMalformedFrame        = errors.New("malformed frame")
)

// Transport errors, returned when a frame cannot be handed to a connection.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// IsTransport reports whether err is a per-connection send failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrConnectionClosed) || errors.Is(err, ErrSendBufferFull)
}
