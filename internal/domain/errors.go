package domain

import "errors"

// Sentinel errors - use with errors.Is(). Services wrap these with
// fmt.Errorf("%w: ...") so the handler layer can map them to HTTP
// status codes while keeping the contextual message.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)
