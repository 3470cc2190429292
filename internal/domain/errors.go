package domain

import "errors"

// Sentinel errors shared by services and storage. Adapters map them to
// transport status codes with errors.Is.
var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
	ErrBlocked   = errors.New("blocked")
	ErrInvalid   = errors.New("invalid request")
)
