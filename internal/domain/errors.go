package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound         = errors.New("domain: not found")
	ErrUnauthorized     = errors.New("domain: unauthorized")
	ErrNoAccess         = errors.New("domain: no access to board")
	ErrInsufficientRole = errors.New("domain: insufficient role")
	ErrInvalidTarget    = errors.New("domain: invalid target")
	ErrBadRequest       = errors.New("domain: bad request")
	ErrRateLimited      = errors.New("domain: rate limited")
	ErrUnavailable      = errors.New("domain: temporarily unavailable")
)
