// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across runtime/repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., a reused app or instance id).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidDefinition indicates an application definition failed structural validation.
	ErrInvalidDefinition = errors.New("invalid application definition")

	// ErrUnknownTable indicates a table that is neither declared nor seeded.
	ErrUnknownTable = errors.New("unknown table")
)
