package application

import "errors"

var (
	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("resource belongs to another user")

	// ErrInvalidInput wraps validation failures of commands.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable means an optional collaborator is not configured.
	ErrUnavailable = errors.New("collaborator not configured")
)
