package memory

import "errors"

var (
	// ErrInvalidUserID indicates a user ID outside the allowed charset
	// or length.
	ErrInvalidUserID = errors.New("memory: invalid user id")
	// ErrStore wraps persistence failures.
	ErrStore = errors.New("memory: store error")
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("memory: not found")
)
