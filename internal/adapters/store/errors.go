package store

import "errors"

// Sentinel kinds for store errors.
var (
	// ErrNotFound marks a lookup miss: unknown item, definition, or
	// not-yet-computed score.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable marks a transient backend failure. Callers retry a
	// bounded number of times before giving up.
	ErrUnavailable = errors.New("store unavailable")
)
