package coverage

import "errors"

// Sentinel kinds for coverage errors.
var (
	// ErrUnknownItem marks an include list referencing an item the
	// catalog does not have at the metric's level. This is a
	// configuration error surfaced to the administrator.
	ErrUnknownItem = errors.New("unknown content item")

	// ErrUnknownCoverage marks a coverage variant the resolver does not
	// recognize.
	ErrUnknownCoverage = errors.New("unknown coverage kind")
)
