package rules

import "errors"

// Sentinel kinds for rule evaluation errors.
var (
	// ErrUnknownRule marks a rule name with no registered evaluator.
	// This is a configuration error surfaced to the administrator.
	ErrUnknownRule = errors.New("unknown rule")
)
