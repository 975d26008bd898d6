package scheduler

import "errors"

// Sentinel kinds for scheduler errors.
var (
	// ErrDependencyTimeout marks a submetric recomputation that did not
	// complete inside the dependency timeout. Recoverable: the dependent
	// run is retried on the next qualifying event.
	ErrDependencyTimeout = errors.New("dependency timeout")
)
