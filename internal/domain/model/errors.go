package model

import "errors"

// Sentinel kinds for definition validation errors. These allow
// errors.Is/As from callers.
var (
	ErrInvalidLevel      = errors.New("unknown metric level")
	ErrInvalidMultiples  = errors.New("unknown multiples policy")
	ErrInvalidWindow     = errors.New("time filter start after end")
	ErrInvalidWeight     = errors.New("negative tag weight")
	ErrUnknownSubmetric  = errors.New("submetric references unknown definition")
	ErrSubmetricNotBelow = errors.New("submetric level not below metric level")
	ErrCyclicReference   = errors.New("cyclic metric reference")
	ErrMissingRule       = errors.New("metric has no rule name")
)
