package model

import "fmt"

// Validate checks a single definition for field-level configuration
// errors. Graph-level checks (submetric existence, level ordering,
// cycles) live in ValidateGraph since they need the full set of
// definitions.
func Validate(def *MetricDefinition) error {
	if !def.Level.Known() {
		return fmt.Errorf("metric %q: %w", def.ID, ErrInvalidLevel)
	}
	if !def.Multiples.Known() {
		return fmt.Errorf("metric %q: %w", def.ID, ErrInvalidMultiples)
	}
	if def.Rule.Name == "" {
		return fmt.Errorf("metric %q: %w", def.ID, ErrMissingRule)
	}
	if def.TimeFilter.Start > def.TimeFilter.End {
		return fmt.Errorf("metric %q: %w", def.ID, ErrInvalidWindow)
	}
	for tag, weight := range def.TagWeights {
		if weight < 0 {
			return fmt.Errorf("metric %q tag %q: %w", def.ID, tag, ErrInvalidWeight)
		}
	}
	return nil
}

// ValidateGraph checks the submetric reference graph over a full set of
// definitions keyed by id. Every submetric must exist, sit strictly
// below its referrer in the level order, and the graph must be acyclic.
// Cycles are rejected here, at the configuration boundary, never at
// computation time.
func ValidateGraph(defs map[string]*MetricDefinition) error {
	for id, def := range defs {
		if err := Validate(def); err != nil {
			return err
		}
		if def.Submetric == "" {
			continue
		}
		sub, ok := defs[def.Submetric]
		if !ok {
			return fmt.Errorf("metric %q -> %q: %w", id, def.Submetric, ErrUnknownSubmetric)
		}
		if !sub.Level.Below(def.Level) {
			return fmt.Errorf("metric %q (%s) -> %q (%s): %w",
				id, def.Level, sub.ID, sub.Level, ErrSubmetricNotBelow)
		}
	}

	// Walk submetric chains; any repeat visit within one chain is a cycle.
	// The level-order check above already rules out most cycles, but a
	// corrupt store can still present one, so the walk stays.
	for id := range defs {
		seen := map[string]bool{}
		cur := id
		for cur != "" {
			if seen[cur] {
				return fmt.Errorf("metric %q: %w", id, ErrCyclicReference)
			}
			seen[cur] = true
			def, ok := defs[cur]
			if !ok {
				break
			}
			cur = def.Submetric
		}
	}
	return nil
}
