package model

// Value is a score that may be absent. Absence of data is a valid
// aggregation outcome and must propagate distinctly from zero.
type Value struct {
	score   float64
	present bool
}

// Present wraps a concrete score.
func Present(score float64) Value {
	return Value{score: score, present: true}
}

// Absent is the no-data value.
func Absent() Value {
	return Value{}
}

// Score returns the underlying score and whether one is present.
func (v Value) Score() (float64, bool) {
	return v.score, v.present
}

// IsAbsent reports whether no score is present.
func (v Value) IsAbsent() bool {
	return !v.present
}

// Or returns the score, or fallback when absent.
func (v Value) Or(fallback float64) float64 {
	if v.present {
		return v.score
	}
	return fallback
}
