// Package aggregate combines item-level scores into one score at the
// metric's own level, optionally weighted by tag.
package aggregate

import "github.com/learnward/metron/internal/domain/model"

// Input is one item's contribution to an aggregation: the item-level
// score (or a submetric's stored score) with its optional tag.
type Input struct {
	ItemID string
	Tag    string
	Value  model.Value
}

// Aggregator computes weighted or unweighted means over inputs. The
// two policy knobs the backing schema leaves open are explicit here:
// the weight applied to tags missing from the weight map, and whether
// absent inputs join the mean as zeros or are excluded.
type Aggregator struct {
	missingTagWeight float64
	absentAsZero     bool
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithMissingTagWeight sets the weight applied to inputs whose tag has
// no entry in the metric's weight map. The default of 0 excludes such
// inputs from both the numerator and the denominator.
func WithMissingTagWeight(w float64) Option {
	return func(a *Aggregator) {
		if w >= 0 {
			a.missingTagWeight = w
		}
	}
}

// WithAbsentAsZero makes absent inputs participate in the mean as
// zero-valued contributions instead of being excluded.
func WithAbsentAsZero(on bool) Option {
	return func(a *Aggregator) {
		a.absentAsZero = on
	}
}

// NewAggregator creates an Aggregator with the information-preserving
// defaults: missing tag weight 0, absent inputs excluded.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate combines the inputs into one value. With a weight map each
// present input contributes value*weight to the numerator and weight to
// the denominator; the result is the weighted mean over the weights
// actually applied, not the item count. Without a weight map the result
// is the arithmetic mean over present inputs. When nothing contributes,
// the result is Absent, never zero.
func (a *Aggregator) Aggregate(inputs []Input, tagWeights map[string]float64) model.Value {
	var sum, weightSum float64
	contributed := false

	for _, in := range inputs {
		score, present := in.Value.Score()
		if !present {
			if !a.absentAsZero {
				continue
			}
			score = 0
		}

		weight := 1.0
		if tagWeights != nil {
			w, ok := tagWeights[in.Tag]
			if !ok {
				w = a.missingTagWeight
			}
			weight = w
		}
		if weight == 0 {
			continue
		}

		sum += score * weight
		weightSum += weight
		contributed = true
	}

	if !contributed || weightSum == 0 {
		return model.Absent()
	}
	return model.Present(sum / weightSum)
}
