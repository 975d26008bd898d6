// Package resolve collapses a learner's repeated submissions for one
// content item into the effective submissions per the metric's
// multiples policy.
package resolve

import "github.com/learnward/metron/internal/domain/model"

// Effective applies the multiples policy to a time-filtered submission
// sequence in append order and returns zero or one submission, except
// under pass-through where the whole sequence is forwarded to the rule
// evaluator untouched.
//
// Tie-breaks: last takes the greatest timestamp with the latest append
// winning; first takes the smallest timestamp with the earliest append
// winning; max takes the greatest value with the smallest timestamp
// winning, so the earliest good attempt counts.
func Effective(subs []model.Submission, policy model.Multiples) []model.Submission {
	if len(subs) == 0 {
		return nil
	}

	switch policy {
	case model.MultiplesPassThrough:
		return subs

	case model.MultiplesLast:
		best := subs[0]
		for _, s := range subs[1:] {
			if s.Timestamp >= best.Timestamp {
				best = s
			}
		}
		return []model.Submission{best}

	case model.MultiplesFirst:
		best := subs[0]
		for _, s := range subs[1:] {
			if s.Timestamp < best.Timestamp {
				best = s
			}
		}
		return []model.Submission{best}

	case model.MultiplesMax:
		best := subs[0]
		for _, s := range subs[1:] {
			if s.Value > best.Value || (s.Value == best.Value && s.Timestamp < best.Timestamp) {
				best = s
			}
		}
		return []model.Submission{best}

	default:
		// Unknown policies are rejected at validation; fall back to the
		// full sequence rather than invent a collapse here.
		return subs
	}
}
