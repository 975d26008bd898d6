// Package window filters raw submissions by a metric's accepted time
// interval.
package window

import "github.com/learnward/metron/internal/domain/model"

// Filter returns the subsequence of subs whose timestamps fall inside w,
// boundaries included, preserving relative order. An empty result means
// the item contributes no score for that learner.
func Filter(subs []model.Submission, w model.TimeWindow) []model.Submission {
	out := make([]model.Submission, 0, len(subs))
	for _, s := range subs {
		if w.Contains(s.Timestamp) {
			out = append(out, s)
		}
	}
	return out
}
