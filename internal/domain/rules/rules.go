// Package rules evaluates a metric's named scoring rule against the
// resolved submissions for one (learner, item) pair.
package rules

import (
	"context"
	"fmt"
	"math"

	"github.com/learnward/metron/internal/domain/model"
)

// Score bounds shared by the percentage-shaped rules.
const (
	minScore = 0.0
	maxScore = 100.0
)

// Func computes a score from the resolved submissions and the rule
// parameters. It returns Absent when no eligible submission exists or a
// denominator would be zero; NaN must never escape.
type Func func(ctx context.Context, subs []model.Submission, params []float64) (model.Value, error)

// Evaluator dispatches by rule name over a closed registry. An
// unregistered name fails with ErrUnknownRule rather than silently
// defaulting.
type Evaluator struct {
	registry map[string]Func
}

// Option applies a configuration option to the Evaluator.
type Option func(*Evaluator)

// WithRule registers an additional rule under the given name,
// overriding any built-in of the same name.
func WithRule(name string, fn Func) Option {
	return func(e *Evaluator) {
		if name != "" && fn != nil {
			e.registry[name] = fn
		}
	}
}

// NewEvaluator creates an Evaluator with the built-in rule catalog.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		registry: map[string]Func{
			"score":      scoreRule,
			"pass":       passRule,
			"mean":       meanRule,
			"best":       bestRule,
			"attempts":   attemptsRule,
			"completion": completionRule,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate applies the named rule to the resolved submissions.
func (e *Evaluator) Evaluate(ctx context.Context, rule model.Rule, subs []model.Submission) (model.Value, error) {
	fn, ok := e.registry[rule.Name]
	if !ok {
		return model.Absent(), fmt.Errorf("rule %q: %w", rule.Name, ErrUnknownRule)
	}
	v, err := fn(ctx, subs, rule.Params)
	if err != nil {
		return model.Absent(), err
	}
	if score, present := v.Score(); present && (math.IsNaN(score) || math.IsInf(score, 0)) {
		return model.Absent(), nil
	}
	return v, nil
}

// Known reports whether a rule name is registered.
func (e *Evaluator) Known(name string) bool {
	_, ok := e.registry[name]
	return ok
}

// scoreRule takes the effective submission's value, optionally rescaled
// by params[0].
func scoreRule(_ context.Context, subs []model.Submission, params []float64) (model.Value, error) {
	if len(subs) == 0 {
		return model.Absent(), nil
	}
	scale := 1.0
	if len(params) > 0 {
		scale = params[0]
	}
	return model.Present(subs[len(subs)-1].Value * scale), nil
}

// passRule maps the effective submission's value to 100 when it meets
// the params[0] threshold and 0 otherwise.
func passRule(_ context.Context, subs []model.Submission, params []float64) (model.Value, error) {
	if len(subs) == 0 {
		return model.Absent(), nil
	}
	threshold := 0.0
	if len(params) > 0 {
		threshold = params[0]
	}
	if subs[len(subs)-1].Value >= threshold {
		return model.Present(maxScore), nil
	}
	return model.Present(minScore), nil
}

// meanRule averages all forwarded submissions; meant for pass-through
// metrics.
func meanRule(_ context.Context, subs []model.Submission, _ []float64) (model.Value, error) {
	if len(subs) == 0 {
		return model.Absent(), nil
	}
	var sum float64
	for _, s := range subs {
		sum += s.Value
	}
	return model.Present(sum / float64(len(subs))), nil
}

// bestRule takes the greatest value among forwarded submissions.
func bestRule(_ context.Context, subs []model.Submission, _ []float64) (model.Value, error) {
	if len(subs) == 0 {
		return model.Absent(), nil
	}
	best := subs[0].Value
	for _, s := range subs[1:] {
		if s.Value > best {
			best = s.Value
		}
	}
	return model.Present(best), nil
}

// attemptsRule counts forwarded submissions, capped at params[0] when
// given.
func attemptsRule(_ context.Context, subs []model.Submission, params []float64) (model.Value, error) {
	if len(subs) == 0 {
		return model.Absent(), nil
	}
	count := float64(len(subs))
	if len(params) > 0 && params[0] > 0 && count > params[0] {
		count = params[0]
	}
	return model.Present(count), nil
}

// completionRule scores the attempt count as a percentage of the
// params[0] expected count, capped at 100. A missing or zero expected
// count would divide by zero, so the rule signals Absent instead.
func completionRule(_ context.Context, subs []model.Submission, params []float64) (model.Value, error) {
	if len(subs) == 0 {
		return model.Absent(), nil
	}
	if len(params) == 0 || params[0] <= 0 {
		return model.Absent(), nil
	}
	pct := float64(len(subs)) / params[0] * maxScore
	if pct > maxScore {
		pct = maxScore
	}
	return model.Present(pct), nil
}
