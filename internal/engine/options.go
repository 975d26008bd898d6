package engine

import (
	"time"

	"github.com/learnward/metron/internal/domain/aggregate"
	"github.com/learnward/metron/internal/domain/rules"
	"github.com/learnward/metron/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithEvaluator replaces the built-in rule evaluator.
func WithEvaluator(e *rules.Evaluator) Option {
	return func(eng *Engine) {
		if e != nil {
			eng.evaluator = e
		}
	}
}

// WithAggregator replaces the default aggregator, e.g. to change the
// missing-tag-weight or absent-input policy.
func WithAggregator(a *aggregate.Aggregator) Option {
	return func(eng *Engine) {
		if a != nil {
			eng.aggregator = a
		}
	}
}

// WithRetry sets the bounded retry budget for transient store failures.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(eng *Engine) {
		if attempts > 0 {
			eng.retryAttempts = attempts
		}
		if delay > 0 {
			eng.retryDelay = delay
		}
	}
}

// WithClock overrides the epoch-millisecond clock, for tests.
func WithClock(now func() int64) Option {
	return func(eng *Engine) {
		if now != nil {
			eng.now = now
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(eng *Engine) {
		if l != nil {
			eng.logger = l
		}
	}
}
