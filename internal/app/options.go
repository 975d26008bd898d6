package app

import (
	"time"

	"github.com/learnward/metron/internal/adapters/store"
	"github.com/learnward/metron/internal/domain/coverage"
	"github.com/learnward/metron/internal/domain/rules"
	"github.com/learnward/metron/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithCatalog sets the content catalog backend.
func WithCatalog(c store.ContentCatalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithSubmissionFeed sets the submission feed backend.
func WithSubmissionFeed(f store.SubmissionFeed) Option {
	return func(s *Service) {
		if f != nil {
			s.feed = f
		}
	}
}

// WithMetricStore sets the metric definition store backend.
func WithMetricStore(m store.MetricStore) Option {
	return func(s *Service) {
		if m != nil {
			s.metricStore = m
		}
	}
}

// WithScoreStore sets the score store backend.
func WithScoreStore(sc store.ScoreStore) Option {
	return func(s *Service) {
		if sc != nil {
			s.scoreStore = sc
		}
	}
}

// WithCoverageCache installs a coverage-resolution cache.
func WithCoverageCache(c coverage.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.covCache = c
		}
	}
}

// WithWorkerCount sets the number of recompute workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize bounds the recompute task queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithCoalesceDelay sets the event batching window before dispatch.
func WithCoalesceDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.coalesceDelay = d
		}
	}
}

// WithDependencyTimeout bounds waits on submetric recomputations.
func WithDependencyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.dependencyTimeout = d
		}
	}
}

// WithStoreRetry bounds retries of transient store failures.
func WithStoreRetry(attempts int, delay time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.retryAttempts = attempts
		}
		if delay > 0 {
			s.retryDelay = delay
		}
	}
}

// WithMissingTagWeight sets the weight for tags absent from a metric's
// weight map.
func WithMissingTagWeight(w float64) Option {
	return func(s *Service) {
		if w >= 0 {
			s.missingTagWeight = w
		}
	}
}

// WithAbsentAsZero makes absent inputs join aggregation as zeros.
func WithAbsentAsZero(on bool) Option {
	return func(s *Service) {
		s.absentAsZero = on
	}
}

// WithRule registers an additional scoring rule.
func WithRule(name string, fn rules.Func) Option {
	return func(s *Service) {
		if name != "" && fn != nil {
			s.extraRules[name] = fn
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
