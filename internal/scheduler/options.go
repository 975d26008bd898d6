package scheduler

import (
	"time"

	"github.com/learnward/metron/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithWorkerCount sets the number of recompute workers.
func WithWorkerCount(count int) Option {
	return func(s *Scheduler) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize bounds the dispatched-task queue.
func WithQueueSize(size int) Option {
	return func(s *Scheduler) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithCoalesceDelay sets the short delay between a key turning pending
// and its dispatch, widening the batching window for bursts. Zero
// dispatches immediately.
func WithCoalesceDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.coalesceDelay = d
		}
	}
}

// WithDependencyTimeout bounds how long a dependent metric waits for a
// submetric's recomputation.
func WithDependencyTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.dependencyTimeout = d
		}
	}
}

// WithErrorLogSize bounds the retained failure records.
func WithErrorLogSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.errSize = n
		}
	}
}

// WithLogger sets a custom logger for the scheduler.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}
