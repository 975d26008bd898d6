// Package app wires the engine, scheduler, and stores into the service
// the daemon and tests drive.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/learnward/metron/internal/adapters/store"
	"github.com/learnward/metron/internal/domain/aggregate"
	"github.com/learnward/metron/internal/domain/coverage"
	"github.com/learnward/metron/internal/domain/model"
	"github.com/learnward/metron/internal/domain/rules"
	"github.com/learnward/metron/internal/engine"
	"github.com/learnward/metron/internal/scheduler"
	"github.com/learnward/metron/pkg/logger"
)

// Service is the metric aggregation engine behind a narrow façade:
// feed it trigger events, ask it for scores.
type Service struct {
	mu sync.RWMutex

	// External collaborators
	catalog     store.ContentCatalog
	feed        store.SubmissionFeed
	metricStore store.MetricStore
	scoreStore  store.ScoreStore
	covCache    coverage.Cache

	// Core components
	resolver  *coverage.Resolver
	engine    *engine.Engine
	scheduler *scheduler.Scheduler

	// Configuration
	workerCount       int
	queueSize         int
	coalesceDelay     time.Duration
	dependencyTimeout time.Duration
	retryAttempts     int
	retryDelay        time.Duration
	missingTagWeight  float64
	absentAsZero      bool
	extraRules        map[string]rules.Func

	// State
	started bool

	logger logger.Logger
}

// New constructs a Service with in-memory backends by default.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:       4,
		queueSize:         10_000,
		coalesceDelay:     50 * time.Millisecond,
		dependencyTimeout: 5 * time.Second,
		retryAttempts:     3,
		retryDelay:        50 * time.Millisecond,
		extraRules:        make(map[string]rules.Func),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.catalog == nil {
		s.catalog = store.NewMemoryCatalog()
	}
	if s.feed == nil {
		s.feed = store.NewMemoryFeed()
	}
	if s.metricStore == nil {
		s.metricStore = store.NewMemoryMetricStore()
	}
	if s.scoreStore == nil {
		s.scoreStore = store.NewMemoryScoreStore()
	}
	return s
}

// Start validates the stored definitions, builds the pipeline, and
// launches the scheduler workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("app")
	}

	if err := s.validateDefinitions(ctx); err != nil {
		return err
	}

	var covOpts []coverage.Option
	if s.covCache != nil {
		covOpts = append(covOpts, coverage.WithCache(s.covCache))
	}
	s.resolver = coverage.NewResolver(s.catalog, covOpts...)

	evalOpts := make([]rules.Option, 0, len(s.extraRules))
	for name, fn := range s.extraRules {
		evalOpts = append(evalOpts, rules.WithRule(name, fn))
	}
	aggregator := aggregate.NewAggregator(
		aggregate.WithMissingTagWeight(s.missingTagWeight),
		aggregate.WithAbsentAsZero(s.absentAsZero),
	)

	s.engine = engine.New(s.metricStore, s.scoreStore, s.feed, s.resolver,
		engine.WithEvaluator(rules.NewEvaluator(evalOpts...)),
		engine.WithAggregator(aggregator),
		engine.WithRetry(s.retryAttempts, s.retryDelay),
		engine.WithLogger(s.logger.Named("engine")),
	)
	s.scheduler = scheduler.New(s.engine, s.metricStore, s.scoreStore, s.resolver,
		scheduler.WithWorkerCount(s.workerCount),
		scheduler.WithQueueSize(s.queueSize),
		scheduler.WithCoalesceDelay(s.coalesceDelay),
		scheduler.WithDependencyTimeout(s.dependencyTimeout),
		scheduler.WithLogger(s.logger.Named("scheduler")),
	)
	s.engine.SetEnsurer(s.scheduler)
	s.scheduler.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "metric engine started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop shuts the service down.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.scheduler.Stop()
	s.started = false
	s.logger.Info(context.Background(), "metric engine stopped")
}

// validateDefinitions runs the configuration-boundary checks over the
// whole definition set. A bad set refuses to start; cycles must never
// reach computation time.
func (s *Service) validateDefinitions(ctx context.Context) error {
	defs, err := s.metricStore.Definitions(ctx)
	if err != nil {
		return fmt.Errorf("load definitions: %w", err)
	}
	byID := make(map[string]*model.MetricDefinition, len(defs))
	for _, def := range defs {
		byID[def.ID] = def
	}
	if err := model.ValidateGraph(byID); err != nil {
		return fmt.Errorf("definition validation: %w", err)
	}
	return nil
}

// Notify feeds a trigger event to the scheduler. Only metrics with
// autoCompute react.
func (s *Service) Notify(ctx context.Context, ev model.TriggerEvent) {
	s.mu.RLock()
	sched, started := s.scheduler, s.started
	s.mu.RUnlock()
	if !started {
		return
	}
	sched.Notify(ctx, ev)
}

// Recompute runs one (metric, learner) key synchronously, the path for
// autoCompute=false metrics and administrative refreshes.
func (s *Service) Recompute(ctx context.Context, metricID, learnerID string) error {
	s.mu.RLock()
	sched, started := s.scheduler, s.started
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	return sched.RunNow(ctx, metricID, learnerID)
}

// Score returns the stored aggregate score for one (metric, learner)
// key.
func (s *Service) Score(ctx context.Context, metricID, learnerID string) (model.Score, error) {
	return s.scoreStore.Get(ctx, metricID, learnerID, "")
}

// Errors returns the retained recomputation failure records.
func (s *Service) Errors() []scheduler.ErrorRecord {
	s.mu.RLock()
	sched, started := s.scheduler, s.started
	s.mu.RUnlock()
	if !started {
		return nil
	}
	return sched.Errors()
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}
	if s.started {
		stats["inFlightKeys"] = s.scheduler.InFlight()
	}
	return stats
}
