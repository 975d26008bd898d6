// Package scheduler watches trigger events and drives recomputations,
// coalescing concurrent events for the same (metric, learner) key so at
// most one recomputation per key is ever in flight.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnward/metron/internal/adapters/mq/queue"
	"github.com/learnward/metron/internal/adapters/store"
	"github.com/learnward/metron/internal/domain/coverage"
	"github.com/learnward/metron/internal/domain/model"
	"github.com/learnward/metron/pkg/logger"
	"github.com/learnward/metron/pkg/metrics"
)

// Default scheduler configuration constants.
const (
	defaultWorkerCount       = 4
	defaultQueueSize         = 10000
	defaultCoalesceDelay     = 0 * time.Millisecond
	defaultDependencyTimeout = 5 * time.Second
	defaultErrorLogSize      = 128
	workerShutdownTimeout    = 5 * time.Second
)

// Recomputer runs the full pipeline for one (metric, learner) key.
type Recomputer interface {
	Recompute(ctx context.Context, metricID, learnerID string) error
}

// Key identifies one independent unit of recomputation.
type Key struct {
	MetricID  string
	LearnerID string
}

// runState is the per-key position in the idle/pending/running machine.
type runState int

const (
	stateIdle runState = iota
	statePending
	stateRunning
)

// entry tracks one key's state. changed is closed and replaced on every
// transition so waiters can re-check.
type entry struct {
	state   runState
	rerun   bool
	changed chan struct{}
}

// ErrorRecord is one failed recomputation kept for operators. Failed
// runs never touch stored scores; the record is their only trace.
type ErrorRecord struct {
	ID        string
	MetricID  string
	LearnerID string
	Err       string
	At        time.Time
}

// Scheduler implements the event-driven recompute loop and the
// submetric dependency guard consumed by the engine.
type Scheduler struct {
	engine      Recomputer
	metricStore store.MetricStore
	scoreStore  store.ScoreStore
	resolver    *coverage.Resolver

	mu     sync.Mutex
	states map[Key]*entry

	tasks queue.Queue

	workerCount       int
	queueSize         int
	coalesceDelay     time.Duration
	dependencyTimeout time.Duration

	errMu   sync.Mutex
	errs    []ErrorRecord
	errSize int

	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger logger.Logger
}

// New constructs a Scheduler over the given engine and stores.
func New(engine Recomputer, metricStore store.MetricStore, scoreStore store.ScoreStore, resolver *coverage.Resolver, opts ...Option) *Scheduler {
	s := &Scheduler{
		engine:            engine,
		metricStore:       metricStore,
		scoreStore:        scoreStore,
		resolver:          resolver,
		states:            make(map[Key]*entry),
		workerCount:       defaultWorkerCount,
		queueSize:         defaultQueueSize,
		coalesceDelay:     defaultCoalesceDelay,
		dependencyTimeout: defaultDependencyTimeout,
		errSize:           defaultErrorLogSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tasks = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	return s
}

func (s *Scheduler) log() logger.Logger {
	if s.logger == nil {
		s.logger = logger.Get().Named("scheduler")
	}
	return s.logger
}

// Start launches the worker goroutines.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	s.log().Info(ctx, "scheduler started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)
}

// Stop shuts the scheduler down, draining no further work.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	_ = s.tasks.Close()
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(workerShutdownTimeout):
		s.log().Warn(context.Background(), "worker shutdown timed out")
	}
}

// Notify maps a trigger event to the metrics it affects and schedules
// each affected (metric, learner) key. Metrics with autoCompute off are
// never scheduled here; they recompute only through RunNow.
func (s *Scheduler) Notify(ctx context.Context, ev model.TriggerEvent) {
	defs, err := s.metricStore.Definitions(ctx)
	if err != nil {
		s.log().Error(ctx, "list definitions failed", logger.Error(err))
		return
	}
	byID := make(map[string]*model.MetricDefinition, len(defs))
	for _, def := range defs {
		byID[def.ID] = def
	}

	for _, def := range defs {
		if !def.AutoCompute {
			continue
		}
		if s.qualifies(ctx, def, byID, ev) {
			s.Schedule(ctx, Key{MetricID: def.ID, LearnerID: ev.LearnerID})
		}
	}
}

// qualifies decides whether an event falls inside a definition's
// resolved coverage (submission) or references its submetric
// (score update).
func (s *Scheduler) qualifies(ctx context.Context, def *model.MetricDefinition, byID map[string]*model.MetricDefinition, ev model.TriggerEvent) bool {
	switch ev.Kind {
	case model.EventScoreUpdated:
		return def.Submetric != "" && def.Submetric == ev.MetricID

	case model.EventSubmission:
		if def.Submetric != "" {
			// Raw submissions feed the submetric; this metric reacts to
			// the submetric's score update instead.
			return false
		}
		items, err := s.resolver.Resolve(ctx, def.Level, def.Coverage)
		if err != nil {
			s.log().Warn(ctx, "coverage resolution failed during fan-out",
				logger.String("metricID", def.ID),
				logger.Error(err),
			)
			return false
		}
		i := sort.SearchStrings(items, ev.ItemID)
		return i < len(items) && items[i] == ev.ItemID

	default:
		return false
	}
}

// Schedule moves a key toward a recomputation: an idle key turns
// pending and is dispatched after the coalescing delay; a pending key
// absorbs the event; a running key is flagged for exactly one follow-up
// run once the current one finishes.
func (s *Scheduler) Schedule(ctx context.Context, k Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.ensureLocked(k)
	switch e.state {
	case stateIdle:
		s.transitionLocked(e, statePending)
		if s.coalesceDelay > 0 {
			time.AfterFunc(s.coalesceDelay, func() { s.dispatch(k) })
		} else {
			s.dispatchLocked(ctx, k, e)
		}
	case statePending:
		metrics.RecordEventCoalesced()
	case stateRunning:
		if !e.rerun {
			e.rerun = true
		}
		metrics.RecordEventCoalesced()
	}
}

// dispatch enqueues a pending key's task after the coalescing delay.
func (s *Scheduler) dispatch(k Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.states[k]
	if !ok || e.state != statePending {
		return
	}
	s.dispatchLocked(context.Background(), k, e)
}

// dispatchLocked hands a pending key to the workers. Must hold s.mu.
func (s *Scheduler) dispatchLocked(ctx context.Context, k Key, e *entry) {
	if !s.tasks.Enqueue(ctx, queue.Task{MetricID: k.MetricID, LearnerID: k.LearnerID}) {
		// Queue full or closed; drop back to idle so the next
		// qualifying event retries.
		s.transitionLocked(e, stateIdle)
		delete(s.states, k)
		s.log().Warn(ctx, "task queue rejected dispatch",
			logger.String("metricID", k.MetricID),
			logger.String("learnerID", k.LearnerID),
		)
		return
	}
	metrics.RecordRecomputeScheduled()
}

// worker consumes dispatched tasks until the context ends.
func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	taskCh := s.tasks.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-taskCh:
			if !ok {
				return
			}
			k := Key{MetricID: t.MetricID, LearnerID: t.LearnerID}
			if !s.claim(k) {
				// RunNow got there first; its finish handles any rerun.
				continue
			}
			err := s.engine.Recompute(ctx, k.MetricID, k.LearnerID)
			s.finish(ctx, k, err)
		}
	}
}

// claim moves a pending key to running. Returns false when the key is
// no longer pending.
func (s *Scheduler) claim(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.states[k]
	if !ok || e.state != statePending {
		return false
	}
	s.transitionLocked(e, stateRunning)
	return true
}

// finish completes a run: records failures, fans out score updates on
// success, and either re-dispatches a coalesced follow-up or returns
// the key to idle.
func (s *Scheduler) finish(ctx context.Context, k Key, runErr error) {
	if runErr != nil {
		s.recordError(k, runErr)
		s.log().Error(ctx, "recomputation failed",
			logger.String("metricID", k.MetricID),
			logger.String("learnerID", k.LearnerID),
			logger.Error(runErr),
		)
	}

	s.mu.Lock()
	e, ok := s.states[k]
	if ok {
		if e.rerun {
			e.rerun = false
			s.transitionLocked(e, statePending)
			s.dispatchLocked(ctx, k, e)
		} else {
			s.transitionLocked(e, stateIdle)
			delete(s.states, k)
		}
	}
	s.mu.Unlock()

	if runErr == nil {
		// A fresh score may feed higher-level metrics.
		s.Notify(ctx, model.TriggerEvent{
			Kind:      model.EventScoreUpdated,
			MetricID:  k.MetricID,
			LearnerID: k.LearnerID,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

// RunNow recomputes a key synchronously, bypassing the coalescing
// delay but still honoring the at-most-one-in-flight guard. This is
// the path for metrics with autoCompute off and for administrative
// refreshes.
func (s *Scheduler) RunNow(ctx context.Context, metricID, learnerID string) error {
	k := Key{MetricID: metricID, LearnerID: learnerID}
	for {
		s.mu.Lock()
		e := s.ensureLocked(k)
		if e.state == stateIdle {
			s.transitionLocked(e, stateRunning)
			s.mu.Unlock()
			break
		}
		ch := e.changed
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	err := s.engine.Recompute(ctx, metricID, learnerID)
	s.finish(ctx, k, err)
	return err
}

// EnsureCurrent implements the engine's submetric dependency guard: it
// waits out any in-flight run for the key and computes a first score if
// none is stored, all bounded by the dependency timeout.
func (s *Scheduler) EnsureCurrent(ctx context.Context, metricID, learnerID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.dependencyTimeout)
	defer cancel()

	k := Key{MetricID: metricID, LearnerID: learnerID}
	for {
		s.mu.Lock()
		e, ok := s.states[k]
		if !ok || e.state == stateIdle {
			s.mu.Unlock()
			break
		}
		ch := e.changed
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s/%s: %w", metricID, learnerID, ErrDependencyTimeout)
		}
	}

	if _, err := s.scoreStore.Get(ctx, metricID, learnerID, ""); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if err := s.RunNow(ctx, metricID, learnerID); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("computing %s/%s: %w", metricID, learnerID, ErrDependencyTimeout)
		}
		return err
	}
	return nil
}

// Errors returns a copy of the retained failure records, newest last.
func (s *Scheduler) Errors() []ErrorRecord {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	out := make([]ErrorRecord, len(s.errs))
	copy(out, s.errs)
	return out
}

// recordError appends to the bounded failure log.
func (s *Scheduler) recordError(k Key, err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.errs = append(s.errs, ErrorRecord{
		ID:        uuid.NewString(),
		MetricID:  k.MetricID,
		LearnerID: k.LearnerID,
		Err:       err.Error(),
		At:        time.Now(),
	})
	if len(s.errs) > s.errSize {
		s.errs = s.errs[len(s.errs)-s.errSize:]
	}
}

// ensureLocked returns the entry for k, creating an idle one if absent.
// Must hold s.mu.
func (s *Scheduler) ensureLocked(k Key) *entry {
	e, ok := s.states[k]
	if !ok {
		e = &entry{state: stateIdle, changed: make(chan struct{})}
		s.states[k] = e
	}
	return e
}

// transitionLocked moves an entry to a new state and wakes waiters.
// Must hold s.mu.
func (s *Scheduler) transitionLocked(e *entry, st runState) {
	e.state = st
	close(e.changed)
	e.changed = make(chan struct{})
}

// InFlight returns the number of keys currently pending or running.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
