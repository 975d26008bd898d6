// Package engine runs the full recomputation pipeline for one
// (metric, learner) key: coverage resolution, time filtering,
// submission resolution, rule evaluation, and tag-weighted aggregation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/learnward/metron/internal/adapters/store"
	"github.com/learnward/metron/internal/domain/aggregate"
	"github.com/learnward/metron/internal/domain/coverage"
	"github.com/learnward/metron/internal/domain/model"
	"github.com/learnward/metron/internal/domain/resolve"
	"github.com/learnward/metron/internal/domain/rules"
	"github.com/learnward/metron/internal/domain/window"
	"github.com/learnward/metron/pkg/logger"
	"github.com/learnward/metron/pkg/metrics"
)

// Default engine configuration constants.
const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 50 * time.Millisecond
)

// Ensurer brings a submetric's stored score up to date before the
// engine reads it. The scheduler implements this with its per-key
// in-flight guard and dependency timeout.
type Ensurer interface {
	EnsureCurrent(ctx context.Context, metricID, learnerID string) error
}

// Engine computes scores. All store reads on the critical path are
// bounded retries; a failed run never touches previously stored scores.
type Engine struct {
	metricStore store.MetricStore
	scoreStore  store.ScoreStore
	feed        store.SubmissionFeed
	resolver    *coverage.Resolver
	evaluator   *rules.Evaluator
	aggregator  *aggregate.Aggregator
	ensurer     Ensurer

	retryAttempts int
	retryDelay    time.Duration
	now           func() int64

	logger logger.Logger
}

// New constructs an Engine over the given stores.
func New(metricStore store.MetricStore, scoreStore store.ScoreStore, feed store.SubmissionFeed, resolver *coverage.Resolver, opts ...Option) *Engine {
	e := &Engine{
		metricStore:   metricStore,
		scoreStore:    scoreStore,
		feed:          feed,
		resolver:      resolver,
		evaluator:     rules.NewEvaluator(),
		aggregator:    aggregate.NewAggregator(),
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
		now:           func() int64 { return time.Now().UnixMilli() },
		logger:        nil, // set lazily on first use
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetEnsurer installs the submetric dependency guard. The scheduler is
// constructed after the engine, so this binding happens at wiring time.
func (e *Engine) SetEnsurer(ensurer Ensurer) {
	e.ensurer = ensurer
}

func (e *Engine) log() logger.Logger {
	if e.logger == nil {
		e.logger = logger.Get().Named("engine")
	}
	return e.logger
}

// Recompute rebuilds the stored score for one (metric, learner) key
// wholesale. On any failure the previously stored score is left
// untouched.
func (e *Engine) Recompute(ctx context.Context, metricID, learnerID string) error {
	runID := uuid.NewString()
	start := time.Now()
	defer func() {
		metrics.RecordRecomputeLatency(float64(time.Since(start).Milliseconds()))
	}()

	def, err := e.loadDefinition(ctx, metricID)
	if err != nil {
		metrics.RecordRecomputeFailure()
		return err
	}
	if err := model.Validate(def); err != nil {
		metrics.RecordRecomputeFailure()
		return fmt.Errorf("run %s: %w", runID, err)
	}

	items, err := e.resolveCoverage(ctx, def)
	if err != nil {
		metrics.RecordRecomputeFailure()
		return fmt.Errorf("run %s: %w", runID, err)
	}

	var inputs []aggregate.Input
	var itemScores []model.Score
	if def.Submetric != "" {
		inputs, err = e.submetricInputs(ctx, def, learnerID, items)
	} else {
		inputs, itemScores, err = e.submissionInputs(ctx, def, learnerID, items)
	}
	if err != nil {
		metrics.RecordRecomputeFailure()
		return fmt.Errorf("run %s: %w", runID, err)
	}

	value := e.aggregator.Aggregate(inputs, def.TagWeights)
	computedAt := e.now()

	batch := append(itemScores, model.Score{
		MetricID:   def.ID,
		LearnerID:  learnerID,
		Value:      value,
		ComputedAt: computedAt,
	})
	if err := e.withRetry(ctx, func() error {
		return e.scoreStore.UpsertBatch(ctx, batch)
	}); err != nil {
		metrics.RecordRecomputeFailure()
		return fmt.Errorf("run %s: store scores: %w", runID, err)
	}
	if err := e.withRetry(ctx, func() error {
		return e.metricStore.TouchLastUpdated(ctx, def.ID, computedAt)
	}); err != nil {
		metrics.RecordRecomputeFailure()
		return fmt.Errorf("run %s: touch definition: %w", runID, err)
	}

	metrics.RecordRecomputeSuccess()
	e.log().Debug(ctx, "recomputed score",
		logger.String("runID", runID),
		logger.String("metricID", def.ID),
		logger.String("learnerID", learnerID),
		logger.Float64("score", value.Or(-1)),
		logger.Any("absent", value.IsAbsent()),
	)
	return nil
}

// loadDefinition fetches the definition with bounded retries.
func (e *Engine) loadDefinition(ctx context.Context, metricID string) (*model.MetricDefinition, error) {
	var def *model.MetricDefinition
	err := e.withRetry(ctx, func() error {
		var err error
		def, err = e.metricStore.Definition(ctx, metricID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load definition %q: %w", metricID, err)
	}
	return def, nil
}

// resolveCoverage resolves the item set the metric aggregates over. A
// metric with a submetric covers items at the submetric's level.
func (e *Engine) resolveCoverage(ctx context.Context, def *model.MetricDefinition) ([]string, error) {
	level := def.Level
	if def.Submetric != "" {
		sub, err := e.loadDefinition(ctx, def.Submetric)
		if err != nil {
			return nil, err
		}
		level = sub.Level
	}
	items, err := e.resolver.Resolve(ctx, level, def.Coverage)
	if err != nil {
		return nil, fmt.Errorf("resolve coverage for %q: %w", def.ID, err)
	}
	return items, nil
}

// submissionInputs evaluates the rule over raw submissions for every
// covered item, returning aggregation inputs plus the per-item scores
// stored for consumption by higher-level metrics.
func (e *Engine) submissionInputs(ctx context.Context, def *model.MetricDefinition, learnerID string, items []string) ([]aggregate.Input, []model.Score, error) {
	inputs := make([]aggregate.Input, 0, len(items))
	itemScores := make([]model.Score, 0, len(items))
	computedAt := e.now()

	for _, itemID := range items {
		var subs []model.Submission
		if err := e.withRetry(ctx, func() error {
			var err error
			subs, err = e.feed.Submissions(ctx, learnerID, itemID)
			return err
		}); err != nil {
			return nil, nil, fmt.Errorf("read submissions for item %q: %w", itemID, err)
		}

		subs = window.Filter(subs, def.TimeFilter)
		eff := resolve.Effective(subs, def.Multiples)

		evalStart := time.Now()
		value, err := e.evaluator.Evaluate(ctx, def.Rule, eff)
		metrics.RecordRuleEvalLatency(float64(time.Since(evalStart).Microseconds()) / 1000.0)
		if err != nil {
			return nil, nil, fmt.Errorf("evaluate item %q: %w", itemID, err)
		}

		tag := ""
		if len(eff) > 0 {
			tag = eff[len(eff)-1].Tag
		}
		inputs = append(inputs, aggregate.Input{ItemID: itemID, Tag: tag, Value: value})
		itemScores = append(itemScores, model.Score{
			MetricID:   def.ID,
			LearnerID:  learnerID,
			ItemID:     itemID,
			Value:      value,
			Tag:        tag,
			ComputedAt: computedAt,
		})
	}
	return inputs, itemScores, nil
}

// submetricInputs reads the submetric's stored per-item scores for the
// covered items, after making sure they are current. Items the
// submetric has never scored contribute Absent.
func (e *Engine) submetricInputs(ctx context.Context, def *model.MetricDefinition, learnerID string, items []string) ([]aggregate.Input, error) {
	if e.ensurer != nil {
		if err := e.ensurer.EnsureCurrent(ctx, def.Submetric, learnerID); err != nil {
			return nil, fmt.Errorf("submetric %q: %w", def.Submetric, err)
		}
	} else {
		// No scheduler bound; recompute inline. The validation boundary
		// guarantees the submetric chain is acyclic and finite.
		if err := e.Recompute(ctx, def.Submetric, learnerID); err != nil {
			return nil, fmt.Errorf("submetric %q: %w", def.Submetric, err)
		}
	}

	var scores map[string]model.Score
	if err := e.withRetry(ctx, func() error {
		var err error
		scores, err = e.scoreStore.ItemScores(ctx, def.Submetric, learnerID, items)
		return err
	}); err != nil {
		return nil, fmt.Errorf("read submetric scores: %w", err)
	}

	inputs := make([]aggregate.Input, 0, len(items))
	for _, itemID := range items {
		if sc, ok := scores[itemID]; ok {
			inputs = append(inputs, aggregate.Input{ItemID: itemID, Tag: sc.Tag, Value: sc.Value})
		} else {
			inputs = append(inputs, aggregate.Input{ItemID: itemID, Value: model.Absent()})
		}
	}
	return inputs, nil
}

// withRetry runs op, retrying transient store failures a bounded number
// of times before giving up.
func (e *Engine) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < e.retryAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrUnavailable) {
			return err
		}
		metrics.RecordStoreRetry()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.retryDelay):
		}
	}
	return err
}
