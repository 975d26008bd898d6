package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/learnward/metron/internal/adapters/store"
	"github.com/learnward/metron/internal/domain/coverage"
	"github.com/learnward/metron/internal/domain/model"
	"github.com/learnward/metron/internal/domain/rules"
	"github.com/learnward/metron/internal/engine"
	"github.com/learnward/metron/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// flakyScoreStore fails UpsertBatch with a transient error a set number
// of times before delegating.
type flakyScoreStore struct {
	*store.MemoryScoreStore
	failures int
	calls    int
}

func (f *flakyScoreStore) UpsertBatch(ctx context.Context, scores []model.Score) error {
	f.calls++
	if f.calls <= f.failures {
		return fmt.Errorf("upsert: %w", store.ErrUnavailable)
	}
	return f.MemoryScoreStore.UpsertBatch(ctx, scores)
}

type fixture struct {
	catalog     *store.MemoryCatalog
	feed        *store.MemoryFeed
	metricStore *store.MemoryMetricStore
	scoreStore  *store.MemoryScoreStore
	engine      *engine.Engine
}

func newFixture(opts ...engine.Option) *fixture {
	f := &fixture{
		catalog:     store.NewMemoryCatalog(),
		feed:        store.NewMemoryFeed(),
		metricStore: store.NewMemoryMetricStore(),
		scoreStore:  store.NewMemoryScoreStore(),
	}
	resolver := coverage.NewResolver(f.catalog)
	f.engine = engine.New(f.metricStore, f.scoreStore, f.feed, resolver, opts...)
	return f
}

func componentMetric(id string) *model.MetricDefinition {
	return &model.MetricDefinition{
		ID:         id,
		Name:       id,
		Level:      model.LevelComponent,
		Coverage:   model.All(),
		Rule:       model.Rule{Name: "score"},
		TimeFilter: model.TimeWindow{Start: 0, End: 1 << 50},
		Multiples:  model.MultiplesLast,
	}
}

func TestRecompute(t *testing.T) {
	Convey("Given a metric over two components", t, func() {
		f := newFixture()
		f.catalog.AddItem("c1", model.LevelComponent)
		f.catalog.AddItem("c2", model.LevelComponent)
		f.metricStore.Put(componentMetric("m1"))
		ctx := context.Background()

		Convey("When the learner has submitted on both items", func() {
			f.feed.Append(model.Submission{LearnerID: "l1", ItemID: "c1", Value: 80, Timestamp: 10})
			f.feed.Append(model.Submission{LearnerID: "l1", ItemID: "c2", Value: 60, Timestamp: 20})

			err := f.engine.Recompute(ctx, "m1", "l1")

			Convey("Then the aggregate score is the mean of the items", func() {
				So(err, ShouldBeNil)
				sc, err := f.scoreStore.Get(ctx, "m1", "l1", "")
				So(err, ShouldBeNil)
				So(sc.Value.Or(-1), ShouldEqual, 70)
			})

			Convey("Then per-item scores are stored for higher levels", func() {
				So(err, ShouldBeNil)
				items, err := f.scoreStore.ItemScores(ctx, "m1", "l1", []string{"c1", "c2"})
				So(err, ShouldBeNil)
				So(items["c1"].Value.Or(-1), ShouldEqual, 80)
				So(items["c2"].Value.Or(-1), ShouldEqual, 60)
			})

			Convey("Then the definition's last-updated timestamp moves", func() {
				So(err, ShouldBeNil)
				def, err := f.metricStore.Definition(ctx, "m1")
				So(err, ShouldBeNil)
				So(def.LastUpdated, ShouldBeGreaterThan, 0)
			})

			Convey("And recomputing again is idempotent", func() {
				So(err, ShouldBeNil)
				So(f.engine.Recompute(ctx, "m1", "l1"), ShouldBeNil)
				sc, err := f.scoreStore.Get(ctx, "m1", "l1", "")
				So(err, ShouldBeNil)
				So(sc.Value.Or(-1), ShouldEqual, 70)
			})
		})

		Convey("When the learner has no submissions at all", func() {
			err := f.engine.Recompute(ctx, "m1", "l1")

			Convey("Then the stored aggregate is absent, not zero", func() {
				So(err, ShouldBeNil)
				sc, err := f.scoreStore.Get(ctx, "m1", "l1", "")
				So(err, ShouldBeNil)
				So(sc.Value.IsAbsent(), ShouldBeTrue)
			})
		})

		Convey("When every submission falls outside the time filter", func() {
			def := componentMetric("m1")
			def.TimeFilter = model.TimeWindow{Start: 1000, End: 2000}
			f.metricStore.Put(def)
			f.feed.Append(model.Submission{LearnerID: "l1", ItemID: "c1", Value: 80, Timestamp: 10})

			err := f.engine.Recompute(ctx, "m1", "l1")

			Convey("Then the item contributes no score", func() {
				So(err, ShouldBeNil)
				sc, err := f.scoreStore.Get(ctx, "m1", "l1", "")
				So(err, ShouldBeNil)
				So(sc.Value.IsAbsent(), ShouldBeTrue)
			})
		})

		Convey("When the metric id is unknown", func() {
			err := f.engine.Recompute(ctx, "ghost", "l1")

			Convey("Then the run fails with not-found", func() {
				So(err, ShouldWrap, store.ErrNotFound)
			})
		})
	})

	Convey("Given tag weights on the metric", t, func() {
		f := newFixture()
		f.catalog.AddItem("c1", model.LevelComponent)
		f.catalog.AddItem("c2", model.LevelComponent)
		def := componentMetric("m1")
		def.TagWeights = map[string]float64{"quiz": 3, "exam": 1}
		f.metricStore.Put(def)
		ctx := context.Background()

		f.feed.Append(model.Submission{LearnerID: "l1", ItemID: "c1", Value: 80, Tag: "quiz", Timestamp: 10})
		f.feed.Append(model.Submission{LearnerID: "l1", ItemID: "c2", Value: 60, Tag: "exam", Timestamp: 20})

		Convey("When recomputing", func() {
			So(f.engine.Recompute(ctx, "m1", "l1"), ShouldBeNil)

			Convey("Then the aggregate is the tag-weighted mean", func() {
				sc, err := f.scoreStore.Get(ctx, "m1", "l1", "")
				So(err, ShouldBeNil)
				So(sc.Value.Or(-1), ShouldEqual, 75)
			})
		})
	})

	Convey("Given a failed run", t, func() {
		f := newFixture()
		f.catalog.AddItem("c1", model.LevelComponent)
		f.metricStore.Put(componentMetric("m1"))
		ctx := context.Background()

		f.feed.Append(model.Submission{LearnerID: "l1", ItemID: "c1", Value: 80, Timestamp: 10})
		So(f.engine.Recompute(ctx, "m1", "l1"), ShouldBeNil)

		Convey("When the definition turns invalid and a run fails", func() {
			bad := componentMetric("m1")
			bad.Rule.Name = "nope"
			f.metricStore.Put(bad)

			err := f.engine.Recompute(ctx, "m1", "l1")
			So(err, ShouldWrap, rules.ErrUnknownRule)

			Convey("Then the previously stored score is untouched", func() {
				sc, err := f.scoreStore.Get(ctx, "m1", "l1", "")
				So(err, ShouldBeNil)
				So(sc.Value.Or(-1), ShouldEqual, 80)
			})
		})
	})

	Convey("Given a store with transient failures", t, func() {
		flaky := &flakyScoreStore{MemoryScoreStore: store.NewMemoryScoreStore(), failures: 2}
		catalog := store.NewMemoryCatalog()
		catalog.AddItem("c1", model.LevelComponent)
		feed := store.NewMemoryFeed()
		metricStore := store.NewMemoryMetricStore()
		metricStore.Put(componentMetric("m1"))
		feed.Append(model.Submission{LearnerID: "l1", ItemID: "c1", Value: 80, Timestamp: 10})

		eng := engine.New(metricStore, flaky, feed, coverage.NewResolver(catalog),
			engine.WithRetry(3, time.Millisecond))
		ctx := context.Background()

		Convey("When recomputing", func() {
			err := eng.Recompute(ctx, "m1", "l1")

			Convey("Then bounded retries ride out the outage", func() {
				So(err, ShouldBeNil)
				So(flaky.calls, ShouldEqual, 3)
				sc, err := flaky.Get(ctx, "m1", "l1", "")
				So(err, ShouldBeNil)
				So(sc.Value.Or(-1), ShouldEqual, 80)
			})
		})

		Convey("When the outage outlasts the retry budget", func() {
			flaky.failures = 10
			err := eng.Recompute(ctx, "m1", "l1")

			Convey("Then the run fails with the transient error", func() {
				So(err, ShouldWrap, store.ErrUnavailable)
			})
		})
	})
}

func TestRecomputeSubmetric(t *testing.T) {
	Convey("Given a lesson metric over a component submetric", t, func() {
		f := newFixture()
		f.catalog.AddItem("c1", model.LevelComponent)
		f.catalog.AddItem("c2", model.LevelComponent)

		child := componentMetric("comp-score")
		f.metricStore.Put(child)

		parent := &model.MetricDefinition{
			ID:         "lesson-score",
			Name:       "lesson-score",
			Level:      model.LevelLesson,
			Coverage:   model.All(),
			Rule:       model.Rule{Name: "score"},
			Submetric:  "comp-score",
			TimeFilter: model.TimeWindow{Start: 0, End: 1 << 50},
			Multiples:  model.MultiplesLast,
		}
		f.metricStore.Put(parent)
		ctx := context.Background()

		f.feed.Append(model.Submission{LearnerID: "l1", ItemID: "c1", Value: 100, Timestamp: 10})
		f.feed.Append(model.Submission{LearnerID: "l1", ItemID: "c2", Value: 50, Timestamp: 20})

		Convey("When recomputing the parent with no scheduler bound", func() {
			err := f.engine.Recompute(ctx, "lesson-score", "l1")

			Convey("Then the submetric is recomputed inline first", func() {
				So(err, ShouldBeNil)
				sub, err := f.scoreStore.Get(ctx, "comp-score", "l1", "")
				So(err, ShouldBeNil)
				So(sub.Value.Or(-1), ShouldEqual, 75)
			})

			Convey("Then the parent aggregates the submetric's item scores", func() {
				So(err, ShouldBeNil)
				sc, err := f.scoreStore.Get(ctx, "lesson-score", "l1", "")
				So(err, ShouldBeNil)
				So(sc.Value.Or(-1), ShouldEqual, 75)
			})
		})

		Convey("When the submetric has never scored an item", func() {
			// Narrow the child's coverage so c2 is never scored by it.
			child := componentMetric("comp-score")
			child.Coverage = model.Include("c1")
			f.metricStore.Put(child)

			err := f.engine.Recompute(ctx, "lesson-score", "l1")

			Convey("Then the unscored item contributes absent, and the mean skips it", func() {
				So(err, ShouldBeNil)
				sc, err := f.scoreStore.Get(ctx, "lesson-score", "l1", "")
				So(err, ShouldBeNil)
				So(sc.Value.Or(-1), ShouldEqual, 100)
			})
		})
	})
}
