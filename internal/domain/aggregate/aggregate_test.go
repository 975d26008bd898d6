package aggregate_test

import (
	"testing"

	"github.com/learnward/metron/internal/domain/aggregate"
	"github.com/learnward/metron/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAggregate(t *testing.T) {
	Convey("Given a default aggregator", t, func() {
		agg := aggregate.NewAggregator()

		Convey("When aggregating with tag weights", func() {
			inputs := []aggregate.Input{
				{ItemID: "i1", Tag: "quiz", Value: model.Present(80)},
				{ItemID: "i2", Tag: "exam", Value: model.Present(60)},
			}
			weights := map[string]float64{"quiz": 3, "exam": 1}
			v := agg.Aggregate(inputs, weights)

			Convey("Then the result is the weighted mean over applied weights", func() {
				// (80*3 + 60*1) / (3+1)
				So(v.Or(-1), ShouldEqual, 75)
			})
		})

		Convey("When a tag has no weight entry", func() {
			inputs := []aggregate.Input{
				{ItemID: "i1", Tag: "quiz", Value: model.Present(80)},
				{ItemID: "i2", Tag: "homework", Value: model.Present(10)},
			}
			weights := map[string]float64{"quiz": 1}
			v := agg.Aggregate(inputs, weights)

			Convey("Then the unweighted tag is excluded by default", func() {
				So(v.Or(-1), ShouldEqual, 80)
			})
		})

		Convey("When a tag weight is explicitly zero", func() {
			inputs := []aggregate.Input{
				{ItemID: "i1", Tag: "quiz", Value: model.Present(80)},
				{ItemID: "i2", Tag: "practice", Value: model.Present(10)},
			}
			weights := map[string]float64{"quiz": 1, "practice": 0}
			v := agg.Aggregate(inputs, weights)

			Convey("Then the zero-weight input contributes nothing", func() {
				So(v.Or(-1), ShouldEqual, 80)
			})
		})

		Convey("When no weight map is given", func() {
			inputs := []aggregate.Input{
				{ItemID: "i1", Value: model.Present(70)},
				{ItemID: "i2", Value: model.Present(90)},
			}
			v := agg.Aggregate(inputs, nil)

			Convey("Then the result is the arithmetic mean", func() {
				So(v.Or(-1), ShouldEqual, 80)
			})
		})

		Convey("When some inputs are absent", func() {
			inputs := []aggregate.Input{
				{ItemID: "i1", Value: model.Present(100)},
				{ItemID: "i2", Value: model.Absent()},
				{ItemID: "i3", Value: model.Present(50)},
			}
			v := agg.Aggregate(inputs, nil)

			Convey("Then absent inputs leave the denominator too", func() {
				So(v.Or(-1), ShouldEqual, 75)
			})
		})

		Convey("When every input is absent", func() {
			inputs := []aggregate.Input{
				{ItemID: "i1", Value: model.Absent()},
				{ItemID: "i2", Value: model.Absent()},
			}
			v := agg.Aggregate(inputs, nil)

			Convey("Then the result is absent, never zero", func() {
				So(v.IsAbsent(), ShouldBeTrue)
			})
		})

		Convey("When there are no inputs at all", func() {
			v := agg.Aggregate(nil, nil)
			So(v.IsAbsent(), ShouldBeTrue)
		})

		Convey("When every applied weight is zero", func() {
			inputs := []aggregate.Input{
				{ItemID: "i1", Tag: "quiz", Value: model.Present(80)},
			}
			v := agg.Aggregate(inputs, map[string]float64{"quiz": 0})

			Convey("Then the result is absent, not a division by zero", func() {
				So(v.IsAbsent(), ShouldBeTrue)
			})
		})
	})

	Convey("Given an aggregator with a missing-tag weight", t, func() {
		agg := aggregate.NewAggregator(aggregate.WithMissingTagWeight(1))

		Convey("When a tag has no weight entry", func() {
			inputs := []aggregate.Input{
				{ItemID: "i1", Tag: "quiz", Value: model.Present(80)},
				{ItemID: "i2", Tag: "homework", Value: model.Present(40)},
			}
			v := agg.Aggregate(inputs, map[string]float64{"quiz": 1})

			Convey("Then the unweighted tag joins at the configured weight", func() {
				So(v.Or(-1), ShouldEqual, 60)
			})
		})
	})

	Convey("Given an aggregator counting absent inputs as zero", t, func() {
		agg := aggregate.NewAggregator(aggregate.WithAbsentAsZero(true))

		Convey("When some inputs are absent", func() {
			inputs := []aggregate.Input{
				{ItemID: "i1", Value: model.Present(100)},
				{ItemID: "i2", Value: model.Absent()},
			}
			v := agg.Aggregate(inputs, nil)

			Convey("Then absence drags the mean down as a zero", func() {
				So(v.Or(-1), ShouldEqual, 50)
			})
		})
	})
}
