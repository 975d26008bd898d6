package model_test

import (
	"testing"

	"github.com/learnward/metron/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLevel(t *testing.T) {
	Convey("Given the four hierarchy levels", t, func() {
		Convey("Then they order component < lesson < namespace < program", func() {
			So(model.LevelComponent.Below(model.LevelLesson), ShouldBeTrue)
			So(model.LevelLesson.Below(model.LevelNamespace), ShouldBeTrue)
			So(model.LevelNamespace.Below(model.LevelProgram), ShouldBeTrue)
			So(model.LevelProgram.Below(model.LevelComponent), ShouldBeFalse)
			So(model.LevelLesson.Below(model.LevelLesson), ShouldBeFalse)
		})

		Convey("Then wire names round-trip through ParseLevel", func() {
			for _, l := range []model.Level{
				model.LevelComponent,
				model.LevelLesson,
				model.LevelNamespace,
				model.LevelProgram,
			} {
				parsed, ok := model.ParseLevel(l.String())
				So(ok, ShouldBeTrue)
				So(parsed, ShouldEqual, l)
			}
		})

		Convey("Then unknown names fail to parse", func() {
			_, ok := model.ParseLevel("course")
			So(ok, ShouldBeFalse)
		})

		Convey("Then an out-of-range level is not known", func() {
			So(model.Level(42).Known(), ShouldBeFalse)
			So(model.Level(42).String(), ShouldEqual, "unknown")
		})
	})
}

func TestTimeWindow(t *testing.T) {
	Convey("Given a closed time window", t, func() {
		w := model.TimeWindow{Start: 1000, End: 2000}

		Convey("Then both boundaries are inside", func() {
			So(w.Contains(1000), ShouldBeTrue)
			So(w.Contains(2000), ShouldBeTrue)
		})

		Convey("Then a millisecond outside either edge is excluded", func() {
			So(w.Contains(999), ShouldBeFalse)
			So(w.Contains(2001), ShouldBeFalse)
		})

		Convey("Then interior timestamps are inside", func() {
			So(w.Contains(1500), ShouldBeTrue)
		})
	})
}

func TestValue(t *testing.T) {
	Convey("Given present and absent values", t, func() {
		present := model.Present(42.5)
		absent := model.Absent()

		Convey("Then a present value exposes its score", func() {
			score, ok := present.Score()
			So(ok, ShouldBeTrue)
			So(score, ShouldEqual, 42.5)
			So(present.IsAbsent(), ShouldBeFalse)
		})

		Convey("Then an absent value stays distinct from zero", func() {
			_, ok := absent.Score()
			So(ok, ShouldBeFalse)
			So(absent.IsAbsent(), ShouldBeTrue)
			So(model.Present(0).IsAbsent(), ShouldBeFalse)
		})

		Convey("Then Or falls back only when absent", func() {
			So(present.Or(-1), ShouldEqual, 42.5)
			So(absent.Or(-1), ShouldEqual, -1)
		})
	})
}
