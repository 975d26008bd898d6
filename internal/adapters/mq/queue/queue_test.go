package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/learnward/metron/internal/adapters/mq/queue"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a new in-memory queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))
		ctx := context.Background()

		Convey("When enqueueing within capacity", func() {
			ok1 := q.Enqueue(ctx, queue.Task{MetricID: "m1", LearnerID: "l1"})
			ok2 := q.Enqueue(ctx, queue.Task{MetricID: "m2", LearnerID: "l1"})

			Convey("Then both tasks are accepted", func() {
				So(ok1, ShouldBeTrue)
				So(ok2, ShouldBeTrue)
				So(q.Len(ctx), ShouldEqual, 2)
			})

			Convey("And a third is rejected, never blocked", func() {
				So(q.Enqueue(ctx, queue.Task{MetricID: "m3", LearnerID: "l1"}), ShouldBeFalse)
			})
		})

		Convey("When dequeueing", func() {
			q.Enqueue(ctx, queue.Task{MetricID: "m1", LearnerID: "l1"})
			ch := q.Dequeue(ctx)

			Convey("Then tasks arrive in order", func() {
				select {
				case task := <-ch:
					So(task.MetricID, ShouldEqual, "m1")
					So(task.LearnerID, ShouldEqual, "l1")
				case <-time.After(time.Second):
					So("timed out", ShouldBeEmpty)
				}
			})
		})

		Convey("When the queue is closed", func() {
			q.Enqueue(ctx, queue.Task{MetricID: "m1", LearnerID: "l1"})
			So(q.Close(), ShouldBeNil)

			Convey("Then new tasks are rejected", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, queue.Task{MetricID: "m2", LearnerID: "l1"}), ShouldBeFalse)
			})

			Convey("Then buffered tasks drain before the channel closes", func() {
				ch := q.Dequeue(ctx)
				select {
				case task := <-ch:
					So(task.MetricID, ShouldEqual, "m1")
				case <-time.After(time.Second):
					So("timed out", ShouldBeEmpty)
				}
				select {
				case _, open := <-ch:
					So(open, ShouldBeFalse)
				case <-time.After(time.Second):
					So("timed out", ShouldBeEmpty)
				}
			})

			Convey("And closing again is a no-op", func() {
				So(q.Close(), ShouldBeNil)
			})
		})
	})
}
