package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/pitch/internal/adapters/mq/queue"
	"github.com/okian/pitch/internal/adapters/mq/worker"
	"github.com/okian/pitch/internal/domain/dedupe"
	"github.com/okian/pitch/internal/domain/model"
	logging "github.com/okian/pitch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logging.Init()
}

type mockQueue struct {
	eventChan chan queue.Event
	once      sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{eventChan: make(chan queue.Event, 16)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Event {
	return mq.eventChan
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.eventChan) })
	return nil
}

type mockApplier struct {
	mu       sync.Mutex
	applied  []queue.Event
	failNext int
}

func (m *mockApplier) ApplyChange(ctx context.Context, e queue.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return errors.New("reload failed")
	}
	m.applied = append(m.applied, e)
	return nil
}

func (m *mockApplier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.applied)
}

func event(id, collection string) queue.Event {
	return queue.Event{EventID: id, Collection: collection, DocID: "doc-" + id, TS: time.Now()}
}

func runUntilDrained(w *worker.InMemoryWorker, q *mockQueue) {
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	_ = q.Close()
	<-done
}

func TestWorkerAppliesEvents(t *testing.T) {
	convey.Convey("Given a worker with a deduper", t, func() {
		q := newMockQueue()
		applier := &mockApplier{}
		w := worker.NewInMemoryWorker(q, applier,
			worker.WithName("test-worker"),
			worker.WithDeduper(dedupe.NewInMemoryDeduper()),
		)

		convey.Convey("When the same event is delivered twice", func() {
			q.eventChan <- event("e1", model.CollectionFriendships)
			q.eventChan <- event("e1", model.CollectionFriendships)
			q.eventChan <- event("e2", model.CollectionExperiences)
			runUntilDrained(w, q)

			convey.Convey("Then it is applied once", func() {
				convey.So(applier.count(), convey.ShouldEqual, 2)
				convey.So(applier.applied[0].EventID, convey.ShouldEqual, "e1")
				convey.So(applier.applied[1].Collection, convey.ShouldEqual, model.CollectionExperiences)
			})
		})

		convey.Convey("When applying fails and the event is redelivered", func() {
			applier.failNext = 1
			q.eventChan <- event("e3", model.CollectionGroups)
			q.eventChan <- event("e3", model.CollectionGroups)
			runUntilDrained(w, q)

			convey.Convey("Then the redelivery is applied", func() {
				convey.So(applier.count(), convey.ShouldEqual, 1)
				convey.So(applier.applied[0].EventID, convey.ShouldEqual, "e3")
			})
		})
	})
}

func TestWorkerWithoutDeduper(t *testing.T) {
	convey.Convey("Given a worker without a deduper", t, func() {
		q := newMockQueue()
		applier := &mockApplier{}
		w := worker.NewInMemoryWorker(q, applier)

		convey.Convey("When an event is delivered twice", func() {
			q.eventChan <- event("e1", model.CollectionUsers)
			q.eventChan <- event("e1", model.CollectionUsers)
			runUntilDrained(w, q)

			convey.Convey("Then both deliveries are applied", func() {
				convey.So(applier.count(), convey.ShouldEqual, 2)
			})
		})
	})
}

func TestWorkerShutdown(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		q := newMockQueue()
		w := worker.NewInMemoryWorker(q, &mockApplier{})
		go w.Run(context.Background())

		convey.Convey("When Shutdown is called", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := w.Shutdown(ctx)

			convey.Convey("Then it returns without error", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(32))
		applier := &mockApplier{}
		pool := worker.NewPool(3, q, applier, dedupe.NewInMemoryDeduper())
		pool.Start(context.Background())

		convey.Convey("When events are enqueued and the pool shuts down", func() {
			ctx := context.Background()
			for _, id := range []string{"a", "b", "c", "a", "d"} {
				convey.So(q.Enqueue(ctx, event(id, model.CollectionExperiences)), convey.ShouldBeTrue)
			}
			err := pool.Shutdown(ctx)

			convey.Convey("Then every distinct event is applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(applier.count(), convey.ShouldEqual, 4)
			})
		})
	})
}
