package worker_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	queue "github.com/inkwell-ocr/inkwell/internal/adapters/mq/queue"
	worker "github.com/inkwell-ocr/inkwell/internal/adapters/mq/worker"
	model "github.com/inkwell-ocr/inkwell/internal/domain/model"
	logging "github.com/inkwell-ocr/inkwell/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logging.InitTo(io.Discard)
	os.Exit(m.Run())
}

// Mock implementations for testing.
type mockQueue struct {
	jobChan chan queue.Job
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		jobChan: make(chan queue.Job, 10),
	}
}

func (mq *mockQueue) Dequeue(_ context.Context) <-chan queue.Job {
	return mq.jobChan
}

func (mq *mockQueue) addJob(job queue.Job) {
	mq.jobChan <- job
}

type mockEngine struct {
	recognitions map[string]model.Recognition
	errors       map[string]error
	mu           sync.RWMutex
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		recognitions: make(map[string]model.Recognition),
		errors:       make(map[string]error),
	}
}

func (me *mockEngine) Recognize(_ context.Context, image []byte) (model.Recognition, error) {
	me.mu.RLock()
	defer me.mu.RUnlock()

	key := string(image)
	if err, exists := me.errors[key]; exists {
		return model.Recognition{}, err
	}
	if rec, exists := me.recognitions[key]; exists {
		return rec, nil
	}
	return model.Recognition{Text: key}, nil
}

func (me *mockEngine) setRecognition(payload string, rec model.Recognition) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.recognitions[payload] = rec
}

func (me *mockEngine) setError(payload string, err error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.errors[payload] = err
}

type outcome struct {
	runID  string
	preds  []model.Prediction
	result model.SampleResult
}

type mockSink struct {
	outcomes []outcome
	err      error
	mu       sync.RWMutex
}

func (ms *mockSink) RecordOutcome(_ context.Context, runID string, preds []model.Prediction, res model.SampleResult) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.err != nil {
		return ms.err
	}
	ms.outcomes = append(ms.outcomes, outcome{runID: runID, preds: preds, result: res})
	return nil
}

func (ms *mockSink) get(sampleID string) (outcome, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	for _, o := range ms.outcomes {
		if o.result.SampleID == sampleID {
			return o, true
		}
	}
	return outcome{}, false
}

func writeSample(t *testing.T, dir, id, payload string) model.Sample {
	t.Helper()
	path := filepath.Join(dir, id+".png")
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}
	return model.Sample{ID: id, ImagePath: path}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		q := newMockQueue()
		engine := newMockEngine()
		sink := &mockSink{}
		dir := t.TempDir()

		convey.Convey("When creating a worker with default options", func() {
			w := worker.NewInMemoryWorker(q, engine, sink)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, engine, sink, worker.WithName("test-worker"))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go w.Run(ctx)
			time.Sleep(10 * time.Millisecond)

			convey.Convey("And when processing a sample", func() {
				sample := writeSample(t, dir, "s1", "payload-1")
				sample.Truth = "the committee met"
				engine.setRecognition("payload-1", model.Recognition{
					Text: "the comittee met",
					Tokens: []model.Token{
						{Text: "the", RawConfidence: 0.95},
						{Text: "comittee", RawConfidence: 0.61},
						{Text: "met", RawConfidence: 0.88},
					},
				})

				q.addJob(model.Job{RunID: "run-1", Sample: sample})
				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then the outcome reaches the sink", func() {
					o, ok := sink.get("s1")
					convey.So(ok, convey.ShouldBeTrue)
					convey.So(o.runID, convey.ShouldEqual, "run-1")

					convey.So(o.preds, convey.ShouldHaveLength, 3)
					convey.So(o.preds[0].Correct, convey.ShouldBeTrue)
					convey.So(o.preds[1].Correct, convey.ShouldBeFalse)
					convey.So(o.preds[1].RawConfidence, convey.ShouldEqual, 0.61)
					convey.So(o.preds[2].Correct, convey.ShouldBeTrue)

					convey.So(o.result.ExactMatch, convey.ShouldBeFalse)
					convey.So(o.result.CharErrors, convey.ShouldEqual, 1)
					convey.So(o.result.FinishedAt.IsZero(), convey.ShouldBeFalse)
				})
			})

			convey.Convey("And when recognition fails", func() {
				sample := writeSample(t, dir, "s2", "payload-2")
				engine.setError("payload-2", errors.New("engine exploded"))

				q.addJob(model.Job{RunID: "run-1", Sample: sample})
				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then no outcome is recorded", func() {
					_, ok := sink.get("s2")
					convey.So(ok, convey.ShouldBeFalse)
				})
			})

			convey.Convey("And when the image file is missing", func() {
				sample := model.Sample{ID: "s3", ImagePath: filepath.Join(dir, "absent.png")}

				q.addJob(model.Job{RunID: "run-1", Sample: sample})
				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then no outcome is recorded", func() {
					_, ok := sink.get("s3")
					convey.So(ok, convey.ShouldBeFalse)
				})
			})
		})

		convey.Convey("When shutting down a worker", func() {
			w := worker.NewInMemoryWorker(q, engine, sink)
			ctx := context.Background()

			go w.Run(ctx)
			time.Sleep(10 * time.Millisecond)

			shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()

			convey.Convey("Then shutdown completes before the deadline", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		engine := newMockEngine()
		sink := &mockSink{}
		dir := t.TempDir()

		convey.Convey("When starting a pool over a real queue", func() {
			jobs := queue.NewInMemoryQueue(queue.WithCapacity(100))
			pool := worker.NewPool(4, jobs, engine, sink)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pool.Start(ctx)

			convey.Convey("Then it reports its size", func() {
				convey.So(pool.Size(), convey.ShouldEqual, 4)
			})

			convey.Convey("And it drains enqueued jobs", func() {
				for i := 0; i < 10; i++ {
					sample := writeSample(t, dir, "p"+string(rune('0'+i)), "text "+string(rune('0'+i)))
					sample.Truth = "text"
					convey.So(jobs.Enqueue(ctx, model.Job{RunID: "run-p", Sample: sample}), convey.ShouldBeTrue)
				}

				deadline := time.After(2 * time.Second)
				for {
					sink.mu.RLock()
					n := len(sink.outcomes)
					sink.mu.RUnlock()
					if n == 10 {
						break
					}
					select {
					case <-deadline:
						t.Fatalf("expected 10 outcomes, got %d", n)
					case <-time.After(10 * time.Millisecond):
					}
				}

				convey.Convey("Then shutdown is clean", func() {
					shutdownCtx, cancelShutdown := context.WithTimeout(ctx, time.Second)
					defer cancelShutdown()
					convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When the worker count is not positive", func() {
			jobs := queue.NewInMemoryQueue()
			pool := worker.NewPool(0, jobs, engine, sink)

			convey.Convey("Then a CPU-derived default is used", func() {
				convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})
	})
}
