// Package worker runs the asynchronous evaluation loop: recognize a
// sample, align tokens against ground truth, and hand the outcome to a
// sink for persistence.
package worker

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/inkwell-ocr/inkwell/internal/domain/eval"
	"github.com/inkwell-ocr/inkwell/internal/domain/model"
	"github.com/inkwell-ocr/inkwell/pkg/logger"
	"github.com/inkwell-ocr/inkwell/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
)

// Job abstracts what workers read off the queue.
type Job = model.Job

// Engine recognizes a line image.
type Engine interface {
	Recognize(ctx context.Context, image []byte) (model.Recognition, error)
}

// Sink receives the outcome of one evaluated sample.
type Sink interface {
	// RecordOutcome persists the prediction records and folds the
	// sample result into the run's progress.
	RecordOutcome(ctx context.Context, runID string, preds []model.Prediction, res model.SampleResult) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes evaluation jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing evaluation jobs.
type InMemoryWorker struct {
	queue  Queue
	engine Engine
	sink   Sink
	name   string

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, engine Engine, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		engine:   engine,
		sink:     sink,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobChan:
			if !ok {
				return
			}

			if err := w.processJob(ctx, job); err != nil {
				w.logger.Error(ctx, "error processing job", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processJob evaluates a single sample.
func (w *InMemoryWorker) processJob(ctx context.Context, job Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	image, err := os.ReadFile(job.Sample.ImagePath)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "image_read_error")
		return fmt.Errorf("reading image for %s: %w", job.Sample.ID, err)
	}

	recStart := time.Now()
	rec, err := w.engine.Recognize(ctx, image)
	metrics.RecordRecognitionLatency(float64(time.Since(recStart).Milliseconds()))
	if err != nil {
		metrics.RecordRecognitionError()
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "recognition_error")
		metrics.RecordErrorByType("recognition_error", "high")
		w.logger.Error(ctx, "recognition failed for sample",
			logger.String("sampleID", job.Sample.ID),
			logger.Error(err),
		)
		return fmt.Errorf("recognizing %s: %w", job.Sample.ID, err)
	}
	metrics.RecordRecognition()
	metrics.RecordTokensRecognized(len(rec.Tokens))

	obs := eval.Align(rec.Tokens, job.Sample.Truth)
	preds := make([]model.Prediction, len(obs))
	for i, o := range obs {
		preds[i] = model.Prediction{
			RunID:         job.RunID,
			RawConfidence: o.RawConfidence,
			Correct:       o.Correct,
		}
	}

	result := eval.Score(rec, job.Sample)
	result.FinishedAt = time.Now()

	if err := w.sink.RecordOutcome(ctx, job.RunID, preds, result); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "sink_error")
		metrics.RecordErrorByType("sink_error", "high")
		w.logger.Error(ctx, "recording outcome failed for sample",
			logger.String("sampleID", job.Sample.ID),
			logger.Error(err),
		)
		return fmt.Errorf("recording outcome for %s: %w", job.Sample.ID, err)
	}

	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool. A workerCount below 1 defaults to
// a multiple of the CPU count.
func NewPool(workerCount int, queue Queue, engine Engine, sink Sink) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			queue,
			engine,
			sink,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateWorkerActiveCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Shutdown gracefully stops all workers.
func (p *Pool) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, worker := range p.workers {
		if err := worker.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return firstErr
}

// Size reports the number of workers in the pool.
func (p *Pool) Size() int {
	return len(p.workers)
}
