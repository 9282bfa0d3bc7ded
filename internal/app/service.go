// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/inkwell-ocr/inkwell/internal/adapters/http/api"
	jobqueue "github.com/inkwell-ocr/inkwell/internal/adapters/mq/queue"
	workerpool "github.com/inkwell-ocr/inkwell/internal/adapters/mq/worker"
	"github.com/inkwell-ocr/inkwell/internal/adapters/recognizer"
	"github.com/inkwell-ocr/inkwell/internal/adapters/repository"
	"github.com/inkwell-ocr/inkwell/internal/dataset"
	"github.com/inkwell-ocr/inkwell/internal/domain/calibration"
	"github.com/inkwell-ocr/inkwell/internal/domain/dedupe"
	"github.com/inkwell-ocr/inkwell/internal/domain/model"
	"github.com/inkwell-ocr/inkwell/internal/domain/types"
	"github.com/inkwell-ocr/inkwell/internal/runs"
	"github.com/inkwell-ocr/inkwell/pkg/logger"
	"github.com/inkwell-ocr/inkwell/pkg/metrics"
)

// Service implements the API dependencies for the calibration system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	deduper    dedupe.Deduper
	jobQueue   jobqueue.Queue
	engine     recognizer.Engine
	calibrator *calibration.Calibrator
	tracker    *runs.Tracker
	workerPool *workerpool.Pool

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	binCount         int
	languages        []string
	refitSchedule    string
	engineMinLatency time.Duration
	engineMaxLatency time.Duration

	// State
	started bool
	stopCh  chan struct{}

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend. Required before Start.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithEngine overrides the OCR engine. Mainly useful in tests.
func WithEngine(engine recognizer.Engine) Option {
	return func(s *Service) {
		s.engine = engine
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the evaluation job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithBinCount sets the default histogram bin count for calibration fits.
func WithBinCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.binCount = n
		}
	}
}

// WithLanguages sets the recognition languages.
func WithLanguages(languages ...string) Option {
	return func(s *Service) {
		if len(languages) > 0 {
			s.languages = languages
		}
	}
}

// WithRefitSchedule sets a 5-field cron expression for periodic refits.
// Empty disables the scheduler.
func WithRefitSchedule(schedule string) Option {
	return func(s *Service) {
		s.refitSchedule = schedule
	}
}

// WithEngineLatencyRange sets the simulated engine latency range.
func WithEngineLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *Service) {
		if minLatency > 0 && maxLatency > minLatency {
			s.engineMinLatency = minLatency
			s.engineMaxLatency = maxLatency
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 4,
		queueSize:        10000,
		dedupeSize:       50000,
		binCount:         calibration.DefaultBinCount,
		languages:        []string{"eng"},
		engineMinLatency: 20 * time.Millisecond,
		engineMaxLatency: 60 * time.Millisecond,
		stopCh:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.store == nil {
		return ErrNoStore
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting calibration service...")

	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.jobQueue = jobqueue.NewInMemoryQueue(
		jobqueue.WithCapacity(s.queueSize),
	)
	if s.engine == nil {
		s.engine = recognizer.New(
			recognizer.WithLanguages(s.languages...),
			recognizer.WithLatencyRange(s.engineMinLatency, s.engineMaxLatency),
		)
	}
	s.calibrator = calibration.NewCalibrator(calibration.WithLogger(s.logger))
	s.tracker = runs.NewTracker()

	// Pick up the mapping from the last fit, if any.
	switch m, err := s.store.LatestMapping(ctx); {
	case err == nil:
		s.calibrator.SetMapping(m)
		metrics.UpdateCalibrationBinCount(m.Bins())
		s.logger.Info(ctx, "loaded persisted calibration mapping",
			logger.Int("bins", m.Bins()),
		)
	case errors.Is(err, repository.ErrNotFound):
		s.logger.Info(ctx, "no persisted calibration mapping yet")
	default:
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	s.workerPool = workerpool.NewPool(s.workerCount, s.jobQueue, s.engine, s)
	s.workerPool.Start(ctx)

	s.startRefitScheduler(ctx)

	s.started = true
	s.logger.Info(ctx, "calibration service started",
		logger.String("engine", s.engine.Name()),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("binCount", s.binCount),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping calibration service...")

	if q, ok := s.jobQueue.(*jobqueue.InMemoryQueue); ok {
		_ = q.Close()
	}

	if s.workerPool != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := s.workerPool.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
		}
		cancel()
	}

	if s.store != nil {
		_ = s.store.Close()
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	s.started = false
	s.logger.Info(ctx, "calibration service stopped")
}

// SeenAndRecord atomically checks if a record id was seen and records it if
// not. Returns true if the id was already seen, false if newly recorded.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	return s.deduper.SeenAndRecord(ctx, id)
}

// Unrecord removes a record ID from the seen list, allowing it to be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Recognize runs OCR on an image and maps token confidences through the
// current calibration mapping when one is fitted.
func (s *Service) Recognize(ctx context.Context, image []byte) (types.Recognition, error) {
	start := time.Now()
	rec, err := s.engine.Recognize(ctx, image)
	if err != nil {
		metrics.RecordRecognitionError()
		return types.Recognition{}, err
	}
	metrics.RecordRecognition()
	metrics.RecordRecognitionLatency(float64(time.Since(start).Milliseconds()))
	metrics.RecordTokensRecognized(len(rec.Tokens))

	fitted := s.calibrator.Fitted()
	out := types.Recognition{
		Text:       rec.Text,
		Tokens:     make([]types.TokenConfidence, 0, len(rec.Tokens)),
		Calibrated: fitted,
	}
	for _, tok := range rec.Tokens {
		tc := types.TokenConfidence{Text: tok.Text, Raw: tok.RawConfidence}
		if fitted {
			if v, cerr := s.Calibrate(ctx, tok.RawConfidence); cerr == nil {
				calibrated := v
				tc.Calibrated = &calibrated
			}
		}
		out.Tokens = append(out.Tokens, tc)
	}
	return out, nil
}

// Calibrate maps one raw confidence through the fitted mapping.
func (s *Service) Calibrate(ctx context.Context, raw float64) (float64, error) {
	v, err := s.calibrator.Calibrate(ctx, raw)
	if err != nil {
		metrics.RecordCalibrationUnfitted()
		return 0, err
	}
	metrics.RecordCalibrationApplied()
	if raw < 0 || raw > 1 {
		metrics.RecordCalibrationClamped()
	}
	return v, nil
}

// MappingPoints returns the current mapping as ordered points.
func (s *Service) MappingPoints(_ context.Context) ([]types.MappingPoint, error) {
	m := s.calibrator.Mapping()
	if m == nil {
		return nil, calibration.ErrNotFitted
	}
	return toMappingPoints(m), nil
}

// Refit rebuilds the calibration mapping from all persisted records and
// persists the result. A binCount of 0 keeps the configured default.
func (s *Service) Refit(ctx context.Context, binCount int) ([]types.MappingPoint, error) {
	if binCount <= 0 {
		binCount = s.binCount
	}

	preds, err := s.store.Predictions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefitFailed, err)
	}

	obs := make([]calibration.Observation, len(preds))
	for i, p := range preds {
		obs[i] = calibration.Observation{
			RawConfidence: p.RawConfidence,
			Correct:       p.Correct,
		}
	}

	start := time.Now()
	m, err := s.calibrator.Refit(ctx, obs, calibration.WithBinCount(binCount))
	if err != nil {
		return nil, err
	}
	metrics.RecordCalibrationFit()
	metrics.RecordCalibrationFitDuration(float64(time.Since(start).Milliseconds()))
	metrics.UpdateCalibrationBinCount(m.Bins())

	if err := s.store.SaveMapping(ctx, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefitFailed, err)
	}

	s.logger.Info(ctx, "calibration mapping refit",
		logger.Int("observations", len(obs)),
		logger.Int("bins", m.Bins()),
		logger.Duration("took", time.Since(start)),
	)
	return toMappingPoints(m), nil
}

// IngestRecords persists externally collected validation records.
func (s *Service) IngestRecords(ctx context.Context, records []types.ValidationRecord) error {
	preds := make([]model.Prediction, len(records))
	for i, r := range records {
		preds[i] = model.Prediction{
			RawConfidence: r.RawConfidence,
			Correct:       r.Correct,
		}
	}
	if err := s.store.SavePredictions(ctx, preds); err != nil {
		return fmt.Errorf("%w: %v", ErrIngestFailed, err)
	}
	if n, err := s.store.CountPredictions(ctx); err == nil {
		metrics.UpdateObservationsStored(n)
	}
	return nil
}

// StartEvaluation schedules an evaluation run over the dataset in dir.
// limit caps the number of samples; 0 means all.
func (s *Service) StartEvaluation(ctx context.Context, dir string, limit int) (types.RunStatus, error) {
	samples, err := dataset.Load(ctx, dir)
	if err != nil {
		return types.RunStatus{}, err
	}
	if limit > 0 && limit < len(samples) {
		samples = samples[:limit]
	}

	// Refuse the run up front when the queue cannot take it. Racy with
	// concurrent submissions, so individual enqueues below may still fail.
	if s.jobQueue.Len(ctx)+len(samples) > s.queueSize {
		return types.RunStatus{}, api.ErrBackpressure
	}

	run := s.tracker.Begin(s.engine.Name(), len(samples), time.Now())
	if err := s.store.CreateRun(ctx, run); err != nil {
		s.tracker.Forget(run.ID)
		return types.RunStatus{}, fmt.Errorf("%w: %v", ErrStartRunFailed, err)
	}

	for _, sample := range samples {
		job := model.Job{RunID: run.ID, Sample: sample}
		if s.jobQueue.Enqueue(ctx, job) {
			continue
		}
		// Keep the run's accounting consistent: a sample that never
		// made it into the queue counts as processed with no matches.
		s.logger.Warn(ctx, "enqueue failed, skipping sample",
			logger.String("run", run.ID),
			logger.String("sample", sample.ID),
		)
		s.recordOutcome(ctx, run.ID, nil, model.SampleResult{
			SampleID:   sample.ID,
			FinishedAt: time.Now(),
		})
	}
	metrics.UpdateQueueSize(s.jobQueue.Len(ctx))

	s.logger.Info(ctx, "evaluation run started",
		logger.String("run", run.ID),
		logger.Int("samples", len(samples)),
	)
	return toRunStatus(run), nil
}

// RecordOutcome persists one evaluated sample and advances its run. It is
// the sink called by the worker pool.
func (s *Service) RecordOutcome(ctx context.Context, runID string, preds []model.Prediction, res model.SampleResult) error {
	return s.recordOutcome(ctx, runID, preds, res)
}

func (s *Service) recordOutcome(ctx context.Context, runID string, preds []model.Prediction, res model.SampleResult) error {
	if len(preds) > 0 {
		if err := s.store.SavePredictions(ctx, preds); err != nil {
			return fmt.Errorf("%w: %v", ErrIngestFailed, err)
		}
	}

	run, done, err := s.tracker.Record(runID, res)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}

	if err := s.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("%w: %v", ErrStartRunFailed, err)
	}
	s.tracker.Forget(runID)
	s.logger.Info(ctx, "evaluation run completed",
		logger.String("run", run.ID),
		logger.Int("samples", run.Processed),
		logger.Int("exactMatches", run.ExactMatches),
	)

	// A completed run means fresh observations: refit and swap the mapping.
	if _, err := s.Refit(ctx, 0); err != nil {
		s.logger.Warn(ctx, "post-run refit failed",
			logger.String("run", run.ID),
			logger.Error(err),
		)
	}
	return nil
}

// RunStatus reports one run's progress, preferring live tracker state over
// the persisted snapshot.
func (s *Service) RunStatus(ctx context.Context, id string) (types.RunStatus, error) {
	if run, err := s.tracker.Snapshot(id); err == nil {
		return toRunStatus(run), nil
	}
	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return types.RunStatus{}, runs.ErrUnknownRun
		}
		return types.RunStatus{}, err
	}
	return toRunStatus(run), nil
}

// ListRuns reports all known runs, newest first, overlaying live progress
// for runs still in flight.
func (s *Service) ListRuns(ctx context.Context) ([]types.RunStatus, error) {
	stored, err := s.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.RunStatus, len(stored))
	for i, run := range stored {
		if live, err := s.tracker.Snapshot(run.ID); err == nil {
			run = live
		}
		out[i] = toRunStatus(run)
	}
	return out, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"binCount":    s.binCount,
	}

	if s.started {
		queueLen := s.jobQueue.Len(ctx)
		stats["engine"] = s.engine.Name()
		stats["queueLength"] = queueLen
		stats["dedupeEntries"] = s.deduper.Size()
		stats["activeRuns"] = s.tracker.Active()
		stats["calibrated"] = s.calibrator.Fitted()
		if m := s.calibrator.Mapping(); m != nil {
			stats["calibrationBins"] = m.Bins()
		}
		if n, err := s.store.CountPredictions(ctx); err == nil {
			stats["observationsStored"] = n
		}

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateActiveRuns(s.tracker.Active())
		metrics.UpdateWorkerActiveCount(s.workerPool.Size())
	}

	return stats
}

// startRefitScheduler arranges periodic refits on a 5-field cron schedule
// (minute hour day-of-month month day-of-week). No-op when unset.
func (s *Service) startRefitScheduler(ctx context.Context) {
	if s.refitSchedule == "" {
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(s.refitSchedule)
	if err != nil {
		s.logger.Warn(ctx, "invalid refit schedule, scheduler disabled",
			logger.String("schedule", s.refitSchedule),
			logger.Error(err),
		)
		return
	}

	s.logger.Info(ctx, "refit scheduled", logger.String("cron", s.refitSchedule))

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			select {
			case <-time.After(next.Sub(now)):
				if _, err := s.Refit(context.Background(), 0); err != nil {
					s.logger.Warn(context.Background(), "scheduled refit failed", logger.Error(err))
				}
			case <-s.stopCh:
				return
			}
		}
	}()
}

func toMappingPoints(m *calibration.Mapping) []types.MappingPoint {
	pts := m.Points()
	out := make([]types.MappingPoint, len(pts))
	for i, p := range pts {
		out[i] = types.MappingPoint{Midpoint: p.Midpoint, Calibrated: p.Calibrated}
	}
	return out
}

func toRunStatus(run model.Run) types.RunStatus {
	st := types.RunStatus{
		RunID:        run.ID,
		Total:        run.Total,
		Processed:    run.Processed,
		Done:         !run.FinishedAt.IsZero(),
		ExactMatches: run.ExactMatches,
	}
	if run.TruthChars > 0 {
		st.CharErrRate = float64(run.CharErrors) / float64(run.TruthChars)
	}
	return st
}
