// Package runs tracks in-flight evaluation runs and their progress.
package runs

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-ocr/inkwell/internal/domain/model"
	"github.com/inkwell-ocr/inkwell/pkg/metrics"
)

// state accumulates progress for one run.
type state struct {
	run  model.Run
	done chan struct{}
}

// Tracker tracks evaluation runs in memory. Completed run metadata is
// persisted elsewhere; the tracker owns progress counters and the
// completion signal.
type Tracker struct {
	mu     sync.Mutex
	states map[string]*state
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]*state)}
}

// Begin registers a new run over total samples and returns its metadata,
// including the freshly assigned run id.
func (t *Tracker) Begin(engine string, total int, startedAt time.Time) model.Run {
	run := model.Run{
		ID:        uuid.NewString(),
		Engine:    engine,
		Total:     total,
		StartedAt: startedAt,
	}

	t.mu.Lock()
	t.states[run.ID] = &state{run: run, done: make(chan struct{})}
	active := len(t.states)
	t.mu.Unlock()

	metrics.RecordRunStarted()
	metrics.UpdateActiveRuns(active)
	return run
}

// Record folds one sample result into the run. It reports whether the
// run just completed; the returned snapshot is the run's state after
// the update.
func (t *Tracker) Record(id string, res model.SampleResult) (model.Run, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[id]
	if !ok {
		return model.Run{}, false, ErrUnknownRun
	}

	st.run.Processed++
	if res.ExactMatch {
		st.run.ExactMatches++
	}
	st.run.CharErrors += res.CharErrors
	st.run.TruthChars += res.TruthLen

	completed := st.run.Processed >= st.run.Total && st.run.FinishedAt.IsZero()
	if completed {
		st.run.FinishedAt = res.FinishedAt
		close(st.done)
		metrics.RecordRunCompleted()
	}
	return st.run, completed, nil
}

// Snapshot returns the current state of a run.
func (t *Tracker) Snapshot(id string) (model.Run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[id]
	if !ok {
		return model.Run{}, ErrUnknownRun
	}
	return st.run, nil
}

// Done returns a channel closed when the run completes.
func (t *Tracker) Done(id string) (<-chan struct{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[id]
	if !ok {
		return nil, ErrUnknownRun
	}
	return st.done, nil
}

// Forget drops a completed run from the tracker.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	delete(t.states, id)
	active := len(t.states)
	t.mu.Unlock()

	metrics.UpdateActiveRuns(active)
}

// Active reports the number of tracked runs.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}
