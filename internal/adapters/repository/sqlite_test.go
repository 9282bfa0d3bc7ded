package repository_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	repository "github.com/inkwell-ocr/inkwell/internal/adapters/repository"
	"github.com/inkwell-ocr/inkwell/internal/domain/calibration"
	"github.com/inkwell-ocr/inkwell/internal/domain/model"
	"github.com/inkwell-ocr/inkwell/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.InitTo(io.Discard)
	os.Exit(m.Run())
}

func newStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "inkwell.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorePredictions(t *testing.T) {
	Convey("Given a sqlite store", t, func() {
		store := newStore(t)
		ctx := context.Background()

		Convey("When saving prediction records", func() {
			preds := []model.Prediction{
				{RunID: "run-1", RawConfidence: 0.91, Correct: true},
				{RunID: "run-1", RawConfidence: 0.40, Correct: false},
				{RunID: "run-2", RawConfidence: 0.75, Correct: true},
			}
			So(store.SavePredictions(ctx, preds), ShouldBeNil)

			Convey("Then they can be read back in insertion order", func() {
				got, err := store.Predictions(ctx, "")
				So(err, ShouldBeNil)
				So(got, ShouldResemble, preds)
			})

			Convey("And filtering by run returns only that run's records", func() {
				got, err := store.Predictions(ctx, "run-1")
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 2)
				So(got[0].RawConfidence, ShouldEqual, 0.91)
				So(got[1].Correct, ShouldBeFalse)
			})

			Convey("And the count reflects all records", func() {
				count, err := store.CountPredictions(ctx)
				So(err, ShouldBeNil)
				So(count, ShouldEqual, 3)
			})
		})

		Convey("When saving an empty batch", func() {
			So(store.SavePredictions(ctx, nil), ShouldBeNil)

			count, err := store.CountPredictions(ctx)
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 0)
		})
	})
}

func TestSQLiteStoreMappings(t *testing.T) {
	Convey("Given a sqlite store", t, func() {
		store := newStore(t)
		ctx := context.Background()

		Convey("When no mapping has been saved", func() {
			_, err := store.LatestMapping(ctx)

			Convey("Then it reports not found", func() {
				So(err, ShouldWrap, repository.ErrNotFound)
			})
		})

		Convey("When saving a fitted mapping", func() {
			obs := []calibration.Observation{
				{RawConfidence: 0.15, Correct: false},
				{RawConfidence: 0.45, Correct: true},
				{RawConfidence: 0.85, Correct: true},
				{RawConfidence: 0.95, Correct: true},
			}
			fitted, err := calibration.Fit(obs, calibration.WithBinCount(5))
			So(err, ShouldBeNil)
			So(store.SaveMapping(ctx, fitted), ShouldBeNil)

			Convey("Then the latest mapping round-trips exactly", func() {
				loaded, err := store.LatestMapping(ctx)
				So(err, ShouldBeNil)
				So(loaded.Points(), ShouldResemble, fitted.Points())

				for r := 0.0; r <= 1.0; r += 0.01 {
					So(loaded.Apply(r), ShouldEqual, fitted.Apply(r))
				}
			})

			Convey("And a newer mapping supersedes it", func() {
				second, err := calibration.Fit(obs, calibration.WithBinCount(2))
				So(err, ShouldBeNil)
				So(store.SaveMapping(ctx, second), ShouldBeNil)

				loaded, err := store.LatestMapping(ctx)
				So(err, ShouldBeNil)
				So(loaded.Points(), ShouldResemble, second.Points())
			})
		})
	})
}

func TestSQLiteStoreRuns(t *testing.T) {
	Convey("Given a sqlite store", t, func() {
		store := newStore(t)
		ctx := context.Background()
		started := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

		Convey("When creating a run", func() {
			run := model.Run{
				ID:        "run-abc",
				Engine:    "sim",
				Total:     120,
				StartedAt: started,
			}
			So(store.CreateRun(ctx, run), ShouldBeNil)

			Convey("Then it can be fetched while in flight", func() {
				got, err := store.GetRun(ctx, "run-abc")
				So(err, ShouldBeNil)
				So(got.Engine, ShouldEqual, "sim")
				So(got.Total, ShouldEqual, 120)
				So(got.FinishedAt.IsZero(), ShouldBeTrue)
			})

			Convey("And updating records progress and completion", func() {
				run.Processed = 120
				run.ExactMatches = 80
				run.CharErrors = 310
				run.TruthChars = 5400
				run.FinishedAt = started.Add(2 * time.Minute)
				So(store.UpdateRun(ctx, run), ShouldBeNil)

				got, err := store.GetRun(ctx, "run-abc")
				So(err, ShouldBeNil)
				So(got.Processed, ShouldEqual, 120)
				So(got.ExactMatches, ShouldEqual, 80)
				So(got.FinishedAt.IsZero(), ShouldBeFalse)
			})

			Convey("And listing returns newest first", func() {
				later := model.Run{ID: "run-def", Engine: "sim", StartedAt: started.Add(time.Hour)}
				So(store.CreateRun(ctx, later), ShouldBeNil)

				runs, err := store.ListRuns(ctx)
				So(err, ShouldBeNil)
				So(runs, ShouldHaveLength, 2)
				So(runs[0].ID, ShouldEqual, "run-def")
				So(runs[1].ID, ShouldEqual, "run-abc")
			})
		})

		Convey("When fetching an unknown run", func() {
			_, err := store.GetRun(ctx, "nope")
			So(err, ShouldWrap, repository.ErrNotFound)
		})

		Convey("When updating an unknown run", func() {
			err := store.UpdateRun(ctx, model.Run{ID: "nope", StartedAt: started})
			So(err, ShouldWrap, repository.ErrNotFound)
		})
	})
}
