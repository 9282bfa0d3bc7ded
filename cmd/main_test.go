package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/inkwell-ocr/inkwell/internal/adapters/http/api"
	app "github.com/inkwell-ocr/inkwell/internal/app"
	"github.com/inkwell-ocr/inkwell/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("INKWELL_ADDR", ":8080")
			_ = os.Setenv("INKWELL_QUEUE_SIZE", "1000")
			_ = os.Setenv("INKWELL_WORKER_COUNT", "4")
			defer func() {
				_ = os.Unsetenv("INKWELL_ADDR")
				_ = os.Unsetenv("INKWELL_QUEUE_SIZE")
				_ = os.Unsetenv("INKWELL_WORKER_COUNT")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.JobQueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When testing service creation", func() {
			convey.Convey("Then service should be creatable with default options", func() {
				svc := app.New()
				convey.So(svc, convey.ShouldNotBeNil)
			})

			convey.Convey("And service should be creatable with custom options", func() {
				svc := app.New(
					app.WithWorkerCount(8),
					app.WithQueueSize(2000),
					app.WithDedupeSize(1000),
				)
				convey.So(svc, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When testing HTTP server creation", func() {
			svc := app.New()
			mux := http.NewServeMux()
			apiServer := api.NewServer(svc, svc, 1<<20)
			apiServer.Register(context.Background(), mux)

			srv := &http.Server{
				Addr:              ":0",
				Handler:           mux,
				ReadTimeout:       readTimeout,
				WriteTimeout:      writeTimeout,
				IdleTimeout:       idleTimeout,
				ReadHeaderTimeout: readHeaderTimeout,
			}

			convey.Convey("Then the server should be configured", func() {
				convey.So(srv.ReadTimeout, convey.ShouldEqual, 10*time.Second)
				convey.So(srv.Handler, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestSyncLogs(t *testing.T) {
	convey.Convey("Given the log sync helper", t, func() {
		convey.Convey("When sync succeeds", func() {
			var buf bytes.Buffer
			syncLogs(func() error { return nil }, &buf)

			convey.Convey("Then nothing is reported", func() {
				convey.So(buf.String(), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When sync fails", func() {
			var buf bytes.Buffer
			syncLogs(func() error { return errors.New("sink gone") }, &buf)

			convey.Convey("Then the failure is reported with its cause", func() {
				convey.So(buf.String(), convey.ShouldContainSubstring, "failed to sync logs")
				convey.So(buf.String(), convey.ShouldContainSubstring, "sink gone")
			})
		})
	})
}
