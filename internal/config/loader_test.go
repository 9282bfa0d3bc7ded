package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/inkwell-ocr/inkwell/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"INKWELL_CONFIG",
	"INKWELL_ADDR",
	"INKWELL_QUEUE_SIZE",
	"INKWELL_WORKER_COUNT",
	"INKWELL_DEDUPE_SIZE",
	"INKWELL_BIN_COUNT",
	"INKWELL_STORE_PATH",
	"INKWELL_REFIT_SCHEDULE",
	"INKWELL_MAX_UPLOAD_BYTES",
	"INKWELL_ENGINE_LATENCY_MIN_MS",
	"INKWELL_ENGINE_LATENCY_MAX_MS",
	"INKWELL_DATASET_DIR",
}

func clearConfigEnvVars() {
	for _, v := range configEnvVars {
		_ = os.Unsetenv(v)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.JobQueueSize, convey.ShouldEqual, 10_000)
				convey.So(cfg.BinCount, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			clearConfigEnvVars()
			_ = os.Setenv("INKWELL_ADDR", ":8080")
			_ = os.Setenv("INKWELL_QUEUE_SIZE", "500")
			_ = os.Setenv("INKWELL_WORKER_COUNT", "16")
			_ = os.Setenv("INKWELL_BIN_COUNT", "20")
			_ = os.Setenv("INKWELL_STORE_PATH", "/tmp/test.db")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.JobQueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.BinCount, convey.ShouldEqual, 20)
				convey.So(cfg.StorePath, convey.ShouldEqual, "/tmp/test.db")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			clearConfigEnvVars()
			yamlContent := `
addr: ":9090"
queue_size: 2000
worker_count: 8
bin_count: 12
refit_schedule: "0 3 * * *"
engine_latency_min_ms: 10
engine_latency_max_ms: 40
`
			tmpFile := createTempConfigFile(t, yamlContent)

			_ = os.Setenv("INKWELL_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.JobQueueSize, convey.ShouldEqual, 2000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 8)
				convey.So(cfg.BinCount, convey.ShouldEqual, 12)
				convey.So(cfg.RefitSchedule, convey.ShouldEqual, "0 3 * * *")
				convey.So(cfg.EngineLatencyMinMS, convey.ShouldEqual, 10)
				convey.So(cfg.EngineLatencyMaxMS, convey.ShouldEqual, 40)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			clearConfigEnvVars()
			tmpFile := createTempConfigFile(t, "addr: \":9090\"\nbin_count: 12\n")

			_ = os.Setenv("INKWELL_CONFIG", tmpFile)
			_ = os.Setenv("INKWELL_ADDR", ":7070")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then env vars should take precedence over the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.BinCount, convey.ShouldEqual, 12)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			clearConfigEnvVars()
			_ = os.Setenv("INKWELL_CONFIG", "/no/such/config.yaml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should fail with a load error", func() {
				convey.So(err, convey.ShouldWrap, config.ErrLoadConfig)
			})
		})

		convey.Convey("When the config is invalid", func() {
			clearConfigEnvVars()
			_ = os.Setenv("INKWELL_BIN_COUNT", "0")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should fail validation", func() {
				convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
			})
		})
	})
}
