package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := InitTo(&buf); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	Get().Info(ctx, "mapping fit", Int("bins", 10), Float64("accuracy", 0.91))

	out := buf.String()
	if !strings.Contains(out, "mapping fit") {
		t.Errorf("missing message in output: %q", out)
	}
	if !strings.Contains(out, "bins=10") {
		t.Errorf("missing field in output: %q", out)
	}
	if !strings.Contains(out, "source=") {
		t.Errorf("missing caller source in output: %q", out)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := InitTo(&buf); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	Get().Debug(ctx, "hidden at info level")
	if strings.Contains(buf.String(), "hidden at info level") {
		t.Error("debug message logged at info level")
	}

	if err := SetLevelString("debug"); err != nil {
		t.Fatalf("failed to set level: %v", err)
	}
	Get().Debug(ctx, "visible at debug level")
	if !strings.Contains(buf.String(), "visible at debug level") {
		t.Error("debug message missing at debug level")
	}

	if err := SetLevelString("nonsense"); err == nil {
		t.Error("expected error for unknown level")
	}
	_ = SetLevelString("info") // restore for other tests
}

func TestLoggerNamed(t *testing.T) {
	var buf bytes.Buffer
	if err := InitTo(&buf); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	named := Named("recognizer")
	if named == nil {
		t.Fatal("named logger is nil")
	}
	named.Info(context.Background(), "engine ready")
	if !strings.Contains(buf.String(), "engine ready") {
		t.Errorf("missing message in output: %q", buf.String())
	}
}
