package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		runID   string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			runID:   "run-123",
			level:   slog.LevelInfo,
			message: "state changed",
			want:    "2024-06-15T14:30:45Z\tINFO\trun-123\tstate changed\n",
		},
		{
			name:    "debug level",
			runID:   "run-456",
			level:   slog.LevelDebug,
			message: "dispatching change",
			want:    "2024-06-15T14:30:45Z\tDEBUG\trun-456\tdispatching change\n",
		},
		{
			name:    "with record attrs",
			runID:   "run-789",
			level:   slog.LevelInfo,
			message: "uploaded",
			attrs:   []slog.Attr{slog.String("key", "data/file.txt"), slog.Int("size", 42)},
			want:    "2024-06-15T14:30:45Z\tINFO\trun-789\tuploaded\tkey=data/file.txt\tsize=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := newLogHandler(&buf, tt.runID, slog.LevelDebug)

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestLogHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newLogHandler(&buf, "run-1", slog.LevelInfo)

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "pipeline")}).(*logHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "upload", 0)
	r.AddAttrs(slog.String("key", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=pipeline") {
		t.Errorf("expected pre-set attr component=pipeline, got: %q", got)
	}
	if !strings.Contains(got, "key=abc") {
		t.Errorf("expected record attr key=abc, got: %q", got)
	}
	if len(h.attrs) != 0 {
		t.Errorf("original handler attrs modified: got %d, want 0", len(h.attrs))
	}
}

func TestLogHandler_Enabled(t *testing.T) {
	tests := []struct {
		setting string
		level   slog.Level
		want    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"info", slog.LevelDebug, false},
		{"info", slog.LevelInfo, true},
		{"WARN", slog.LevelInfo, false},
		{"warn", slog.LevelError, true},
		{"bogus", slog.LevelDebug, false},
		{"bogus", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		h := newLogHandler(&bytes.Buffer{}, "run", parseLevel(tt.setting))
		if got := h.Enabled(context.Background(), tt.level); got != tt.want {
			t.Errorf("level %q: Enabled(%v) = %v, want %v", tt.setting, tt.level, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("writes to log dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "log")

		logger, f, err := newLogger(dir, "test-run", "info")
		if err != nil {
			t.Fatalf("newLogger() error = %v", err)
		}
		defer f.Close()

		logger.Info("hello", "n", 1)
		data, err := os.ReadFile(filepath.Join(dir, "fswatcher.log"))
		if err != nil {
			t.Fatalf("reading log file: %v", err)
		}
		if !strings.Contains(string(data), "\ttest-run\thello\tn=1") {
			t.Errorf("log file = %q", data)
		}
	})

	t.Run("stderr only without log dir", func(t *testing.T) {
		logger, f, err := newLogger("", "test-run", "info")
		if err != nil {
			t.Fatalf("newLogger() error = %v", err)
		}
		if logger == nil {
			t.Fatal("newLogger() returned nil logger")
		}
		if f != nil {
			t.Errorf("newLogger() returned file %s, want nil", f.Name())
		}
	})
}
