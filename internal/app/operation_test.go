package app

import (
	"errors"
	"testing"

	"fswatcher/internal/config"
	"fswatcher/internal/database"
	"fswatcher/internal/mirror"
)

func TestNewRun(t *testing.T) {
	cfg := config.NewConfig(t.TempDir())
	cfg.WatchPath = "/data"
	cfg.Bucket = "archive/raw"

	run := newRun("run-1", cfg)

	if run.ID != "run-1" {
		t.Errorf("ID = %q, want %q", run.ID, "run-1")
	}
	if run.WatchPath != "/data" || run.Bucket != "archive/raw" {
		t.Errorf("run = %+v, want watch path and bucket from config", run)
	}
	if run.Status != database.RunStatusRunning {
		t.Errorf("Status = %q, want %q", run.Status, database.RunStatusRunning)
	}
	if run.Mode != "SELECTING_MODE" {
		t.Errorf("Mode = %q, want SELECTING_MODE", run.Mode)
	}
}

func TestFinishRun(t *testing.T) {
	stats := mirror.PipelineStats{Uploaded: 3, Deleted: 1, Skipped: 2, DeadLettered: 1, Failed: 4}

	tests := []struct {
		name       string
		err        error
		wantStatus string
		wantError  string
	}{
		{name: "success", wantStatus: database.RunStatusSuccess},
		{name: "error", err: errors.New("bucket missing"), wantStatus: database.RunStatusError, wantError: "bucket missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := &database.Run{ID: "run-1", Status: database.RunStatusRunning}
			finishRun(run, mirror.StatePullPolling, stats, tt.err)

			if run.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", run.Status, tt.wantStatus)
			}
			if run.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", run.Error, tt.wantError)
			}
			if run.Mode != "PULL_POLLING" {
				t.Errorf("Mode = %q, want PULL_POLLING", run.Mode)
			}
			if run.Uploaded != 3 || run.Deleted != 1 || run.Skipped != 2 || run.DeadLettered != 1 || run.Failed != 4 {
				t.Errorf("counters = %+v, want %+v", run, stats)
			}
		})
	}
}
