package app

import (
	"fswatcher/internal/config"
	"fswatcher/internal/database"
	"fswatcher/internal/mirror"
)

// newRun creates the in-memory record of a watch run. It is persisted with
// CreateRun when mirroring starts.
func newRun(id string, cfg *config.Config) *database.Run {
	return &database.Run{
		ID:        id,
		WatchPath: cfg.WatchPath,
		Bucket:    cfg.Bucket,
		Mode:      mirror.StateSelectingMode.String(),
		Status:    database.RunStatusRunning,
	}
}

// finishRun copies the final mode, counters and outcome into run.
func finishRun(run *database.Run, mode mirror.State, stats mirror.PipelineStats, err error) {
	run.Mode = mode.String()
	run.Uploaded = stats.Uploaded
	run.Deleted = stats.Deleted
	run.Skipped = stats.Skipped
	run.DeadLettered = stats.DeadLettered
	run.Failed = stats.Failed
	run.Status = database.RunStatusSuccess
	run.Error = ""
	if err != nil {
		run.Status = database.RunStatusError
		run.Error = err.Error()
	}
}
