package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"fswatcher/internal/config"
	"fswatcher/internal/database"
	"fswatcher/internal/encryption"
	"fswatcher/internal/fs"
	"fswatcher/internal/mirror"
	"fswatcher/internal/notify"
	"fswatcher/internal/telemetry"
	"fswatcher/internal/vault"
	"fswatcher/internal/watcher"
)

// Options overrides collaborators that are otherwise built from config.
// The zero value is what the CLI uses.
type Options struct {
	Watch mirror.WatchFactory
	Clock mirror.Clock
	IDs   mirror.IDGenerator
}

// WatcherApp is the application layer between the CLI and the mirroring
// engine. It constructs all dependencies from config, records the run and
// releases resources on Close.
type WatcherApp struct {
	cfg      *config.Config
	bucket   mirror.BucketSpec
	db       *database.SQLiteDatabase
	pipeline *mirror.Pipeline
	orch     *mirror.Orchestrator
	notifier *notify.Async
	run      *database.Run
	logger   mirror.Logger
	logFile  *os.File
}

// NewWatcherApp creates a fully wired WatcherApp from the given config.
// The caller must call Close when done.
func NewWatcherApp(ctx context.Context, cfg *config.Config, opts Options) (_ *WatcherApp, err error) {
	if opts.Clock == nil {
		opts.Clock = mirror.RealClock{}
	}
	if opts.IDs == nil {
		opts.IDs = mirror.UUIDGenerator{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	bucket, err := mirror.ParseBucketSpec(cfg.Bucket)
	if err != nil {
		return nil, err
	}
	watchRoot, err := resolveWatchRoot(cfg.WatchPath)
	if err != nil {
		return nil, err
	}

	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	runID := opts.IDs.New()
	slogger, logFile, err := newLogger(cfg.LogDir, runID, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	if logFile != nil {
		closers = append(closers, logFile.Close)
	}
	logger := &slogAdapter{l: slogger}

	db, err := database.NewDatabaseFromConfig(cfg.Database, opts.Clock)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	closers = append(closers, db.Close)
	if err := db.CheckMigrations(); err != nil {
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	fsmgr, err := fs.NewOSManager(watchRoot, cfg.Filesystem.Ignore)
	if err != nil {
		return nil, fmt.Errorf("creating filesystem manager: %w", err)
	}

	factory, err := newSessionFactory(cfg, bucket, logger)
	if err != nil {
		return nil, err
	}
	sessions := mirror.NewSessionManager(factory, cfg.AWS.SessionTTL.Duration, opts.Clock, logger)

	notifier := notify.NewAsync(newNotifier(cfg, opts.Clock, logger), 0, logger)
	closers = append(closers, notifier.Close)

	audit, err := newAuditRecorder(ctx, cfg, db)
	if err != nil {
		return nil, err
	}

	inFlight := mirror.NewInFlightSet()
	pipeline := mirror.NewPipeline(mirror.PipelineConfig{
		Bucket:           bucket,
		ConcurrencyLimit: cfg.ConcurrencyLimit,
		AllowDelete:      cfg.AllowDelete,
		TagFields:        cfg.Tags.Fields,
		OpTimeout:        cfg.Store.OpTimeout.Duration,
	}, sessions, fsmgr, inFlight, mirror.NewDeadLetterQueue(db, logger), audit, notifier, opts.Clock, logger)

	var reconciler mirror.Reconciler
	switch cfg.Poll.Strategy {
	case "listing":
		reconciler = mirror.NewListingReconciler(cfg.Poll.Incremental, opts.Clock, logger)
	default:
		reconciler = mirror.NewSnapshotReconciler(db, opts.Clock, logger)
	}

	watch := opts.Watch
	if watch == nil {
		watch = watcher.Factory(watcher.Options{Logger: logger})
	}

	orch := mirror.NewOrchestrator(mirror.OrchestratorConfig{
		WatchRoot:          watchRoot,
		Bucket:             bucket,
		UseFallback:        cfg.UseFallback,
		Backtrack:          cfg.Backtrack.Enabled,
		BacktrackSince:     cfg.BacktrackSince(),
		CheckRemoteOnStart: cfg.CheckRemoteOnStart,
		PollInterval:       cfg.Poll.Interval.Duration,
		AllowDelete:        cfg.AllowDelete,
		SynthesizeDeletes:  cfg.Poll.SynthesizeDeletes,
	}, mirror.NewClassifier(watchRoot, fsmgr.Matcher()), inFlight, pipeline, reconciler, fsmgr, sessions, watch, notifier, logger)

	run := newRun(runID, cfg)
	run.WatchPath = watchRoot

	return &WatcherApp{
		cfg:      cfg,
		bucket:   bucket,
		db:       db,
		pipeline: pipeline,
		orch:     orch,
		notifier: notifier,
		run:      run,
		logger:   logger,
		logFile:  logFile,
	}, nil
}

// resolveWatchRoot makes path absolute and checks that it is a directory.
func resolveWatchRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving watch path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("checking watch path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("watch path is not a directory: %s", abs)
	}
	return abs, nil
}

// newSessionFactory builds the store factory, wrapping it in age encryption
// when enabled.
func newSessionFactory(cfg *config.Config, bucket mirror.BucketSpec, logger mirror.Logger) (mirror.SessionFactory, error) {
	factory, err := vault.NewSessionFactoryFromConfig(cfg, bucket.Name, logger)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	if !cfg.Encryption.Enabled {
		return factory, nil
	}
	enc := encryption.NewAgeEncryptor(cfg.Encryption)
	if !enc.IsConfigured() {
		return nil, fmt.Errorf("encryption enabled but no key at %s: run 'fswatcher keys init'", cfg.Encryption.PublicKeyPath)
	}
	return vault.WithEncryption(factory, enc), nil
}

// newNotifier returns Slack when a token is configured and the log otherwise.
func newNotifier(cfg *config.Config, clock mirror.Clock, logger mirror.Logger) mirror.Notifier {
	if cfg.Slack.Token == "" {
		return notify.LogNotifier{Logger: logger}
	}
	return notify.NewSlackNotifier(notify.SlackOptions{
		Token:         cfg.Slack.Token,
		Channel:       cfg.Slack.Channel,
		ErrorChannel:  cfg.Slack.ErrorChannel,
		RatePerSecond: cfg.Slack.RatePerSecond,
		Clock:         clock,
		Logger:        logger,
	})
}

// newAuditRecorder always records to the database and adds Timestream when
// both its database and table are configured.
func newAuditRecorder(ctx context.Context, cfg *config.Config, db *database.SQLiteDatabase) (mirror.AuditRecorder, error) {
	recorders := telemetry.Multi{db}
	if cfg.Timestream.Database == "" || cfg.Timestream.Table == "" {
		return recorders, nil
	}
	awsCfg, err := vault.LoadAWSConfig(ctx, vault.S3Options{
		Region:          cfg.AWS.Region,
		Profile:         cfg.AWS.Profile,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		MaxAttempts:     cfg.AWS.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("loading aws config for timestream: %w", err)
	}
	return append(recorders, telemetry.NewTimestreamRecorderFromConfig(awsCfg, cfg.Timestream.Database, cfg.Timestream.Table)), nil
}

// RunID identifies this run in logs and in the run history.
func (a *WatcherApp) RunID() string {
	return a.run.ID
}

// Run mirrors until ctx is cancelled or a fatal error occurs. The run is
// recorded in the database with its final mode and counters.
func (a *WatcherApp) Run(ctx context.Context) error {
	if err := a.db.CreateRun(ctx, a.run); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	a.logger.Info("starting watcher", "watch_path", a.run.WatchPath, "bucket", a.bucket.String(), "concurrency", a.cfg.ConcurrencyLimit, "allow_delete", a.cfg.AllowDelete)

	runErr := a.orch.Run(ctx)

	stats := a.pipeline.Stats()
	finishRun(a.run, a.orch.Mode(), stats, runErr)
	if err := a.db.FinishRun(context.WithoutCancel(ctx), a.run); err != nil {
		a.logger.Error("recording run result", "error", err)
	}
	a.logger.Info("watcher stopped", "mode", a.run.Mode, "cycles", a.orch.Cycles(), "uploaded", stats.Uploaded, "deleted", stats.Deleted,
		"skipped", stats.Skipped, "dead_lettered", stats.DeadLettered, "failed", stats.Failed)
	return runErr
}

// RetryDeadLetters replays persisted dead letters for the configured bucket
// through the pipeline. Entries that upload, have vanished locally or are
// dead-lettered again are removed; a new entry is already appended in the
// last case. Entries that fail are kept. It returns the number uploaded.
func (a *WatcherApp) RetryDeadLetters(ctx context.Context) (int, error) {
	entries, err := a.db.ListDeadLetters(ctx, 0)
	if err != nil {
		return 0, err
	}

	uploaded := 0
	for _, e := range entries {
		if e.Bucket != a.bucket.String() {
			a.logger.Debug("skipping dead letter for other bucket", "id", e.ID, "bucket", e.Bucket)
			continue
		}
		rec := &mirror.ChangeRecord{SourcePath: e.SourcePath, Kind: mirror.KindUpdate, WatchRoot: a.run.WatchPath}
		outcome, err := a.pipeline.Apply(ctx, rec)
		if errors.Is(err, mirror.ErrBucketNotFound) {
			return uploaded, err
		}
		if err != nil {
			a.logger.Warn("dead letter retry failed", "id", e.ID, "path", e.SourcePath, "error", err)
			continue
		}
		a.logger.Info("dead letter retried", "id", e.ID, "path", e.SourcePath, "outcome", outcome.String())
		if outcome == mirror.OutcomeUploaded {
			uploaded++
		}
		if err := a.db.DeleteDeadLetter(ctx, e.ID); err != nil {
			return uploaded, err
		}
	}
	return uploaded, nil
}

// Stats returns the pipeline counters so far.
func (a *WatcherApp) Stats() mirror.PipelineStats {
	return a.pipeline.Stats()
}

// State returns the orchestrator's current state.
func (a *WatcherApp) State() mirror.State {
	return a.orch.State()
}

// Close flushes queued notifications and closes all resources.
func (a *WatcherApp) Close() error {
	var errs []error
	if err := a.notifier.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing notifier: %w", err))
	}
	if _, _, dropped := a.notifier.Stats(); dropped > 0 {
		a.logger.Warn("notifications dropped", "count", dropped)
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}

// Status summarizes the state database.
type Status struct {
	TrackedFiles int
	DeadLetters  int
	LastRun      *database.Run
}

// ReadStatus collects a Status from db.
func ReadStatus(ctx context.Context, db *database.SQLiteDatabase) (*Status, error) {
	tracked, err := db.CountTrackedFiles(ctx)
	if err != nil {
		return nil, err
	}
	dead, err := db.ListDeadLetters(ctx, 0)
	if err != nil {
		return nil, err
	}
	st := &Status{TrackedFiles: tracked, DeadLetters: len(dead)}
	runs, err := db.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		st.LastRun = runs[0]
	}
	return st, nil
}

// OpenDatabase opens the state database named by cfg for read-only commands
// such as history and deadletters.
func OpenDatabase(cfg *config.Config) (*database.SQLiteDatabase, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database, mirror.RealClock{})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}
