package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is the pull-mode cycle interval.
const DefaultPollInterval = 5 * time.Second

// State is the orchestrator's detection mode.
type State int32

const (
	StateSelectingMode State = iota
	StatePushWatching
	StatePullPolling
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateSelectingMode:
		return "SELECTING_MODE"
	case StatePushWatching:
		return "PUSH_WATCHING"
	case StatePullPolling:
		return "PULL_POLLING"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// EventSource is a recursive OS-level change subscription.
type EventSource interface {
	Events() <-chan RawEvent
	Errors() <-chan error
	Close() error
}

// WatchFactory subscribes to changes under root. It returns an error wrapping
// ErrWatchLimit when the OS has no watch resources left.
type WatchFactory func(root string) (EventSource, error)

// OrchestratorConfig configures detection.
type OrchestratorConfig struct {
	WatchRoot          string
	Bucket             BucketSpec
	UseFallback        bool
	Backtrack          bool
	BacktrackSince     time.Time
	CheckRemoteOnStart bool
	PollInterval       time.Duration
	AllowDelete        bool
	SynthesizeDeletes  bool
}

// Orchestrator selects push or pull detection and feeds the pipeline.
type Orchestrator struct {
	cfg        OrchestratorConfig
	classifier *Classifier
	inFlight   *InFlightSet
	pipeline   *Pipeline
	reconciler Reconciler
	fsys       FileSystem
	sessions   *SessionManager
	watch      WatchFactory
	notifier   Notifier
	logger     Logger

	state  atomic.Int32
	mode   atomic.Int32
	cycles atomic.Int64
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	classifier *Classifier,
	inFlight *InFlightSet,
	pipeline *Pipeline,
	reconciler Reconciler,
	fsys FileSystem,
	sessions *SessionManager,
	watch WatchFactory,
	notifier Notifier,
	logger Logger,
) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Orchestrator{
		cfg:        cfg,
		classifier: classifier,
		inFlight:   inFlight,
		pipeline:   pipeline,
		reconciler: reconciler,
		fsys:       fsys,
		sessions:   sessions,
		watch:      watch,
		notifier:   notifier,
		logger:     logger,
	}
}

// State returns the current detection state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Mode returns the last detection mode entered, StatePushWatching or
// StatePullPolling, or StateSelectingMode if neither was reached.
func (o *Orchestrator) Mode() State {
	return State(o.mode.Load())
}

// Cycles returns the number of completed reconciliation cycles.
func (o *Orchestrator) Cycles() int64 {
	return o.cycles.Load()
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	if s == StatePushWatching || s == StatePullPolling {
		o.mode.Store(int32(s))
	}
	o.logger.Info("state changed", "state", s.String())
}

// Run mirrors until ctx is cancelled or a fatal error occurs, then drains the
// pipeline. Only configuration errors are returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.setState(StateSelectingMode)

	if _, err := o.sessions.Acquire(ctx); err != nil {
		o.setState(StateShutdown)
		return fmt.Errorf("acquiring initial session: %w", err)
	}

	src, err := o.selectMode()
	var runErr error
	switch {
	case err != nil:
		runErr = err
	case src != nil:
		runErr = o.runPush(ctx, src)
	default:
		runErr = o.runPull(ctx)
	}

	o.setState(StateShutdown)
	o.logger.Info("draining in-flight changes", "pending", o.inFlight.Len())
	drainErr := o.pipeline.Drain()
	if runErr != nil {
		return runErr
	}
	return drainErr
}

// selectMode returns a subscription for push mode, or nil for pull mode.
func (o *Orchestrator) selectMode() (EventSource, error) {
	if o.cfg.UseFallback {
		o.logger.Info("polling requested by configuration")
		return nil, nil
	}
	src, err := o.watch(o.cfg.WatchRoot)
	if err != nil {
		if errors.Is(err, ErrWatchLimit) {
			o.logger.Warn("watch limit reached, falling back to polling", "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("watching %s: %w", o.cfg.WatchRoot, err)
	}
	return src, nil
}

func (o *Orchestrator) runPush(ctx context.Context, src EventSource) error {
	closed := false
	defer func() {
		if !closed {
			src.Close()
		}
	}()
	o.setState(StatePushWatching)

	if o.cfg.Backtrack {
		if err := o.backtrack(ctx); err != nil {
			return err
		}
	}

	events := src.Events()
	errs := src.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-o.pipeline.Fatal():
			return err
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("event source closed")
			}
			o.dispatchEvent(ctx, ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if errors.Is(err, ErrWatchLimit) {
				o.logger.Warn("watch limit reached while watching, falling back to polling", "error", err)
				src.Close()
				closed = true
				return o.runPull(ctx)
			}
			o.logger.Error("watch error", "error", err)
		}
	}
}

func (o *Orchestrator) runPull(ctx context.Context) error {
	o.setState(StatePullPolling)

	if o.cfg.CheckRemoteOnStart {
		remote, err := o.remotePaths(ctx)
		if errors.Is(err, ErrBucketNotFound) {
			return err
		}
		if err != nil {
			o.logger.Error("listing remote objects for seed", "error", err)
		} else if err := o.reconciler.Seed(ctx, remote.Paths()); err != nil {
			o.logger.Error("seeding reconciler", "error", err)
		}
	}

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := o.pollOnce(ctx); err != nil && ctx.Err() == nil {
			o.logger.Error("reconciliation cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case err := <-o.pipeline.Fatal():
			return err
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) pollOnce(ctx context.Context) error {
	current, err := o.fsys.Walk(ctx, o.cfg.WatchRoot, time.Time{})
	if err != nil {
		return fmt.Errorf("walking %s: %w", o.cfg.WatchRoot, err)
	}
	cs, err := o.reconciler.Reconcile(ctx, current)
	if err != nil {
		return err
	}
	o.cycles.Add(1)
	o.logger.Info("reconciliation cycle", "scanned", cs.Scanned, "added", len(cs.Added), "removed", len(cs.Removed), "elapsed", cs.Elapsed)

	for _, p := range cs.Added {
		o.dispatchEvent(ctx, RawEvent{Op: OpMoved, Path: p, DestPath: p})
	}
	if o.deletesEnabled() {
		for _, p := range cs.Removed {
			o.dispatchEvent(ctx, RawEvent{Op: OpDeleted, Path: p})
		}
	}
	return nil
}

func (o *Orchestrator) deletesEnabled() bool {
	return o.cfg.AllowDelete && o.cfg.SynthesizeDeletes && o.reconciler.ReportsDeletes()
}

// backtrack uploads files that changed before the subscription started.
func (o *Orchestrator) backtrack(ctx context.Context) error {
	files, err := o.fsys.Walk(ctx, o.cfg.WatchRoot, o.cfg.BacktrackSince)
	if err != nil {
		return fmt.Errorf("backtracking %s: %w", o.cfg.WatchRoot, err)
	}

	var remote Snapshot
	if o.cfg.CheckRemoteOnStart {
		remote, err = o.remotePaths(ctx)
		if errors.Is(err, ErrBucketNotFound) {
			return err
		}
		if err != nil {
			o.logger.Error("listing remote objects for backtrack", "error", err)
		}
	}

	dispatched := 0
	for _, p := range files.Paths() {
		if ctx.Err() != nil {
			break
		}
		if _, ok := remote[p]; ok {
			continue
		}
		o.dispatchEvent(ctx, RawEvent{Op: OpMoved, Path: p, DestPath: p})
		dispatched++
	}
	o.logger.Info("backtrack complete", "files", len(files), "dispatched", dispatched)
	return nil
}

// remotePaths lists remote keys mapped back to local paths.
func (o *Orchestrator) remotePaths(ctx context.Context) (Snapshot, error) {
	sess, err := o.sessions.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := sess.Store.List(ctx, o.cfg.Bucket.Prefix)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", o.cfg.Bucket, err)
	}
	paths := make(Snapshot, len(keys))
	for _, k := range keys {
		paths[o.cfg.Bucket.LocalPath(k, o.cfg.WatchRoot)] = time.Time{}
	}
	return paths, nil
}

func (o *Orchestrator) dispatchEvent(ctx context.Context, ev RawEvent) {
	rec, ok := o.classifier.Classify(ev, o.inFlight)
	if !ok {
		return
	}
	if !o.inFlight.Add(rec.Key()) {
		return
	}
	key := o.cfg.Bucket.RemoteKey(rec.TargetPath(), rec.WatchRoot)
	o.logger.Debug("dispatching change", "record", rec.String(), "key", key)
	if err := o.notifier.Notify(ctx, Notification{Message: eventMessage(rec.Kind, key), Alert: AlertSuccess}); err != nil {
		o.logger.Warn("sending notification", "error", err)
	}
	o.pipeline.Submit(ctx, rec)
}
