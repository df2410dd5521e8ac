package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrencyLimit is the default worker pool size. It should match the
// remote client's connection pool.
const DefaultConcurrencyLimit = 20

// Outcome is what applying a record did.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeUploaded
	OutcomeDeleted
	OutcomeSkipped
	OutcomeDeadLettered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUploaded:
		return "uploaded"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDeadLettered:
		return "dead-lettered"
	default:
		return "failed"
	}
}

// PipelineConfig configures the upload pipeline.
type PipelineConfig struct {
	Bucket           BucketSpec
	ConcurrencyLimit int
	AllowDelete      bool
	TagFields        []string
	// OpTimeout bounds a single record's remote work. Zero means no bound.
	OpTimeout time.Duration
}

// PipelineStats counts outcomes since the pipeline was created.
type PipelineStats struct {
	Uploaded     int64
	Deleted      int64
	Skipped      int64
	DeadLettered int64
	Failed       int64
}

// Pipeline applies change records to the remote store on a bounded pool of
// workers.
type Pipeline struct {
	cfg         PipelineConfig
	sessions    *SessionManager
	fsys        FileSystem
	inFlight    *InFlightSet
	deadLetters *DeadLetterQueue
	audit       AuditRecorder
	notifier    Notifier
	clock       Clock
	logger      Logger

	group     errgroup.Group
	fatal     chan error
	fatalOnce sync.Once

	uploaded     atomic.Int64
	deleted      atomic.Int64
	skipped      atomic.Int64
	deadLettered atomic.Int64
	failed       atomic.Int64
}

// NewPipeline creates a Pipeline. Records must be added to inFlight before
// Submit; the pipeline removes them when done.
func NewPipeline(
	cfg PipelineConfig,
	sessions *SessionManager,
	fsys FileSystem,
	inFlight *InFlightSet,
	deadLetters *DeadLetterQueue,
	audit AuditRecorder,
	notifier Notifier,
	clock Clock,
	logger Logger,
) *Pipeline {
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if cfg.TagFields == nil {
		cfg.TagFields = DefaultTagFields
	}
	p := &Pipeline{
		cfg:         cfg,
		sessions:    sessions,
		fsys:        fsys,
		inFlight:    inFlight,
		deadLetters: deadLetters,
		audit:       audit,
		notifier:    notifier,
		clock:       clock,
		logger:      logger,
		fatal:       make(chan error, 1),
	}
	p.group.SetLimit(cfg.ConcurrencyLimit)
	return p
}

// Submit schedules rec on the worker pool, blocking while all workers are
// busy. The work runs detached from ctx cancellation so shutdown drains it.
func (p *Pipeline) Submit(ctx context.Context, rec *ChangeRecord) {
	workCtx := context.WithoutCancel(ctx)
	p.group.Go(func() error {
		return p.process(workCtx, rec)
	})
}

// Drain waits for every submitted record. It returns the fatal error, if any.
func (p *Pipeline) Drain() error {
	return p.group.Wait()
}

// Fatal delivers the first fatal error raised by a worker.
func (p *Pipeline) Fatal() <-chan error {
	return p.fatal
}

// Stats returns outcome counters.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Uploaded:     p.uploaded.Load(),
		Deleted:      p.deleted.Load(),
		Skipped:      p.skipped.Load(),
		DeadLettered: p.deadLettered.Load(),
		Failed:       p.failed.Load(),
	}
}

func (p *Pipeline) process(ctx context.Context, rec *ChangeRecord) error {
	defer func() {
		rec.Completed = true
		p.inFlight.Remove(rec.Key())
	}()

	if p.cfg.OpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.OpTimeout)
		defer cancel()
	}

	outcome, err := p.Apply(ctx, rec)
	p.count(outcome)

	key := p.cfg.Bucket.RemoteKey(rec.TargetPath(), rec.WatchRoot)
	if err != nil {
		if errors.Is(err, ErrBucketNotFound) {
			p.fatalOnce.Do(func() { p.fatal <- err })
			return err
		}
		p.logger.Error("applying change failed", "record", rec.String(), "bucket", p.cfg.Bucket.String(), "key", key, "error", err)
		p.notify(ctx, AlertError, failedMessage(rec.Kind, p.cfg.Bucket.Name, key))
		return nil
	}

	p.logger.Debug("applied change", "record", rec.String(), "outcome", outcome.String())
	if outcome == OutcomeUploaded {
		p.notify(ctx, AlertSuccess, uploadedMessage(p.cfg.Bucket.Name, key))
	}
	return nil
}

// Apply performs the remote effect of rec. Applying the same record twice
// leaves the store in the same state. A non-nil error is either a *Failure or
// wraps ErrBucketNotFound.
func (p *Pipeline) Apply(ctx context.Context, rec *ChangeRecord) (Outcome, error) {
	if err := rec.Validate(); err != nil {
		return OutcomeFailed, err
	}
	if rec.Kind == KindDelete {
		return p.applyDelete(ctx, rec)
	}
	return p.applyPut(ctx, rec)
}

func (p *Pipeline) applyPut(ctx context.Context, rec *ChangeRecord) (Outcome, error) {
	path := rec.TargetPath()
	key := p.cfg.Bucket.RemoteKey(path, rec.WatchRoot)

	st, err := p.fsys.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("file vanished before upload", "path", path)
			return OutcomeSkipped, nil
		}
		return OutcomeFailed, p.failure(rec, key, fmt.Errorf("stat: %w", err))
	}
	tags := BuildTags(st, p.cfg.TagFields)

	sess, err := p.sessions.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrBucketNotFound) {
			return OutcomeFailed, err
		}
		return OutcomeFailed, p.failure(rec, key, err)
	}

	f, err := p.fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("file vanished before upload", "path", path)
			return OutcomeSkipped, nil
		}
		return OutcomeFailed, p.failure(rec, key, fmt.Errorf("open: %w", err))
	}
	defer f.Close()

	err = sess.Store.Put(ctx, key, f, tags)
	switch {
	case err == nil:
	case errors.Is(err, ErrRetriesExhausted):
		p.deadLetters.Append(ctx, DeadLetterEntry{
			SourcePath: path,
			Bucket:     p.cfg.Bucket.String(),
			RemoteKey:  key,
			Tags:       tags,
			Reason:     err.Error(),
			EnqueuedAt: p.clock.Now(),
		})
		return OutcomeDeadLettered, nil
	case errors.Is(err, ErrClient):
		p.sessions.Invalidate()
		return OutcomeFailed, p.failure(rec, key, err)
	default:
		return OutcomeFailed, p.failure(rec, key, err)
	}

	p.recordAudit(ctx, &AuditRecord{
		Action:       rec.Kind.Action(),
		SourceKey:    path,
		DestKey:      key,
		SourceBucket: SourceBucketExternal,
		DestBucket:   p.cfg.Bucket.Name,
	})
	return OutcomeUploaded, nil
}

func (p *Pipeline) applyDelete(ctx context.Context, rec *ChangeRecord) (Outcome, error) {
	key := p.cfg.Bucket.RemoteKey(rec.SourcePath, rec.WatchRoot)
	if !p.cfg.AllowDelete {
		p.logger.Debug("delete not allowed, skipping", "path", rec.SourcePath, "key", key)
		return OutcomeSkipped, nil
	}

	sess, err := p.sessions.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrBucketNotFound) {
			return OutcomeFailed, err
		}
		return OutcomeFailed, p.failure(rec, key, err)
	}

	if err := sess.Store.Delete(ctx, key); err != nil {
		if errors.Is(err, ErrClient) {
			p.sessions.Invalidate()
		}
		return OutcomeFailed, p.failure(rec, key, err)
	}

	p.recordAudit(ctx, &AuditRecord{
		Action:       rec.Kind.Action(),
		SourceKey:    rec.SourcePath,
		DestKey:      key,
		SourceBucket: SourceBucketExternal,
	})
	return OutcomeDeleted, nil
}

func (p *Pipeline) failure(rec *ChangeRecord, key string, err error) *Failure {
	return &Failure{
		Action: rec.Kind.Action(),
		Path:   rec.TargetPath(),
		Bucket: p.cfg.Bucket.Name,
		Key:    key,
		Err:    err,
	}
}

func (p *Pipeline) recordAudit(ctx context.Context, rec *AuditRecord) {
	rec.Timestamp = p.clock.Now()
	if err := p.audit.RecordAudit(ctx, rec); err != nil {
		p.logger.Error("recording audit event", "action", rec.Action, "key", rec.DestKey, "error", err)
	}
}

func (p *Pipeline) notify(ctx context.Context, alert AlertType, msg string) {
	if err := p.notifier.Notify(ctx, Notification{Message: msg, Alert: alert}); err != nil {
		p.logger.Warn("sending notification", "error", err)
	}
}

func (p *Pipeline) count(o Outcome) {
	switch o {
	case OutcomeUploaded:
		p.uploaded.Add(1)
	case OutcomeDeleted:
		p.deleted.Add(1)
	case OutcomeSkipped:
		p.skipped.Add(1)
	case OutcomeDeadLettered:
		p.deadLettered.Add(1)
	default:
		p.failed.Add(1)
	}
}
