package mirror

import (
	"context"
	"time"
)

// SourceBucketExternal is the source bucket reported for local uploads.
const SourceBucketExternal = "External Server"

// AuditRecord describes one applied change for telemetry.
type AuditRecord struct {
	Action       string
	SourceKey    string
	DestKey      string
	SourceBucket string
	DestBucket   string
	Timestamp    time.Time
}

// AuditRecorder receives an AuditRecord for every successful apply.
// Errors are logged by the caller and never retried.
type AuditRecorder interface {
	RecordAudit(ctx context.Context, rec *AuditRecord) error
}

// NopAuditRecorder discards audit records.
type NopAuditRecorder struct{}

func (NopAuditRecorder) RecordAudit(context.Context, *AuditRecord) error { return nil }

// AlertType selects how a notification is presented.
type AlertType string

const (
	AlertSuccess AlertType = "success"
	AlertError   AlertType = "error"
)

// Notification is a chat message. An empty Channel means the notifier's default.
type Notification struct {
	Channel  string
	Message  string
	Alert    AlertType
	ThreadID string
}

// Notifier delivers notifications. Callers treat every outcome as non-blocking.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }
