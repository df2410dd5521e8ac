package telemetry

import (
	"context"
	"errors"

	"fswatcher/internal/mirror"
)

// Multi sends every audit record to each recorder in turn. A failing recorder
// does not stop the others.
type Multi []mirror.AuditRecorder

var _ mirror.AuditRecorder = Multi(nil)

func (m Multi) RecordAudit(ctx context.Context, rec *mirror.AuditRecord) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordAudit(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
