package notify

import (
	"context"

	"fswatcher/internal/mirror"
)

// LogNotifier writes notifications to the log. It stands in for chat when no
// Slack token is configured.
type LogNotifier struct {
	Logger mirror.Logger
}

var _ mirror.Notifier = LogNotifier{}

func (l LogNotifier) Notify(_ context.Context, n mirror.Notification) error {
	if n.Alert == mirror.AlertError {
		l.Logger.Warn("notification", "message", n.Message)
		return nil
	}
	l.Logger.Debug("notification", "message", n.Message)
	return nil
}
