package request

import (
	"context"
	"log/slog"
)

// LoggingSink emits lifecycle notifications to the structured log. Used when
// no external notification channel is configured.
type LoggingSink struct {
	logger *slog.Logger
}

// NewLoggingSink creates a notification sink backed by the logger.
func NewLoggingSink(logger *slog.Logger) *LoggingSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingSink{logger: logger}
}

// Notify implements NotificationSink.
func (s *LoggingSink) Notify(ctx context.Context, userID string, event Event) {
	s.logger.InfoContext(ctx, "request notification",
		"user_id", userID,
		"request_id", event.RequestID,
		"status", event.Status,
	)
}
