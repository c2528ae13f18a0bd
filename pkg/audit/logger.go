package audit

import (
	"context"
	"net/http"

	"github.com/platinummonkey/workbench/pkg/contextkeys"
	"github.com/platinummonkey/workbench/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the logger
	Close() error
}

// StructuredLogger writes audit events through the application logger with
// an audit=true field so they can be filtered out of the main log stream.
type StructuredLogger struct {
	logger *observability.Logger
}

// NewStructuredLogger creates an audit logger over logger
func NewStructuredLogger(logger *observability.Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// Log implements Logger
func (l *StructuredLogger) Log(ctx context.Context, event *Event) error {
	fields := map[string]interface{}{
		"audit":      true,
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"status":     string(event.Status),
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.Email != "" {
		fields["email"] = event.Email
	}
	if event.ResourceType != "" {
		fields["resource_type"] = string(event.ResourceType)
		fields["resource_id"] = event.ResourceID
	}
	if event.IPAddress != "" {
		fields["ip_address"] = event.IPAddress
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.Path != "" {
		fields["method"] = event.Method
		fields["path"] = event.Path
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	message := event.Message
	if message == "" {
		message = string(event.Type)
	}

	entry := l.logger.WithFields(fields)
	switch event.Status {
	case EventStatusSuccess:
		entry.Info(message)
	default:
		entry.Warn(message)
	}
	return nil
}

// Close implements Logger
func (l *StructuredLogger) Close() error {
	return nil
}

// NoopLogger discards events
type NoopLogger struct{}

// Log implements Logger
func (NoopLogger) Log(ctx context.Context, event *Event) error { return nil }

// Close implements Logger
func (NoopLogger) Close() error { return nil }

// Record logs event and reports a failure through the context logger
// instead of returning it. Request handlers use it so that an audit sink
// outage never fails the request being audited.
func Record(ctx context.Context, logger Logger, event *Event) {
	if logger == nil {
		return
	}
	if err := logger.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("event_type", string(event.Type)).
			Error("failed to write audit event")
	}
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context. A NoopLogger is
// returned when none is set.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok && logger != nil {
		return logger
	}
	return NoopLogger{}
}

// Middleware makes logger available to downstream handlers
func Middleware(logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), logger)))
		})
	}
}
