// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/workbench/pkg/contextkeys"
//	ctx = contextkeys.WithIdentity(ctx, identity)
//	identity := middleware.GetIdentity(r)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: middleware.APIAuth, middleware.WebSession (pkg/middleware)
	// Required by: All protected API endpoints and web pages
	// Type: *auth.Identity
	IdentityKey Key = "identity"

	// ProjectIDKey contains the project id that passed the owner check
	// Set by: middleware.RequireProjectAccess (pkg/middleware/auth.go)
	// Used by: Project-scoped handlers (tasks, updates, documents)
	// Type: int64
	ProjectIDKey Key = "project_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// AuditLoggerKey contains the audit.Logger for the request
	// Set by: audit.Middleware
	// Used by: middleware denials, auth and admin handlers
	// Type: audit.Logger
	AuditLoggerKey Key = "audit_logger"
)

// WithIdentity adds the verified identity to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithProjectID adds an authorized project id to the context
func WithProjectID(ctx context.Context, projectID int64) context.Context {
	return context.WithValue(ctx, ProjectIDKey, projectID)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithAuditLogger adds the audit logger to the context
func WithAuditLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetProjectID retrieves the authorized project id from context
func GetProjectID(ctx context.Context) (int64, bool) {
	projectID, ok := ctx.Value(ProjectIDKey).(int64)
	return projectID, ok
}
