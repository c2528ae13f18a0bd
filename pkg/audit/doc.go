// Package audit records security relevant events: logins, failed logins,
// access denials and administrative changes.
//
// Events are built with NewEvent and the With* helpers and written to a
// Logger. StructuredLogger sends them through the application logger with
// an audit=true field; FileLogger appends them as JSON lines to a rotating
// file; MultiLogger combines both.
//
// # Usage
//
//	logger := audit.NewMultiLogger(
//		audit.NewStructuredLogger(appLogger),
//		fileLogger,
//	)
//	audit.Record(ctx, logger, audit.NewEvent(r, audit.EventTypeAuthLogin, audit.EventStatusSuccess).
//		WithUser(identity.ID, identity.Email))
//
// Record never fails the caller; write errors are logged instead.
package audit
