// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteBadRequest(w, "name is required")
//
// Access control failures go through WriteAuthError, which is the single
// place an auth.Error kind becomes an HTTP status:
//
//	if err := checker.Authorize(ctx, identity, projectID); err != nil {
//		httputil.WriteAuthError(w, r, err)
//		return
//	}
//
// Anything that is not an auth.Error is logged and answered with a generic 500.
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//	)
package httputil
