// Package middleware provides HTTP middleware for authentication, authorization, and login rate limiting.
//
// # Overview
//
// Every guard here delegates the decision to pkg/auth and only translates
// the outcome to HTTP. The JSON API answers failures with a JSON error body;
// the web surface answers with redirects.
//
// # Middleware Components
//
// APIAuth: credential verification for the JSON API
//
//	router.Use(middleware.APIAuth(verifier))
//	// Bearer header first, then the access_token cookie; identity goes in the context
//
// Require, RequireRole, RequireAdministrator: role gate
//
//	admin := router.PathPrefix("/api/users").Subrouter()
//	admin.Use(middleware.RequireAdministrator())
//	// 401 without identity, 403 when denied
//
// RequireProjectAccess: project owner check
//
//	projects.Use(middleware.RequireProjectAccess(checker, "project_id"))
//	// 400 malformed id, 404 unknown project, 403 no access
//
// WebSession: cookie session for server rendered pages
//
//	router.Use(middleware.WebSession(verifier, middleware.DefaultWebSessionOptions()))
//	// /dashboard, /admin and /projects redirect to /auth/login?next=... when signed out
//
// LimitLogins: per client IP limit on credential submissions
//
//	limiter := middleware.NewLoginLimiter(middleware.RateLimitConfig{RequestsPerMinute: 10, Burst: 5})
//	// or middleware.NewDistributedLoginLimiter(redisClient, cfg, "") to share across instances
//	login.Use(middleware.LimitLogins(limiter, metrics, "api"))
//
// Denials are recorded to the audit logger found in the request context.
package middleware
