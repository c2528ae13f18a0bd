// Package api provides the JSON HTTP API of the workbench project portal.
//
// # Overview
//
// The API exposes accounts, projects, memberships, tasks, updates, documents
// and 3D models. Every route except the /api/auth group requires a verified
// credential, either a Bearer header or the access_token cookie set at login.
//
// # Architecture
//
// The API is built on gorilla/mux. Access decisions are made by pkg/auth and
// enforced by pkg/middleware before a handler runs:
//
//   - /api/auth: login, admin login, register and logout (login limited per client IP)
//   - /api/users: administrator only, except /api/users/me
//   - /api/projects: listing is filtered by membership; detail routes need project access
//   - /api/projects/{id}/members: administrator only
//   - /api/projects/{id}/tasks, updates, documents: any identity with project access
//   - /api/models: unassigned models are visible to all; assigned ones follow project access
//
// A missing project answers 404 for everyone before any membership check, so
// callers without access learn nothing they could not learn as administrators.
//
// # Usage
//
//	server := api.NewServer(api.Config{AccessTokenTTL: 24 * time.Hour}, api.Dependencies{
//		Issuer:   issuer,
//		Verifier: verifier,
//		Checker:  checker,
//		Users:    userStore,
//		Projects: projectService,
//		Assets:   assetService,
//		Cache:    membershipCache,
//	})
//	http.ListenAndServe(":8080", server)
//
// # Errors
//
// Failures are written as {"error": "..."}. Access control errors keep the
// status chosen by pkg/auth; store sentinels map to 404, 400 or 409; anything
// else is logged and answered with a generic 500.
//
// # Audit
//
// Logins, registrations, administrative changes and file operations are
// recorded through the audit logger in Dependencies.
package api
