package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/contextkeys"
	"github.com/platinummonkey/workbench/pkg/httputil"
)

// APIAuth verifies the request credential and stores the identity in the
// context. Failures are answered with a JSON error and the status of the
// failure kind.
func APIAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := verifier.VerifyRequest(r)
			if err != nil {
				httputil.WriteAuthError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(contextkeys.WithIdentity(r.Context(), identity)))
		})
	}
}

// IdentityFromContext retrieves the verified identity, or nil
func IdentityFromContext(ctx context.Context) *auth.Identity {
	identity, _ := ctx.Value(contextkeys.IdentityKey).(*auth.Identity)
	return identity
}

// GetIdentity retrieves the verified identity from the request
func GetIdentity(r *http.Request) *auth.Identity {
	return IdentityFromContext(r.Context())
}

// Require rejects requests whose identity does not satisfy req: 401 when
// there is no identity, 403 when it is denied.
func Require(req auth.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r)
			if err := auth.Authorize(identity, req); err != nil {
				if auth.KindOf(err) == auth.KindForbidden {
					recordDenied(r, identity, "", "", err)
				}
				httputil.WriteAuthError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole requires one of the given roles
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return Require(auth.RequireRole(roles...))
}

// RequireAdministrator requires an administrator
func RequireAdministrator() func(http.Handler) http.Handler {
	return Require(auth.RequireAdministrator())
}

// RequireProjectAccess applies the project owner check to the project id
// in the named mux path variable. A malformed id is a 400; a missing
// project is a 404 before any permission is considered; a denial is a 403.
// On success the project id is stored in the context.
func RequireProjectAccess(checker *auth.AccessChecker, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := mux.Vars(r)[param]
			projectID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || projectID <= 0 {
				httputil.WriteBadRequest(w, "invalid "+param)
				return
			}

			identity := GetIdentity(r)
			if err := checker.Authorize(r.Context(), identity, projectID); err != nil {
				if auth.KindOf(err) == auth.KindForbidden {
					recordDenied(r, identity, audit.ResourceTypeProject, raw, err)
				}
				httputil.WriteAuthError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(contextkeys.WithProjectID(r.Context(), projectID)))
		})
	}
}

func recordDenied(r *http.Request, identity *auth.Identity, resourceType audit.ResourceType, resourceID string, err error) {
	event := audit.NewEvent(r, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied).
		WithResource(resourceType, resourceID).
		WithMessage(err.Error())
	if identity != nil {
		event.WithUser(identity.ID, identity.Email)
	}
	audit.Record(r.Context(), audit.FromContext(r.Context()), event)
}
