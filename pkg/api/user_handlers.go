package api

import (
	"net/http"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/httputil"
	"github.com/platinummonkey/workbench/pkg/middleware"
	"github.com/platinummonkey/workbench/pkg/observability"
	"github.com/platinummonkey/workbench/pkg/users"
)

// me handles GET /api/users/me
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)
	projectIDs, err := s.projects.ProjectIDsForUser(r.Context(), identity.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, &UserResponse{Identity: identity, Projects: projectIDs})
}

// listUsers handles GET /api/users
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.users.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// getUser handles GET /api/users/{user_id}
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	identity, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	projectIDs, err := s.projects.ProjectIDsForUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, &UserResponse{Identity: identity, Projects: projectIDs})
}

// createUser handles POST /api/users
func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req users.CreateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	for _, id := range req.Projects {
		exists, err := s.projects.ProjectExists(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !exists {
			httputil.WriteNotFoundError(w, "project "+formatID(id)+" not found")
			return
		}
	}

	identity, err := s.users.Create(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	projectIDs := []int64{}
	if len(req.Projects) > 0 {
		changed, err := s.projects.SetUserProjects(r.Context(), identity.ID, req.Projects)
		if err != nil {
			// memberships roll back on failure; drop the user so a retry can reuse the email
			if delErr := s.users.Delete(r.Context(), identity.ID); delErr != nil {
				observability.FromContext(r.Context()).WithError(delErr).
					WithField("user_id", identity.ID).
					Error("failed to remove user after membership error")
			}
			writeError(w, r, err)
			return
		}
		s.invalidate(r, identity.ID, changed...)
		projectIDs = req.Projects
	}

	s.record(r, audit.NewEvent(r, audit.EventTypeAdminUserCreate, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeUser, identity.Subject()).
		WithMetadata("role", string(identity.EffectiveRole())))
	httputil.WriteCreated(w, &UserResponse{Identity: identity, Projects: projectIDs})
}

// updateUser handles PUT /api/users/{user_id}
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	var req users.UpdateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	identity, err := s.users.Update(r.Context(), id, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if req.Projects != nil {
		changed, err := s.projects.SetUserProjects(r.Context(), id, *req.Projects)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.invalidate(r, id, changed...)
	}
	projectIDs, err := s.projects.ProjectIDsForUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	event := audit.NewEvent(r, audit.EventTypeAdminUserUpdate, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeUser, identity.Subject())
	if req.Password != nil {
		event.WithMetadata("password_changed", true)
	}
	s.record(r, event)
	httputil.WriteSuccess(w, &UserResponse{Identity: identity, Projects: projectIDs})
}

// deleteUser handles DELETE /api/users/{user_id}
func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	if caller := middleware.GetIdentity(r); caller != nil && caller.ID == id {
		httputil.WriteBadRequest(w, "cannot delete your own account")
		return
	}

	// memberships disappear with the row, so collect them first
	projectIDs, err := s.projects.ProjectIDsForUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.users.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(r, id, projectIDs...)

	s.record(r, audit.NewEvent(r, audit.EventTypeAdminUserDelete, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeUser, formatID(id)))
	httputil.WriteNoContent(w)
}
