package api

import (
	"net/http"
	"strconv"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/contextkeys"
	"github.com/platinummonkey/workbench/pkg/httputil"
	"github.com/platinummonkey/workbench/pkg/middleware"
	"github.com/platinummonkey/workbench/pkg/projects"
)

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// projectID returns the id RequireProjectAccess authorized
func projectID(r *http.Request) int64 {
	id, _ := contextkeys.GetProjectID(r.Context())
	return id
}

// listProjects handles GET /api/projects. Administrators see every project,
// everyone else sees the projects they belong to or are the client of.
func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.projects.ListForIdentity(r.Context(), middleware.GetIdentity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// createProject handles POST /api/projects
func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var in projects.ProjectInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	p, err := s.projects.CreateProject(r.Context(), &in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.record(r, audit.NewEvent(r, audit.EventTypeAdminProjectCreate, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeProject, formatID(p.ID)))
	httputil.WriteCreated(w, p)
}

// getProject handles GET /api/projects/{project_id}
func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.projects.GetProject(r.Context(), projectID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

// updateProject handles PUT /api/projects/{project_id}
func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	var in projects.ProjectInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	id := projectID(r)
	p, err := s.projects.UpdateProject(r.Context(), id, &in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if in.ClientID != nil {
		s.invalidateProject(r, id)
	}
	s.record(r, audit.NewEvent(r, audit.EventTypeAdminProjectUpdate, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeProject, formatID(id)))
	httputil.WriteSuccess(w, p)
}

// deleteProject handles DELETE /api/projects/{project_id}
func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	id := projectID(r)
	if err := s.projects.DeleteProject(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateProject(r, id)
	s.record(r, audit.NewEvent(r, audit.EventTypeAdminProjectDelete, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeProject, formatID(id)))
	httputil.WriteNoContent(w)
}

// listMembers handles GET /api/projects/{project_id}/members
func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.projects.ListMembers(r.Context(), projectID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

// addMember handles POST /api/projects/{project_id}/members
func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}
	id := projectID(r)

	if _, err := s.users.GetByID(r.Context(), req.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.projects.AddMember(r.Context(), id, req.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(r, req.UserID, id)

	s.record(r, audit.NewEvent(r, audit.EventTypeAdminMemberAdd, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeProject, formatID(id)).
		WithMetadata("member_id", req.UserID))
	httputil.WriteCreated(w, map[string]int64{"project_id": id, "user_id": req.UserID})
}

// removeMember handles DELETE /api/projects/{project_id}/members/{user_id}
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	id := projectID(r)
	if err := s.projects.RemoveMember(r.Context(), id, userID); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(r, userID, id)

	s.record(r, audit.NewEvent(r, audit.EventTypeAdminMemberRemove, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeProject, formatID(id)).
		WithMetadata("member_id", userID))
	httputil.WriteNoContent(w)
}
