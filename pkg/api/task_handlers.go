package api

import (
	"net/http"

	"github.com/platinummonkey/workbench/pkg/httputil"
	"github.com/platinummonkey/workbench/pkg/projects"
)

// listTasks handles GET /api/projects/{project_id}/tasks. With
// critical_only=true only critical path tasks are returned.
func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	criticalOnly, err := httputil.ParseQueryBool(r, "critical_only", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	tasks, err := s.projects.ListTasks(r.Context(), projectID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if criticalOnly {
		critical := make([]*projects.Task, 0, len(tasks))
		for _, t := range tasks {
			if t.IsCriticalPath {
				critical = append(critical, t)
			}
		}
		tasks = critical
	}
	httputil.WriteSuccess(w, tasks)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var in projects.TaskInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	task, err := s.projects.CreateTask(r.Context(), projectID(r), &in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, task)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := httputil.ParsePathInt64OrError(w, r, "task_id")
	if !ok {
		return
	}
	task, err := s.projects.GetTask(r.Context(), projectID(r), taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := httputil.ParsePathInt64OrError(w, r, "task_id")
	if !ok {
		return
	}
	var in projects.TaskInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	task, err := s.projects.UpdateTask(r.Context(), projectID(r), taskID, &in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := httputil.ParsePathInt64OrError(w, r, "task_id")
	if !ok {
		return
	}
	if err := s.projects.DeleteTask(r.Context(), projectID(r), taskID); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) listUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := s.projects.ListUpdates(r.Context(), projectID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, updates)
}

func (s *Server) createUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	date, err := req.date()
	if err != nil {
		writeError(w, r, err)
		return
	}
	update, err := s.projects.CreateUpdate(r.Context(), projectID(r), req.Content, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, update)
}

// toggleUpdate flips the completed flag of an update
func (s *Server) toggleUpdate(w http.ResponseWriter, r *http.Request) {
	updateID, ok := httputil.ParsePathInt64OrError(w, r, "update_id")
	if !ok {
		return
	}
	update, err := s.projects.ToggleUpdate(r.Context(), projectID(r), updateID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, update)
}

func (s *Server) deleteUpdate(w http.ResponseWriter, r *http.Request) {
	updateID, ok := httputil.ParsePathInt64OrError(w, r, "update_id")
	if !ok {
		return
	}
	if err := s.projects.DeleteUpdate(r.Context(), projectID(r), updateID); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
