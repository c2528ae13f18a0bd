package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/workbench/pkg/assets"
	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/httputil"
	"github.com/platinummonkey/workbench/pkg/middleware"
	"github.com/platinummonkey/workbench/pkg/observability"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files
const multipartMemory = 8 << 20

// parseUpload reads the multipart form and its "file" part. The caller
// closes the returned file.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			httputil.WriteErrorMessage(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds the %d byte upload limit", s.cfg.MaxUploadBytes))
			return nil, nil, false
		}
		httputil.WriteBadRequest(w, "expected a multipart form")
		return nil, nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequest(w, "file is required")
		return nil, nil, false
	}
	return file, header, true
}

// streamFile writes a stored file as an attachment
func streamFile(w http.ResponseWriter, r *http.Request, body io.ReadCloser, filename, contentType string, size int64) {
	defer body.Close()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to stream file")
	}
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.assets.ListDocuments(r.Context(), projectID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, docs)
}

// uploadDocument handles POST /api/projects/{project_id}/documents with the
// multipart fields name, type and file
func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	file, header, ok := s.parseUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	docType, err := assets.ParseDocumentType(r.FormValue("type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := projectID(r)
	doc, err := s.assets.UploadDocument(r.Context(), id, &assets.DocumentUpload{
		Upload: assets.Upload{
			Name:        r.FormValue("name"),
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        file,
			UploadedBy:  middleware.GetIdentity(r).ID,
		},
		Type: docType,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.record(r, audit.NewEvent(r, audit.EventTypeDataDocumentUpload, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeDocument, formatID(doc.ID)).
		WithMetadata("project_id", id).
		WithMetadata("size", doc.Size))
	httputil.WriteCreated(w, doc)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	documentID, ok := httputil.ParsePathInt64OrError(w, r, "document_id")
	if !ok {
		return
	}
	doc, err := s.assets.GetDocument(r.Context(), projectID(r), documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}

func (s *Server) downloadDocument(w http.ResponseWriter, r *http.Request) {
	documentID, ok := httputil.ParsePathInt64OrError(w, r, "document_id")
	if !ok {
		return
	}
	doc, body, err := s.assets.OpenDocument(r.Context(), projectID(r), documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	streamFile(w, r, body, doc.Filename, doc.ContentType, doc.Size)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID, ok := httputil.ParsePathInt64OrError(w, r, "document_id")
	if !ok {
		return
	}
	id := projectID(r)
	if err := s.assets.DeleteDocument(r.Context(), id, documentID); err != nil {
		writeError(w, r, err)
		return
	}
	s.record(r, audit.NewEvent(r, audit.EventTypeDataDocumentDelete, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeDocument, formatID(documentID)).
		WithMetadata("project_id", id))
	httputil.WriteNoContent(w)
}

// canSeeModel reports whether the caller may read a model. Unassigned
// models are visible to every signed in user.
func (s *Server) canSeeModel(r *http.Request, m *assets.Model3D) (bool, error) {
	if m.ProjectID == nil {
		return true, nil
	}
	return s.checker.CanAccess(r.Context(), middleware.GetIdentity(r), *m.ProjectID)
}

// listModels handles GET /api/models
func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.assets.ListModelsForIdentity(r.Context(), middleware.GetIdentity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, models)
}

// uploadModel handles POST /api/models with the multipart fields name, type,
// description, project_id and file
func (s *Server) uploadModel(w http.ResponseWriter, r *http.Request) {
	file, header, ok := s.parseUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	modelType, err := assets.ParseModelType(r.FormValue("type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	identity := middleware.GetIdentity(r)

	var target *int64
	if raw := strings.TrimSpace(r.FormValue("project_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httputil.WriteBadRequest(w, "invalid project_id")
			return
		}
		if err := s.checker.Authorize(r.Context(), identity, id); err != nil {
			writeError(w, r, err)
			return
		}
		target = &id
	}

	model, err := s.assets.UploadModel(r.Context(), &assets.ModelUpload{
		Upload: assets.Upload{
			Name:        r.FormValue("name"),
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        file,
			UploadedBy:  identity.ID,
		},
		Type:        modelType,
		Description: r.FormValue("description"),
		ProjectID:   target,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	event := audit.NewEvent(r, audit.EventTypeDataModelUpload, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeModel, formatID(model.ID)).
		WithMetadata("size", model.Size)
	if target != nil {
		event.WithMetadata("project_id", *target)
	}
	s.record(r, event)
	httputil.WriteCreated(w, model)
}

// getModel handles GET /api/models/{model_id}
func (s *Server) getModel(w http.ResponseWriter, r *http.Request) {
	modelID, ok := httputil.ParsePathInt64OrError(w, r, "model_id")
	if !ok {
		return
	}
	model, err := s.assets.GetModel(r.Context(), modelID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	visible, err := s.canSeeModel(r, model)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !visible {
		httputil.WriteForbidden(w, "no access to this model")
		return
	}
	httputil.WriteSuccess(w, model)
}

// downloadModel handles GET /api/models/{model_id}/download
func (s *Server) downloadModel(w http.ResponseWriter, r *http.Request) {
	modelID, ok := httputil.ParsePathInt64OrError(w, r, "model_id")
	if !ok {
		return
	}
	model, err := s.assets.GetModel(r.Context(), modelID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	visible, err := s.canSeeModel(r, model)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !visible {
		httputil.WriteForbidden(w, "no access to this model")
		return
	}

	model, body, err := s.assets.OpenModel(r.Context(), modelID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filename := model.Name
	if model.Format != "" && !strings.HasSuffix(strings.ToLower(filename), "."+model.Format) {
		filename += "." + model.Format
	}
	streamFile(w, r, body, filename, model.ContentType, model.Size)
}

// assignModel handles POST /api/models/{model_id}/assign. The caller needs
// access to the target project and, when the model already belongs to a
// different project, to that one too.
func (s *Server) assignModel(w http.ResponseWriter, r *http.Request) {
	modelID, ok := httputil.ParsePathInt64OrError(w, r, "model_id")
	if !ok {
		return
	}
	var req AssignRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ProjectID == nil || *req.ProjectID <= 0 {
		httputil.WriteBadRequest(w, "project_id is required")
		return
	}
	identity := middleware.GetIdentity(r)

	model, err := s.assets.GetModel(r.Context(), modelID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.checker.Authorize(r.Context(), identity, *req.ProjectID); err != nil {
		s.recordAssignDenied(r, modelID, err)
		writeError(w, r, err)
		return
	}
	if model.ProjectID != nil && *model.ProjectID != *req.ProjectID {
		if err := s.checker.Authorize(r.Context(), identity, *model.ProjectID); err != nil {
			s.recordAssignDenied(r, modelID, err)
			writeError(w, r, err)
			return
		}
	}

	model, err = s.assets.AssignModel(r.Context(), modelID, req.ProjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.record(r, audit.NewEvent(r, audit.EventTypeDataModelAssign, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeModel, formatID(modelID)).
		WithMetadata("project_id", *req.ProjectID))
	httputil.WriteSuccess(w, model)
}

func (s *Server) recordAssignDenied(r *http.Request, modelID int64, err error) {
	if auth.KindOf(err) != auth.KindForbidden {
		return
	}
	s.record(r, audit.NewEvent(r, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied).
		WithResource(audit.ResourceTypeModel, formatID(modelID)).
		WithError(err))
}

// deleteModel handles DELETE /api/models/{model_id}
func (s *Server) deleteModel(w http.ResponseWriter, r *http.Request) {
	modelID, ok := httputil.ParsePathInt64OrError(w, r, "model_id")
	if !ok {
		return
	}
	if err := s.assets.DeleteModel(r.Context(), modelID); err != nil {
		writeError(w, r, err)
		return
	}
	s.record(r, audit.NewEvent(r, audit.EventTypeDataModelDelete, audit.EventStatusSuccess).
		WithResource(audit.ResourceTypeModel, formatID(modelID)))
	httputil.WriteNoContent(w)
}
