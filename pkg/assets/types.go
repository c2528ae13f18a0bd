package assets

import (
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/platinummonkey/workbench/pkg/auth"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrModelNotFound    = errors.New("model not found")
)

// DocumentType classifies a project document
type DocumentType string

const (
	DocumentTechnical DocumentType = "technical"
	DocumentFiscal    DocumentType = "fiscal"
	DocumentReport    DocumentType = "report"
	DocumentOther     DocumentType = "other"
)

// ParseDocumentType validates s. Empty means other.
func ParseDocumentType(s string) (DocumentType, error) {
	switch t := DocumentType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return DocumentOther, nil
	case DocumentTechnical, DocumentFiscal, DocumentReport, DocumentOther:
		return t, nil
	}
	return "", auth.NewError(auth.KindInvalidArgument, "type must be technical, fiscal, report or other")
}

// ModelType classifies a 3D model
type ModelType string

const (
	ModelPCB       ModelType = "pcb"
	ModelCase      ModelType = "case"
	ModelComponent ModelType = "component"
	ModelAssembly  ModelType = "assembly"
	ModelOther     ModelType = "other"
)

// ParseModelType validates s. Empty means other.
func ParseModelType(s string) (ModelType, error) {
	switch t := ModelType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return ModelOther, nil
	case ModelPCB, ModelCase, ModelComponent, ModelAssembly, ModelOther:
		return t, nil
	}
	return "", auth.NewError(auth.KindInvalidArgument, "type must be pcb, case, component, assembly or other")
}

// Document is a file attached to a project
type Document struct {
	ID          int64        `json:"id"`
	ProjectID   int64        `json:"project_id"`
	Name        string       `json:"name"`
	Filename    string       `json:"filename"`
	Type        DocumentType `json:"type"`
	Key         string       `json:"-"`
	ContentType string       `json:"content_type,omitempty"`
	Size        int64        `json:"size"`
	Checksum    string       `json:"checksum,omitempty"`
	UploadedBy  *int64       `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Model3D is a 3D model, optionally assigned to a project
type Model3D struct {
	ID          int64     `json:"id"`
	ProjectID   *int64    `json:"project_id"`
	Name        string    `json:"name"`
	Type        ModelType `json:"type"`
	Description string    `json:"description,omitempty"`
	Key         string    `json:"-"`
	Format      string    `json:"format"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum,omitempty"`
	UploadedBy  *int64    `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Upload carries the common parts of an uploaded file
type Upload struct {
	Name        string
	Filename    string
	ContentType string
	Body        io.Reader
	UploadedBy  int64
}

func (u *Upload) normalize() error {
	u.Filename = path.Base(strings.ReplaceAll(strings.TrimSpace(u.Filename), "\\", "/"))
	if u.Filename == "." || u.Filename == "/" {
		u.Filename = ""
	}
	u.Name = strings.TrimSpace(u.Name)
	if u.Name == "" {
		u.Name = u.Filename
	}
	if u.Name == "" {
		return auth.NewError(auth.KindInvalidArgument, "name is required")
	}
	if u.Body == nil {
		return auth.NewError(auth.KindInvalidArgument, "file is required")
	}
	if u.ContentType == "" {
		u.ContentType = "application/octet-stream"
	}
	return nil
}

// DocumentUpload is a new project document
type DocumentUpload struct {
	Upload
	Type DocumentType
}

// ModelUpload is a new 3D model
type ModelUpload struct {
	Upload
	Type        ModelType
	Description string
	ProjectID   *int64
}

// formatOf returns the lowercase file extension without the dot
func formatOf(filename string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
}
