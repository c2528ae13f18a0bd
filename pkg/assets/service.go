package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/observability"
	"github.com/platinummonkey/workbench/pkg/storage"
)

const (
	documentColumns = `id, project_id, name, filename, type, blob_key, content_type, size, checksum, uploaded_by, created_at`
	modelColumns    = `id, project_id, name, type, description, blob_key, format, content_type, size, checksum, uploaded_by, created_at`
)

// Service stores document and model metadata in PostgreSQL and their
// content in a storage.BlobStore
type Service struct {
	db     *sql.DB
	blobs  storage.BlobStore
	logger *observability.Logger
}

// NewService creates a Service. logger may be nil.
func NewService(db *sql.DB, blobs storage.BlobStore, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}
	return &Service{db: db, blobs: blobs, logger: logger}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	d := &Document{}
	var (
		contentType, checksum sql.NullString
		uploadedBy            sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.ProjectID, &d.Name, &d.Filename, &d.Type, &d.Key,
		&contentType, &d.Size, &checksum, &uploadedBy, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.ContentType = contentType.String
	d.Checksum = checksum.String
	if uploadedBy.Valid {
		id := uploadedBy.Int64
		d.UploadedBy = &id
	}
	return d, nil
}

func scanModel(row rowScanner) (*Model3D, error) {
	m := &Model3D{}
	var (
		projectID, uploadedBy                    sql.NullInt64
		description, format, contentType, checks sql.NullString
	)
	if err := row.Scan(&m.ID, &projectID, &m.Name, &m.Type, &description, &m.Key, &format,
		&contentType, &m.Size, &checks, &uploadedBy, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Description = description.String
	m.Format = format.String
	m.ContentType = contentType.String
	m.Checksum = checks.String
	if projectID.Valid {
		id := projectID.Int64
		m.ProjectID = &id
	}
	if uploadedBy.Valid {
		id := uploadedBy.Int64
		m.UploadedBy = &id
	}
	return m, nil
}

func nullID(id int64) sql.NullInt64 {
	if id <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

func nullIDPtr(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return nullID(*id)
}

// discard removes a blob whose metadata could not be written. The janitor
// picks up anything left behind.
func (s *Service) discard(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.WithError(err).WithField("blob_key", key).Warn("failed to remove blob")
	}
}

// ListDocuments lists a project's documents, newest first
func (s *Service) ListDocuments(ctx context.Context, projectID int64) ([]*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE project_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// GetDocument retrieves a document of the given project
func (s *Service) GetDocument(ctx context.Context, projectID, documentID int64) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND project_id = $2`
	d, err := scanDocument(s.db.QueryRowContext(ctx, query, documentID, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return d, nil
}

// UploadDocument stores the file and records it against the project
func (s *Service) UploadDocument(ctx context.Context, projectID int64, in *DocumentUpload) (*Document, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	docType, err := ParseDocumentType(string(in.Type))
	if err != nil {
		return nil, err
	}

	key := storage.NewKey(storage.PrefixDocuments, in.Filename)
	info, err := s.blobs.Put(ctx, key, in.Body, in.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	query := `
		INSERT INTO documents (project_id, name, filename, type, blob_key, content_type, size, checksum, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + documentColumns
	d, err := scanDocument(s.db.QueryRowContext(ctx, query,
		projectID, in.Name, in.Filename, string(docType), key, in.ContentType, info.Size, info.Checksum, nullID(in.UploadedBy)))
	if err != nil {
		s.discard(ctx, key)
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return d, nil
}

// OpenDocument returns a document with its content. The caller closes the reader.
func (s *Service) OpenDocument(ctx context.Context, projectID, documentID int64) (*Document, io.ReadCloser, error) {
	d, err := s.GetDocument(ctx, projectID, documentID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Get(ctx, d.Key)
	if errors.Is(err, storage.ErrBlobNotFound) {
		return nil, nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read document: %w", err)
	}
	return d, rc, nil
}

// DeleteDocument removes a document row and then its blob
func (s *Service) DeleteDocument(ctx context.Context, projectID, documentID int64) error {
	var key string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM documents WHERE id = $1 AND project_id = $2 RETURNING blob_key`,
		documentID, projectID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDocumentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	s.discard(ctx, key)
	return nil
}

// ListModels lists every model, newest first
func (s *Service) ListModels(ctx context.Context) ([]*Model3D, error) {
	query := `SELECT ` + modelColumns + ` FROM models3d ORDER BY created_at DESC, id DESC`
	return s.queryModels(ctx, query)
}

// ListModelsForUser lists unassigned models and the models of projects the
// user is a member or client of
func (s *Service) ListModelsForUser(ctx context.Context, userID int64) ([]*Model3D, error) {
	query := `
		SELECT ` + modelColumns + `
		FROM models3d m
		WHERE m.project_id IS NULL
		   OR EXISTS(SELECT 1 FROM projects p WHERE p.id = m.project_id AND p.client_id = $1)
		   OR EXISTS(SELECT 1 FROM project_members pm WHERE pm.project_id = m.project_id AND pm.user_id = $1)
		ORDER BY m.created_at DESC, m.id DESC
	`
	return s.queryModels(ctx, query, userID)
}

// ListModelsForIdentity lists what identity may see
func (s *Service) ListModelsForIdentity(ctx context.Context, identity *auth.Identity) ([]*Model3D, error) {
	if identity.Administrator() {
		return s.ListModels(ctx)
	}
	return s.ListModelsForUser(ctx, identity.ID)
}

// ListProjectModels lists the models assigned to a project
func (s *Service) ListProjectModels(ctx context.Context, projectID int64) ([]*Model3D, error) {
	query := `SELECT ` + modelColumns + ` FROM models3d WHERE project_id = $1 ORDER BY created_at DESC, id DESC`
	return s.queryModels(ctx, query, projectID)
}

func (s *Service) queryModels(ctx context.Context, query string, args ...interface{}) ([]*Model3D, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	models := []*Model3D{}
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return models, nil
}

// GetModel retrieves a model by id
func (s *Service) GetModel(ctx context.Context, id int64) (*Model3D, error) {
	query := `SELECT ` + modelColumns + ` FROM models3d WHERE id = $1`
	m, err := scanModel(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	return m, nil
}

// UploadModel stores a 3D model. Its format is the file extension.
func (s *Service) UploadModel(ctx context.Context, in *ModelUpload) (*Model3D, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	modelType, err := ParseModelType(string(in.Type))
	if err != nil {
		return nil, err
	}

	key := storage.NewKey(storage.PrefixModels, in.Filename)
	info, err := s.blobs.Put(ctx, key, in.Body, in.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store model: %w", err)
	}

	query := `
		INSERT INTO models3d (project_id, name, type, description, blob_key, format, content_type, size, checksum, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + modelColumns
	m, err := scanModel(s.db.QueryRowContext(ctx, query,
		nullIDPtr(in.ProjectID), in.Name, string(modelType), in.Description, key, formatOf(in.Filename),
		in.ContentType, info.Size, info.Checksum, nullID(in.UploadedBy)))
	if err != nil {
		s.discard(ctx, key)
		return nil, fmt.Errorf("failed to create model: %w", err)
	}
	return m, nil
}

// AssignModel moves a model to a project. A nil or zero projectID unassigns it.
func (s *Service) AssignModel(ctx context.Context, modelID int64, projectID *int64) (*Model3D, error) {
	query := `UPDATE models3d SET project_id = $1 WHERE id = $2 RETURNING ` + modelColumns
	m, err := scanModel(s.db.QueryRowContext(ctx, query, nullIDPtr(projectID), modelID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to assign model: %w", err)
	}
	return m, nil
}

// OpenModel returns a model with its content. The caller closes the reader.
func (s *Service) OpenModel(ctx context.Context, id int64) (*Model3D, io.ReadCloser, error) {
	m, err := s.GetModel(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Get(ctx, m.Key)
	if errors.Is(err, storage.ErrBlobNotFound) {
		return nil, nil, ErrModelNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read model: %w", err)
	}
	return m, rc, nil
}

// DeleteModel removes a model row and then its blob
func (s *Service) DeleteModel(ctx context.Context, id int64) error {
	var key string
	err := s.db.QueryRowContext(ctx, `DELETE FROM models3d WHERE id = $1 RETURNING blob_key`, id).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrModelNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	s.discard(ctx, key)
	return nil
}

// ReferencedKeys returns every blob key still referenced by a document or model
func (s *Service) ReferencedKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT blob_key FROM documents UNION SELECT blob_key FROM models3d`)
	if err != nil {
		return nil, fmt.Errorf("failed to list referenced keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list referenced keys: %w", err)
	}
	return keys, nil
}
