package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/workbench/pkg/auth"
)

const projectColumns = `p.id, p.name, p.client, p.client_id, p.description, p.start_date, p.end_date, p.progress, p.created_at, p.updated_at`

// PostgresService persists projects, memberships, tasks and updates in
// PostgreSQL. It implements auth.ProjectLookup and auth.MembershipStore.
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row rowScanner) (*Project, error) {
	p := &Project{}
	var (
		client      sql.NullString
		clientID    sql.NullInt64
		description sql.NullString
		start, end  sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.Name, &client, &clientID, &description,
		&start, &end, &p.Progress, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Client = client.String
	p.Description = description.String
	if clientID.Valid {
		id := clientID.Int64
		p.ClientID = &id
	}
	if start.Valid {
		t := start.Time
		p.StartDate = &t
	}
	if end.Valid {
		t := end.Time
		p.EndDate = &t
	}
	return p, nil
}

// ProjectExists reports whether a project exists
func (s *PostgresService) ProjectExists(ctx context.Context, projectID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check project: %w", err)
	}
	return exists, nil
}

// IsMember reports whether the user is a member of the project or its client
func (s *PostgresService) IsMember(ctx context.Context, userID, projectID int64) (bool, error) {
	query := `
		SELECT EXISTS(SELECT 1 FROM project_members WHERE project_id = $1 AND user_id = $2)
		    OR EXISTS(SELECT 1 FROM projects WHERE id = $1 AND client_id = $2)
	`
	var member bool
	if err := s.db.QueryRowContext(ctx, query, projectID, userID).Scan(&member); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return member, nil
}

// GetProject retrieves a project by id
func (s *PostgresService) GetProject(ctx context.Context, id int64) (*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects p WHERE p.id = $1`
	p, err := scanProject(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListProjects lists every project, newest first
func (s *PostgresService) ListProjects(ctx context.Context) ([]*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects p ORDER BY p.created_at DESC, p.id DESC`
	return s.queryProjects(ctx, query)
}

// ListForUser lists the projects a user is a member or client of
func (s *PostgresService) ListForUser(ctx context.Context, userID int64) ([]*Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects p
		WHERE p.client_id = $1
		   OR EXISTS(SELECT 1 FROM project_members pm WHERE pm.project_id = p.id AND pm.user_id = $1)
		ORDER BY p.created_at DESC, p.id DESC
	`
	return s.queryProjects(ctx, query, userID)
}

// ListForIdentity lists what identity may see: everything for
// administrators, otherwise their own projects.
func (s *PostgresService) ListForIdentity(ctx context.Context, identity *auth.Identity) ([]*Project, error) {
	if identity.Administrator() {
		return s.ListProjects(ctx)
	}
	return s.ListForUser(ctx, identity.ID)
}

func (s *PostgresService) queryProjects(ctx context.Context, query string, args ...interface{}) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	result := []*Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return result, nil
}

// CreateProject inserts a project
func (s *PostgresService) CreateProject(ctx context.Context, in *ProjectInput) (*Project, error) {
	if err := in.ValidateCreate(); err != nil {
		return nil, err
	}
	progress := 0.0
	if in.Progress != nil {
		progress = *in.Progress
	}

	query := `
		INSERT INTO projects (name, client, client_id, description, start_date, end_date, progress)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, name, client, client_id, description, start_date, end_date, progress, created_at, updated_at
	`
	p, err := scanProject(s.db.QueryRowContext(ctx, query,
		strings.TrimSpace(*in.Name), nullString(in.Client), nullInt(in.ClientID), nullString(in.Description),
		nullTime(in.StartDate), nullTime(in.EndDate), progress))
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

// UpdateProject applies the non-nil fields of in
func (s *PostgresService) UpdateProject(ctx context.Context, id int64, in *ProjectInput) (*Project, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	set := newSetBuilder()
	if in.Name != nil {
		set.add("name", strings.TrimSpace(*in.Name))
	}
	if in.Client != nil {
		set.add("client", *in.Client)
	}
	if in.ClientID != nil {
		set.add("client_id", nullInt(in.ClientID))
	}
	if in.Description != nil {
		set.add("description", *in.Description)
	}
	if in.StartDate != nil {
		set.add("start_date", *in.StartDate)
	}
	if in.EndDate != nil {
		set.add("end_date", *in.EndDate)
	}
	if in.Progress != nil {
		set.add("progress", *in.Progress)
	}
	if set.empty() {
		return s.GetProject(ctx, id)
	}

	query, args := set.build("projects", "updated_at = NOW()", "id", id,
		"id, name, client, client_id, description, start_date, end_date, progress, created_at, updated_at")
	p, err := scanProject(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return p, nil
}

// DeleteProject removes a project. Tasks, updates, documents and memberships
// cascade; models are detached.
func (s *PostgresService) DeleteProject(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return requireAffected(result, ErrProjectNotFound)
}

func requireAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
