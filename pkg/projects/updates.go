package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/workbench/pkg/auth"
)

const updateColumns = `id, project_id, content, date, completed, created_at`

func scanUpdate(row rowScanner) (*Update, error) {
	u := &Update{}
	if err := row.Scan(&u.ID, &u.ProjectID, &u.Content, &u.Date, &u.Completed, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// ListUpdates lists a project's updates, newest first
func (s *PostgresService) ListUpdates(ctx context.Context, projectID int64) ([]*Update, error) {
	query := `SELECT ` + updateColumns + ` FROM updates WHERE project_id = $1 ORDER BY date DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list updates: %w", err)
	}
	defer rows.Close()

	updates := []*Update{}
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan update: %w", err)
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list updates: %w", err)
	}
	return updates, nil
}

// CreateUpdate posts an update. A zero date means today.
func (s *PostgresService) CreateUpdate(ctx context.Context, projectID int64, content string, date time.Time) (*Update, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, auth.NewError(auth.KindInvalidArgument, "content is required")
	}
	query := `
		INSERT INTO updates (project_id, content, date)
		VALUES ($1, $2, COALESCE($3, CURRENT_DATE))
		RETURNING ` + updateColumns
	u, err := scanUpdate(s.db.QueryRowContext(ctx, query, projectID, content, nullDate(date)))
	if err != nil {
		return nil, fmt.Errorf("failed to create update: %w", err)
	}
	return u, nil
}

// ToggleUpdate flips the completed flag of an update of the given project
func (s *PostgresService) ToggleUpdate(ctx context.Context, projectID, updateID int64) (*Update, error) {
	query := `
		UPDATE updates SET completed = NOT completed
		WHERE id = $1 AND project_id = $2
		RETURNING ` + updateColumns
	u, err := scanUpdate(s.db.QueryRowContext(ctx, query, updateID, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUpdateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to toggle update: %w", err)
	}
	return u, nil
}

// DeleteUpdate removes an update of the given project
func (s *PostgresService) DeleteUpdate(ctx context.Context, projectID, updateID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM updates WHERE id = $1 AND project_id = $2`, updateID, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete update: %w", err)
	}
	return requireAffected(result, ErrUpdateNotFound)
}

func nullDate(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
