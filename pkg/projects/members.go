package projects

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/platinummonkey/workbench/pkg/auth"
)

// ListMembers lists the users with explicit membership in a project
func (s *PostgresService) ListMembers(ctx context.Context, projectID int64) ([]*Member, error) {
	query := `
		SELECT u.id, u.email, u.name, u.role, u.is_admin, pm.added_at
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id = $1
		ORDER BY pm.added_at ASC, u.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []*Member{}
	for rows.Next() {
		m := &Member{}
		var (
			name    sql.NullString
			role    sql.NullString
			isAdmin sql.NullBool
		)
		if err := rows.Scan(&m.UserID, &m.Email, &name, &role, &isAdmin, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Name = name.String
		m.Role = auth.NormalizeRole(role.String, isAdmin.Valid && isAdmin.Bool)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// AddMember grants a user access to a project
func (s *PostgresService) AddMember(ctx context.Context, projectID, userID int64) error {
	query := `
		INSERT INTO project_members (project_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (project_id, user_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, projectID, userID)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return requireAffected(result, ErrMemberExists)
}

// RemoveMember revokes a user's membership
func (s *PostgresService) RemoveMember(ctx context.Context, projectID, userID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return requireAffected(result, ErrMemberNotFound)
}

// ProjectIDsForUser lists the projects a user can access: explicit
// memberships plus projects whose client_id names the user
func (s *PostgresService) ProjectIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id FROM project_members WHERE user_id = $1
		UNION
		SELECT id FROM projects WHERE client_id = $1
		ORDER BY 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user projects: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetUserProjects replaces a user's memberships with projectIDs in one
// transaction. It returns the project ids whose membership changed.
func (s *PostgresService) SetUserProjects(ctx context.Context, userID int64, projectIDs []int64) ([]int64, error) {
	if projectIDs == nil {
		projectIDs = []int64{}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var changed []int64
	removed, err := tx.QueryContext(ctx, `
		DELETE FROM project_members
		WHERE user_id = $1 AND NOT (project_id = ANY($2))
		RETURNING project_id
	`, userID, pq.Array(projectIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to remove memberships: %w", err)
	}
	for removed.Next() {
		var id int64
		if err := removed.Scan(&id); err != nil {
			removed.Close()
			return nil, fmt.Errorf("failed to scan removed membership: %w", err)
		}
		changed = append(changed, id)
	}
	removed.Close()

	for _, projectID := range projectIDs {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO project_members (project_id, user_id)
			SELECT $1::bigint, $2::bigint WHERE EXISTS(SELECT 1 FROM projects WHERE id = $1)
			ON CONFLICT (project_id, user_id) DO NOTHING
		`, projectID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to add membership: %w", err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			changed = append(changed, projectID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit memberships: %w", err)
	}
	return changed, nil
}
