package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/workbench/pkg/auth"
)

const userColumns = `id, email, name, password_hash, role, is_admin, is_active, created_at, updated_at, last_login_at`

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

// PostgresStore persists users in PostgreSQL. It implements auth.IdentityStore.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetByID retrieves a user by id
func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*auth.Identity, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.getOne(ctx, query, id)
}

// GetByEmail retrieves a user by email, case-insensitively
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = $1`
	return s.getOne(ctx, query, normalizeEmail(email))
}

func (s *PostgresStore) getOne(ctx context.Context, query string, arg interface{}) (*auth.Identity, error) {
	row := &legacyRow{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(row.scanTargets()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row.identity(), nil
}

// TouchLastLogin records a successful authentication. An older timestamp never
// overwrites a newer one.
func (s *PostgresStore) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE users SET last_login_at = $2
		WHERE id = $1 AND (last_login_at IS NULL OR last_login_at < $2)
	`
	if _, err := s.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// List returns every user ordered by name
func (s *PostgresStore) List(ctx context.Context) ([]*auth.Identity, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY name ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var result []*auth.Identity
	for rows.Next() {
		row := &legacyRow{}
		if err := rows.Scan(row.scanTargets()...); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		result = append(result, row.identity())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return result, nil
}

// Create inserts a new user. The password is hashed before it is stored.
func (s *PostgresStore) Create(ctx context.Context, req *CreateUserRequest) (*auth.Identity, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	query := `
		INSERT INTO users (email, name, password_hash, role, is_admin, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns
	row := &legacyRow{}
	err = s.db.QueryRowContext(ctx, query, req.Email, req.Name, hash, string(req.Role),
		req.Role == auth.RoleAdministrator, active).Scan(row.scanTargets()...)
	if isUniqueViolation(err) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return row.identity(), nil
}

// Update applies the non-nil fields of req and returns the updated user
func (s *PostgresStore) Update(ctx context.Context, id int64, req *UpdateUserRequest) (*auth.Identity, error) {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	add := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if email == "" || !strings.Contains(email, "@") {
			return nil, auth.NewError(auth.KindInvalidArgument, "a valid email is required")
		}
		add("email", email)
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, auth.NewError(auth.KindInvalidArgument, "name is required")
		}
		add("name", name)
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		add("password_hash", hash)
	}
	if req.Role != nil {
		role, err := auth.ParseRole(string(*req.Role))
		if err != nil {
			return nil, err
		}
		add("role", string(role))
		add("is_admin", role == auth.RoleAdministrator)
	}
	if req.IsActive != nil {
		add("is_active", *req.IsActive)
	}

	if len(setClauses) == 0 {
		return s.GetByID(ctx, id)
	}

	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d RETURNING %s",
		strings.Join(setClauses, ", "), argPos, userColumns)

	row := &legacyRow{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(row.scanTargets()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if isUniqueViolation(err) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return row.identity(), nil
}

// SetPassword replaces a user's password
func (s *PostgresStore) SetPassword(ctx context.Context, id int64, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`, hash, id)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	return requireAffected(result)
}

// Delete removes a user. Memberships go with it through the foreign key.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
