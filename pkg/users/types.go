package users

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/workbench/pkg/auth"
)

var (
	// ErrUserNotFound matches auth.ErrIdentityNotFound with errors.Is
	ErrUserNotFound = fmt.Errorf("user %w", auth.ErrIdentityNotFound)
	// ErrEmailTaken is returned when the email is already registered
	ErrEmailTaken = errors.New("email already registered")
)

// CreateUserRequest holds the fields of a new account
type CreateUserRequest struct {
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role"`
	IsActive *bool     `json:"is_active,omitempty"`
	Projects []int64   `json:"projects,omitempty"`
}

// Validate checks required fields and normalizes the email and role
func (r *CreateUserRequest) Validate() error {
	r.Email = normalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	if r.Email == "" || !strings.Contains(r.Email, "@") {
		return auth.NewError(auth.KindInvalidArgument, "a valid email is required")
	}
	if r.Name == "" {
		return auth.NewError(auth.KindInvalidArgument, "name is required")
	}
	if r.Role == "" {
		r.Role = auth.RoleStandard
	}
	role, err := auth.ParseRole(string(r.Role))
	if err != nil {
		return err
	}
	r.Role = role
	return nil
}

// UpdateUserRequest holds optional field changes. Nil fields are left alone.
type UpdateUserRequest struct {
	Email    *string    `json:"email,omitempty"`
	Name     *string    `json:"name,omitempty"`
	Password *string    `json:"password,omitempty"`
	Role     *auth.Role `json:"role,omitempty"`
	IsActive *bool      `json:"is_active,omitempty"`
	Projects *[]int64   `json:"projects,omitempty"`
}

// legacyRow is a users row as stored. Older rows carry only is_admin, newer
// ones only role; either column may be NULL.
type legacyRow struct {
	ID           int64
	Email        string
	Name         sql.NullString
	PasswordHash sql.NullString
	Role         sql.NullString
	IsAdmin      sql.NullBool
	IsActive     sql.NullBool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  sql.NullTime
}

func (r *legacyRow) scanTargets() []interface{} {
	return []interface{}{
		&r.ID, &r.Email, &r.Name, &r.PasswordHash, &r.Role, &r.IsAdmin,
		&r.IsActive, &r.CreatedAt, &r.UpdatedAt, &r.LastLoginAt,
	}
}

// identity converts the stored row to the canonical form
func (r *legacyRow) identity() *auth.Identity {
	role := auth.NormalizeRole(r.Role.String, r.IsAdmin.Valid && r.IsAdmin.Bool)
	identity := &auth.Identity{
		ID:              r.ID,
		Email:           r.Email,
		Name:            r.Name.String,
		PasswordHash:    r.PasswordHash.String,
		Role:            role,
		IsAdministrator: role == auth.RoleAdministrator,
		IsActive:        !r.IsActive.Valid || r.IsActive.Bool,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.LastLoginAt.Valid {
		at := r.LastLoginAt.Time
		identity.LastLoginAt = &at
	}
	return identity
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
