package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role is the closed set of account roles
type Role string

const (
	// RoleAdministrator can manage every project, user and model
	RoleAdministrator Role = "administrator"
	// RoleStandard is an internal team member
	RoleStandard Role = "standard"
	// RoleClient is a customer who only sees their own projects
	RoleClient Role = "client"
)

// Roles lists every valid role
var Roles = []Role{RoleAdministrator, RoleStandard, RoleClient}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdministrator, RoleStandard, RoleClient:
		return true
	}
	return false
}

// ParseRole parses a role name. Legacy names "admin" and "user" are accepted.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "administrator", "admin":
		return RoleAdministrator, nil
	case "standard", "user":
		return RoleStandard, nil
	case "client":
		return RoleClient, nil
	}
	return "", NewError(KindInvalidArgument, fmt.Sprintf("unknown role %q", s))
}

// NormalizeRole maps either stored representation to the canonical role.
// A true legacy admin flag always wins; unknown or empty role strings fall
// back to RoleStandard.
func NormalizeRole(role string, legacyAdmin bool) Role {
	if legacyAdmin {
		return RoleAdministrator
	}
	parsed, err := ParseRole(role)
	if err != nil {
		return RoleStandard
	}
	return parsed
}

// Identity is the canonical in-process user account
type Identity struct {
	ID              int64      `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	Role            Role       `json:"role"`
	IsAdministrator bool       `json:"is_administrator"`
	IsActive        bool       `json:"is_active"`
	PasswordHash    string     `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
}

// Administrator reports the normalized administrator flag
func (i *Identity) Administrator() bool {
	return i != nil && (i.IsAdministrator || i.Role == RoleAdministrator)
}

// EffectiveRole returns the role used for authorization decisions
func (i *Identity) EffectiveRole() Role {
	if i.Administrator() {
		return RoleAdministrator
	}
	if !i.Role.Valid() {
		return RoleStandard
	}
	return i.Role
}

// Subject is the credential subject for this identity
func (i *Identity) Subject() string {
	return strconv.FormatInt(i.ID, 10)
}
