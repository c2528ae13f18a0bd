package auth

import (
	"fmt"
	"strings"
)

// Requirement is a predicate over an authenticated identity
type Requirement interface {
	Satisfied(identity *Identity) bool
	String() string
}

type roleRequirement struct {
	roles []Role
}

// RequireRole is satisfied when the identity's effective role is one of roles.
// Administrators satisfy any role requirement.
func RequireRole(roles ...Role) Requirement {
	return roleRequirement{roles: roles}
}

func (r roleRequirement) Satisfied(identity *Identity) bool {
	if identity.Administrator() {
		return true
	}
	role := identity.EffectiveRole()
	for _, want := range r.roles {
		if role == want {
			return true
		}
	}
	return false
}

func (r roleRequirement) String() string {
	names := make([]string, len(r.roles))
	for i, role := range r.roles {
		names[i] = string(role)
	}
	return "role:" + strings.Join(names, "|")
}

type adminRequirement struct{}

// RequireAdministrator is satisfied by the normalized administrator flag
func RequireAdministrator() Requirement {
	return adminRequirement{}
}

func (adminRequirement) Satisfied(identity *Identity) bool {
	return identity.Administrator()
}

func (adminRequirement) String() string {
	return "administrator"
}

type anyRequirement struct {
	reqs []Requirement
}

// RequireAny is satisfied when at least one of reqs is
func RequireAny(reqs ...Requirement) Requirement {
	return anyRequirement{reqs: reqs}
}

func (a anyRequirement) Satisfied(identity *Identity) bool {
	for _, r := range a.reqs {
		if r.Satisfied(identity) {
			return true
		}
	}
	return false
}

func (a anyRequirement) String() string {
	names := make([]string, len(a.reqs))
	for i, r := range a.reqs {
		names[i] = r.String()
	}
	return "any(" + strings.Join(names, ",") + ")"
}

// Authorize checks identity against req
func Authorize(identity *Identity, req Requirement) error {
	if identity == nil {
		return NewError(KindUnauthenticated, "")
	}
	if req == nil || req.Satisfied(identity) {
		return nil
	}
	return NewError(KindForbidden, fmt.Sprintf("requires %s", req))
}
