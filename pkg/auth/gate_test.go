package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorize_AdministratorAcrossSchemas(t *testing.T) {
	tests := []struct {
		name     string
		identity *Identity
		allowed  bool
	}{
		{name: "role string administrator", identity: &Identity{ID: 1, Role: NormalizeRole("administrator", false)}, allowed: true},
		{name: "role string admin alias", identity: &Identity{ID: 1, Role: NormalizeRole("admin", false)}, allowed: true},
		{name: "legacy boolean admin", identity: &Identity{ID: 1, Role: NormalizeRole("", true)}, allowed: true},
		{name: "legacy boolean flag only", identity: &Identity{ID: 1, IsAdministrator: true}, allowed: true},
		{name: "legacy boolean non-admin", identity: &Identity{ID: 1, Role: NormalizeRole("", false)}, allowed: false},
		{name: "standard", identity: &Identity{ID: 1, Role: RoleStandard}, allowed: false},
		{name: "client", identity: &Identity{ID: 2, Role: RoleClient}, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.identity, RequireAdministrator())
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrForbidden)
			assert.Equal(t, http.StatusForbidden, HTTPStatus(err))
		})
	}
}

func TestAuthorize_ClientIsNotAdministrator(t *testing.T) {
	u2 := &Identity{ID: 2, Email: "u2@example.com", Role: RoleClient, IsActive: true}

	err := Authorize(u2, RequireRole(RoleAdministrator))
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Contains(t, err.Error(), "role:administrator")
}

func TestAuthorize_RoleMatch(t *testing.T) {
	standard := &Identity{ID: 1, Role: RoleStandard}
	client := &Identity{ID: 2, Role: RoleClient}
	admin := &Identity{ID: 9, Role: RoleAdministrator}

	staff := RequireRole(RoleStandard)
	assert.NoError(t, Authorize(standard, staff))
	assert.NoError(t, Authorize(admin, staff), "administrators satisfy any role")
	assert.ErrorIs(t, Authorize(client, staff), ErrForbidden)

	either := RequireAny(RequireRole(RoleClient), RequireAdministrator())
	assert.NoError(t, Authorize(client, either))
	assert.NoError(t, Authorize(admin, either))
	assert.ErrorIs(t, Authorize(standard, either), ErrForbidden)
	assert.Equal(t, "any(role:client,administrator)", either.String())
}

func TestAuthorize_Unauthenticated(t *testing.T) {
	err := Authorize(nil, RequireRole(RoleClient))
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(err))
}

func TestAuthorize_NilRequirement(t *testing.T) {
	assert.NoError(t, Authorize(&Identity{ID: 1, Role: RoleClient}, nil))
}
