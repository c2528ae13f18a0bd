// Package authtest provides in-memory collaborators and credential helpers
// for tests of packages built on pkg/auth.
package authtest

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/platinummonkey/workbench/pkg/auth"
)

// Secret is a valid signing secret for tests
const Secret = "0123456789abcdef0123456789abcdef"

// Identities is an in-memory auth.IdentityStore
type Identities struct {
	mu   sync.Mutex
	byID map[int64]*auth.Identity
}

// NewIdentities creates a store holding ids
func NewIdentities(ids ...*auth.Identity) *Identities {
	m := &Identities{byID: map[int64]*auth.Identity{}}
	for _, id := range ids {
		m.byID[id.ID] = id
	}
	return m
}

// Put adds or replaces an identity
func (m *Identities) Put(identity *auth.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[identity.ID] = identity
}

// GetByID implements auth.IdentityStore
func (m *Identities) GetByID(ctx context.Context, id int64) (*auth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrIdentityNotFound
	}
	copied := *identity
	return &copied, nil
}

// GetByEmail implements auth.IdentityStore
func (m *Identities) GetByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.byID {
		if identity.Email == email {
			copied := *identity
			return &copied, nil
		}
	}
	return nil, auth.ErrIdentityNotFound
}

// TouchLastLogin implements auth.IdentityStore
func (m *Identities) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity, ok := m.byID[id]; ok {
		identity.LastLoginAt = &at
	}
	return nil
}

// List returns every identity ordered by id
func (m *Identities) List(ctx context.Context) ([]*auth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*auth.Identity, 0, len(m.byID))
	for _, identity := range m.byID {
		copied := *identity
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Remove deletes an identity and reports whether it existed
func (m *Identities) Remove(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	delete(m.byID, id)
	return ok
}

// Projects is an in-memory auth.ProjectLookup and auth.MembershipStore
type Projects struct {
	mu       sync.Mutex
	projects map[int64]map[int64]bool
}

// NewProjects creates an empty project set
func NewProjects() *Projects {
	return &Projects{projects: map[int64]map[int64]bool{}}
}

// Add creates projectID with the given members
func (m *Projects) Add(projectID int64, members ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := map[int64]bool{}
	for _, id := range members {
		set[id] = true
	}
	m.projects[projectID] = set
}

// ProjectExists implements auth.ProjectLookup
func (m *Projects) ProjectExists(ctx context.Context, projectID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.projects[projectID]
	return ok, nil
}

// IsMember implements auth.MembershipStore
func (m *Projects) IsMember(ctx context.Context, userID, projectID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.projects[projectID][userID], nil
}

// Fixture users: 1 standard, 2 client, 3 standard, 4 inactive, 9 administrator.
// Every fixture password is "correct horse".
func Fixture(t testing.TB) *Identities {
	t.Helper()
	hash, err := auth.HashPassword(FixturePassword)
	if err != nil {
		t.Fatalf("failed to hash fixture password: %v", err)
	}
	return NewIdentities(
		&auth.Identity{ID: 1, Email: "u1@example.com", Name: "User One", Role: auth.RoleStandard, IsActive: true, PasswordHash: hash},
		&auth.Identity{ID: 2, Email: "u2@example.com", Name: "User Two", Role: auth.RoleClient, IsActive: true, PasswordHash: hash},
		&auth.Identity{ID: 3, Email: "u3@example.com", Name: "User Three", Role: auth.RoleStandard, IsActive: true, PasswordHash: hash},
		&auth.Identity{ID: 4, Email: "gone@example.com", Name: "Inactive", Role: auth.RoleStandard, IsActive: false, PasswordHash: hash},
		&auth.Identity{ID: 9, Email: "admin@example.com", Name: "Admin", Role: auth.RoleAdministrator, IsAdministrator: true, IsActive: true, PasswordHash: hash},
	)
}

// FixturePassword is the password of every Fixture user
const FixturePassword = "correct horse"

// Keys returns a key source over Secret
func Keys(t testing.TB) auth.KeySource {
	t.Helper()
	keys, err := auth.NewStaticKeySource(Secret)
	if err != nil {
		t.Fatalf("failed to build key source: %v", err)
	}
	return keys
}

// Token issues a one hour credential for identity
func Token(t testing.TB, issuer *auth.Issuer, identity *auth.Identity) string {
	t.Helper()
	cred, err := issuer.IssueFor(identity, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue credential: %v", err)
	}
	return cred.Token
}

// Bearer sets the Authorization header on r
func Bearer(r *http.Request, token string) *http.Request {
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}
