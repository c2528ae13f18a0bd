package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func newFakeClockAt(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryIdentities struct {
	mu       sync.Mutex
	byID     map[int64]*Identity
	touched  map[int64]time.Time
	touchErr error
	getErr   error
}

func newMemoryIdentities(ids ...*Identity) *memoryIdentities {
	m := &memoryIdentities{byID: map[int64]*Identity{}, touched: map[int64]time.Time{}}
	for _, id := range ids {
		m.byID[id.ID] = id
	}
	return m
}

func (m *memoryIdentities) GetByID(ctx context.Context, id int64) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	identity, ok := m.byID[id]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	copied := *identity
	return &copied, nil
}

func (m *memoryIdentities) GetByEmail(ctx context.Context, email string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.byID {
		if identity.Email == email {
			copied := *identity
			return &copied, nil
		}
	}
	return nil, ErrIdentityNotFound
}

func (m *memoryIdentities) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.touchErr != nil {
		return m.touchErr
	}
	if prev, ok := m.touched[id]; !ok || at.After(prev) {
		m.touched[id] = at
	}
	return nil
}

type memoryProjects struct {
	projects map[int64]map[int64]bool
	err      error
}

func newMemoryProjects() *memoryProjects {
	return &memoryProjects{projects: map[int64]map[int64]bool{}}
}

func (m *memoryProjects) add(projectID int64, members ...int64) {
	set := map[int64]bool{}
	for _, id := range members {
		set[id] = true
	}
	m.projects[projectID] = set
}

func (m *memoryProjects) ProjectExists(ctx context.Context, projectID int64) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.projects[projectID]
	return ok, nil
}

func (m *memoryProjects) IsMember(ctx context.Context, userID, projectID int64) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.projects[projectID][userID], nil
}

var errStoreDown = errors.New("connection refused")

// Fixture users: u1 standard, u2 client, u3 standard non-member, 9 admin.
func fixtureIdentities() *memoryIdentities {
	return newMemoryIdentities(
		&Identity{ID: 1, Email: "u1@example.com", Name: "User One", Role: RoleStandard, IsActive: true},
		&Identity{ID: 2, Email: "u2@example.com", Name: "User Two", Role: RoleClient, IsActive: true},
		&Identity{ID: 3, Email: "u3@example.com", Name: "User Three", Role: RoleStandard, IsActive: true},
		&Identity{ID: 4, Email: "gone@example.com", Name: "Inactive", Role: RoleStandard, IsActive: false},
		&Identity{ID: 9, Email: "admin@example.com", Name: "Admin", Role: RoleAdministrator, IsAdministrator: true, IsActive: true},
	)
}
