package projects

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/workbench/pkg/auth"
)

var projectRowColumns = []string{
	"id", "name", "client", "client_id", "description", "start_date", "end_date", "progress", "created_at", "updated_at",
}

// Test helper to create a new mock service
func newMockService(t *testing.T) (*PostgresService, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewPostgresService(db), mock, db
}

func strPtr(s string) *string { return &s }

func TestProjectExists(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`)).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`)).
		WithArgs(int64(999)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := service.ProjectExists(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = service.ProjectExists(context.Background(), 999)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsMember(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM project_members WHERE project_id = $1 AND user_id = $2`)).
		WithArgs(int64(100), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"member"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM project_members WHERE project_id = $1 AND user_id = $2`)).
		WithArgs(int64(100), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"member"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM project_members`)).
		WithArgs(int64(100), int64(4)).
		WillReturnError(errors.New("connection reset"))

	member, err := service.IsMember(context.Background(), 1, 100)
	require.NoError(t, err)
	assert.True(t, member)

	member, err = service.IsMember(context.Background(), 3, 100)
	require.NoError(t, err)
	assert.False(t, member)

	_, err = service.IsMember(context.Background(), 4, 100)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessCheckerOverService(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	checker := auth.NewAccessChecker(service, service, nil)

	// missing project is reported before membership is consulted
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`)).
		WithArgs(int64(999)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := checker.Authorize(context.Background(), &auth.Identity{ID: 3, Role: auth.RoleClient}, 999)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`)).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM project_members`)).
		WithArgs(int64(100), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"member"}).AddRow(false))

	err = checker.Authorize(context.Background(), &auth.Identity{ID: 3, Role: auth.RoleClient}, 100)
	assert.ErrorIs(t, err, auth.ErrForbidden)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProject(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	now := time.Now()
	start := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM projects p WHERE p.id = $1`)).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows(projectRowColumns).
			AddRow(100, "Cold Room Monitor", "Acme", 2, nil, start, nil, 40.0, now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM projects p WHERE p.id = $1`)).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	p, err := service.GetProject(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, "Cold Room Monitor", p.Name)
	require.NotNil(t, p.ClientID)
	assert.Equal(t, int64(2), *p.ClientID)
	require.NotNil(t, p.StartDate)
	assert.Nil(t, p.EndDate)
	assert.Empty(t, p.Description)

	_, err = service.GetProject(context.Background(), 404)
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestListForIdentity(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM projects p ORDER BY p.created_at DESC`)).
		WillReturnRows(sqlmock.NewRows(projectRowColumns).
			AddRow(1, "A", nil, nil, nil, nil, nil, 0.0, now, now).
			AddRow(2, "B", nil, nil, nil, nil, nil, 0.0, now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE p.client_id = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(projectRowColumns).
			AddRow(2, "B", nil, 7, nil, nil, nil, 0.0, now, now))

	all, err := service.ListForIdentity(context.Background(), &auth.Identity{ID: 9, IsAdministrator: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := service.ListForIdentity(context.Background(), &auth.Identity{ID: 7, Role: auth.RoleClient})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, int64(2), own[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProject(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO projects (name, client, client_id, description, start_date, end_date, progress)`)).
		WithArgs("Energy Meter", "Acme", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 0.0).
		WillReturnRows(sqlmock.NewRows(projectRowColumns).
			AddRow(5, "Energy Meter", "Acme", nil, nil, nil, nil, 0.0, now, now))

	p, err := service.CreateProject(context.Background(), &ProjectInput{Name: strPtr(" Energy Meter "), Client: strPtr("Acme")})
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.ID)

	_, err = service.CreateProject(context.Background(), &ProjectInput{})
	assert.ErrorIs(t, err, auth.ErrInvalidArgument)

	bad := 150.0
	_, err = service.CreateProject(context.Background(), &ProjectInput{Name: strPtr("x"), Progress: &bad})
	assert.ErrorIs(t, err, auth.ErrInvalidArgument)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProject(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE projects SET name = $1, description = $2, updated_at = NOW() WHERE id = $3 RETURNING`)).
		WithArgs("Renamed", "New scope", int64(5)).
		WillReturnRows(sqlmock.NewRows(projectRowColumns).
			AddRow(5, "Renamed", nil, nil, "New scope", nil, nil, 0.0, now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE projects SET name = $1`)).
		WithArgs("Renamed", int64(404)).
		WillReturnError(sql.ErrNoRows)

	p, err := service.UpdateProject(context.Background(), 5, &ProjectInput{Name: strPtr("Renamed"), Description: strPtr("New scope")})
	require.NoError(t, err)
	assert.Equal(t, "New scope", p.Description)

	_, err = service.UpdateProject(context.Background(), 404, &ProjectInput{Name: strPtr("Renamed")})
	assert.ErrorIs(t, err, ErrProjectNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProject(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM projects WHERE id = $1`)).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM projects WHERE id = $1`)).
		WithArgs(int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, service.DeleteProject(context.Background(), 5))
	assert.ErrorIs(t, service.DeleteProject(context.Background(), 6), ErrProjectNotFound)
}

func TestMembers(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM project_members pm`)).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "role", "is_admin", "added_at"}).
			AddRow(1, "u1@example.com", "User One", "user", nil, now).
			AddRow(2, "u2@example.com", nil, nil, true, now))

	members, err := service.ListMembers(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, auth.RoleStandard, members[0].Role)
	assert.Equal(t, auth.RoleAdministrator, members[1].Role)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO project_members (project_id, user_id)`)).
		WithArgs(int64(100), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO project_members (project_id, user_id)`)).
		WithArgs(int64(100), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`)).
		WithArgs(int64(100), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, service.AddMember(context.Background(), 100, 3))
	assert.ErrorIs(t, service.AddMember(context.Background(), 100, 3), ErrMemberExists)
	assert.ErrorIs(t, service.RemoveMember(context.Background(), 100, 3), ErrMemberNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectIDsForUser(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT project_id FROM project_members WHERE user_id = \$1\s+UNION\s+SELECT id FROM projects WHERE client_id = \$1`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow(100).AddRow(101))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM project_members`)).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"project_id"}))

	ids, err := service.ProjectIDsForUser(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 101}, ids)

	ids, err = service.ProjectIDsForUser(context.Background(), 4)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetUserProjects(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM project_members`)).
		WithArgs(int64(3), pq.Array([]int64{100, 101})).
		WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow(50))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO project_members (project_id, user_id)`)).
		WithArgs(int64(100), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO project_members (project_id, user_id)`)).
		WithArgs(int64(101), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	changed, err := service.SetUserProjects(context.Background(), 3, []int64{100, 101})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{50, 101}, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetUserProjects_RollsBack(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM project_members`)).
		WillReturnRows(sqlmock.NewRows([]string{"project_id"}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO project_members`)).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := service.SetUserProjects(context.Background(), 3, []int64{100})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
