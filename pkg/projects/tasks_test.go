package projects

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/workbench/pkg/auth"
)

var taskRowColumns = []string{
	"id", "project_id", "name", "status", "start_date", "end_date", "duration", "percent_done", "resource",
	"is_critical_path", "start_percentage", "duration_percentage", "color", "created_at", "updated_at",
}

func TestCreateTask(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO tasks`)).
		WithArgs(int64(100), "Design PCB", "pending", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			0.0, sqlmock.AnyArg(), true, 0.0, 0.0, DefaultTaskColor).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow(1, 100, "Design PCB", "pending", nil, nil, "14 days", 0.0, nil, true, 0.0, 0.0, DefaultTaskColor, now, now))

	critical := true
	task, err := service.CreateTask(context.Background(), 100, &TaskInput{Name: strPtr("Design PCB"), IsCriticalPath: &critical})
	require.NoError(t, err)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Equal(t, "14 days", task.Duration)
	assert.True(t, task.IsCriticalPath)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTask_Validation(t *testing.T) {
	service, _, db := newMockService(t)
	defer db.Close()

	bogus := TaskStatus("blocked")
	tooMuch := 101.0
	tests := []struct {
		name string
		in   TaskInput
	}{
		{name: "missing name", in: TaskInput{}},
		{name: "bad status", in: TaskInput{Name: strPtr("x"), Status: &bogus}},
		{name: "percent out of range", in: TaskInput{Name: strPtr("x"), PercentDone: &tooMuch}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			_, err := service.CreateTask(context.Background(), 100, &in)
			assert.ErrorIs(t, err, auth.ErrInvalidArgument)
		})
	}
}

func TestUpdateTask_ScopedToProject(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	now := time.Now()
	done := TaskStatusCompleted
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE tasks SET status = $1, updated_at = NOW() WHERE id = $2 AND project_id = $3 RETURNING`)).
		WithArgs("completed", int64(1), int64(100)).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow(1, 100, "Design PCB", "completed", nil, nil, nil, 100.0, nil, false, 0.0, 0.0, DefaultTaskColor, now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE tasks SET status = $1`)).
		WithArgs("completed", int64(1), int64(200)).
		WillReturnError(sql.ErrNoRows)

	task, err := service.UpdateTask(context.Background(), 100, 1, &TaskInput{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, task.Status)

	_, err = service.UpdateTask(context.Background(), 200, 1, &TaskInput{Status: &done})
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAndDeleteTasks(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM tasks WHERE project_id = $1`)).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow(1, 100, "A", "pending", now, now, "1 day", 0.0, "Ana", false, 0.0, 10.0, "#fff", now, now))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM tasks WHERE id = $1 AND project_id = $2`)).
		WithArgs(int64(1), int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM tasks WHERE id = $1 AND project_id = $2`)).
		WithArgs(int64(1), int64(200)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tasks, err := service.ListTasks(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Ana", tasks[0].Resource)
	require.NotNil(t, tasks[0].StartDate)

	require.NoError(t, service.DeleteTask(context.Background(), 100, 1))
	assert.ErrorIs(t, service.DeleteTask(context.Background(), 200, 1), ErrTaskNotFound)
}

func TestUpdates(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	now := time.Now()
	cols := []string{"id", "project_id", "content", "date", "completed", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO updates (project_id, content, date)`)).
		WithArgs(int64(100), "Enclosure printed", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, 100, "Enclosure printed", now, false, now))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE updates SET completed = NOT completed`)).
		WithArgs(int64(1), int64(100)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, 100, "Enclosure printed", now, true, now))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE updates SET completed = NOT completed`)).
		WithArgs(int64(1), int64(200)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM updates WHERE project_id = $1`)).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, 100, "Enclosure printed", now, true, now))

	u, err := service.CreateUpdate(context.Background(), 100, "  Enclosure printed ", time.Time{})
	require.NoError(t, err)
	assert.False(t, u.Completed)

	_, err = service.CreateUpdate(context.Background(), 100, "   ", time.Time{})
	assert.ErrorIs(t, err, auth.ErrInvalidArgument)

	u, err = service.ToggleUpdate(context.Background(), 100, 1)
	require.NoError(t, err)
	assert.True(t, u.Completed)

	_, err = service.ToggleUpdate(context.Background(), 200, 1)
	assert.ErrorIs(t, err, ErrUpdateNotFound)

	list, err := service.ListUpdates(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
