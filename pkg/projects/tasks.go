package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const taskColumns = `id, project_id, name, status, start_date, end_date, duration, percent_done, resource,
		is_critical_path, start_percentage, duration_percentage, color, created_at, updated_at`

func scanTask(row rowScanner) (*Task, error) {
	t := &Task{}
	var (
		start, end sql.NullTime
		duration   sql.NullString
		resource   sql.NullString
		color      sql.NullString
	)
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Status, &start, &end, &duration,
		&t.PercentDone, &resource, &t.IsCriticalPath, &t.StartPercentage,
		&t.DurationPercentage, &color, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if start.Valid {
		v := start.Time
		t.StartDate = &v
	}
	if end.Valid {
		v := end.Time
		t.EndDate = &v
	}
	t.Duration = duration.String
	t.Resource = resource.String
	t.Color = color.String
	return t, nil
}

// ListTasks lists a project's tasks in schedule order
func (s *PostgresService) ListTasks(ctx context.Context, projectID int64) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE project_id = $1 ORDER BY start_date ASC NULLS LAST, id ASC`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// GetTask retrieves a task of the given project
func (s *PostgresService) GetTask(ctx context.Context, projectID, taskID int64) (*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND project_id = $2`
	t, err := scanTask(s.db.QueryRowContext(ctx, query, taskID, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// CreateTask adds a task to a project
func (s *PostgresService) CreateTask(ctx context.Context, projectID int64, in *TaskInput) (*Task, error) {
	if err := in.ValidateCreate(); err != nil {
		return nil, err
	}

	status := TaskStatusPending
	if in.Status != nil {
		status = *in.Status
	}
	color := DefaultTaskColor
	if in.Color != nil && *in.Color != "" {
		color = *in.Color
	}

	query := `
		INSERT INTO tasks (project_id, name, status, start_date, end_date, duration, percent_done, resource,
		                   is_critical_path, start_percentage, duration_percentage, color)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + taskColumns
	t, err := scanTask(s.db.QueryRowContext(ctx, query,
		projectID, strings.TrimSpace(*in.Name), string(status), nullTime(in.StartDate), nullTime(in.EndDate),
		nullString(in.Duration), floatOr(in.PercentDone), nullString(in.Resource),
		in.IsCriticalPath != nil && *in.IsCriticalPath, floatOr(in.StartPercentage),
		floatOr(in.DurationPercentage), color))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return t, nil
}

// UpdateTask applies the non-nil fields of in to a task of the given project
func (s *PostgresService) UpdateTask(ctx context.Context, projectID, taskID int64, in *TaskInput) (*Task, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	set := newSetBuilder()
	if in.Name != nil {
		set.add("name", strings.TrimSpace(*in.Name))
	}
	if in.Status != nil {
		set.add("status", string(*in.Status))
	}
	if in.StartDate != nil {
		set.add("start_date", *in.StartDate)
	}
	if in.EndDate != nil {
		set.add("end_date", *in.EndDate)
	}
	if in.Duration != nil {
		set.add("duration", *in.Duration)
	}
	if in.PercentDone != nil {
		set.add("percent_done", *in.PercentDone)
	}
	if in.Resource != nil {
		set.add("resource", *in.Resource)
	}
	if in.IsCriticalPath != nil {
		set.add("is_critical_path", *in.IsCriticalPath)
	}
	if in.StartPercentage != nil {
		set.add("start_percentage", *in.StartPercentage)
	}
	if in.DurationPercentage != nil {
		set.add("duration_percentage", *in.DurationPercentage)
	}
	if in.Color != nil {
		set.add("color", *in.Color)
	}
	if set.empty() {
		return s.GetTask(ctx, projectID, taskID)
	}

	query, args := set.build("tasks", "updated_at = NOW()", "id", taskID, taskColumns, "project_id", projectID)
	t, err := scanTask(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return t, nil
}

// DeleteTask removes a task of the given project
func (s *PostgresService) DeleteTask(ctx context.Context, projectID, taskID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND project_id = $2`, taskID, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return requireAffected(result, ErrTaskNotFound)
}

func floatOr(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
