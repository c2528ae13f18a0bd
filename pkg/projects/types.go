package projects

import (
	"errors"
	"strings"
	"time"

	"github.com/platinummonkey/workbench/pkg/auth"
)

var (
	// ErrProjectNotFound is returned when a project does not exist
	ErrProjectNotFound = errors.New("project not found")
	// ErrTaskNotFound is returned when a task does not exist in the project
	ErrTaskNotFound = errors.New("task not found")
	// ErrUpdateNotFound is returned when an update does not exist in the project
	ErrUpdateNotFound = errors.New("update not found")
	// ErrMemberExists is returned when adding an existing member
	ErrMemberExists = errors.New("user is already a member")
	// ErrMemberNotFound is returned when removing a non-member
	ErrMemberNotFound = errors.New("member not found")
)

// Project is a customer engagement
type Project struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Client      string     `json:"client"`
	ClientID    *int64     `json:"client_id,omitempty"`
	Description string     `json:"description"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Progress    float64    `json:"progress"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ProjectInput holds the writable fields of a project
type ProjectInput struct {
	Name        *string    `json:"name,omitempty"`
	Client      *string    `json:"client,omitempty"`
	ClientID    *int64     `json:"client_id,omitempty"`
	Description *string    `json:"description,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Progress    *float64   `json:"progress,omitempty"`
}

// ValidateCreate checks the fields required for a new project
func (in *ProjectInput) ValidateCreate() error {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return auth.NewError(auth.KindInvalidArgument, "name is required")
	}
	return in.validate()
}

func (in *ProjectInput) validate() error {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return auth.NewError(auth.KindInvalidArgument, "name cannot be empty")
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return auth.NewError(auth.KindInvalidArgument, "end_date is before start_date")
	}
	if in.Progress != nil && (*in.Progress < 0 || *in.Progress > 100) {
		return auth.NewError(auth.KindInvalidArgument, "progress must be between 0 and 100")
	}
	return nil
}

// Member is a user with access to a project
type Member struct {
	UserID  int64     `json:"user_id"`
	Email   string    `json:"email"`
	Name    string    `json:"name"`
	Role    auth.Role `json:"role"`
	AddedAt time.Time `json:"added_at"`
}

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Valid reports whether s is a known status
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// Task is a scheduled piece of work within a project
type Task struct {
	ID                 int64      `json:"id"`
	ProjectID          int64      `json:"project_id"`
	Name               string     `json:"name"`
	Status             TaskStatus `json:"status"`
	StartDate          *time.Time `json:"start_date,omitempty"`
	EndDate            *time.Time `json:"end_date,omitempty"`
	Duration           string     `json:"duration"`
	PercentDone        float64    `json:"percent_done"`
	Resource           string     `json:"resource,omitempty"`
	IsCriticalPath     bool       `json:"is_critical_path"`
	StartPercentage    float64    `json:"start_percentage"`
	DurationPercentage float64    `json:"duration_percentage"`
	Color              string     `json:"color"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DefaultTaskColor is used when a task is created without a color
const DefaultTaskColor = "#3b82f6"

// TaskInput holds the writable fields of a task
type TaskInput struct {
	Name               *string     `json:"name,omitempty"`
	Status             *TaskStatus `json:"status,omitempty"`
	StartDate          *time.Time  `json:"start_date,omitempty"`
	EndDate            *time.Time  `json:"end_date,omitempty"`
	Duration           *string     `json:"duration,omitempty"`
	PercentDone        *float64    `json:"percent_done,omitempty"`
	Resource           *string     `json:"resource,omitempty"`
	IsCriticalPath     *bool       `json:"is_critical_path,omitempty"`
	StartPercentage    *float64    `json:"start_percentage,omitempty"`
	DurationPercentage *float64    `json:"duration_percentage,omitempty"`
	Color              *string     `json:"color,omitempty"`
}

// ValidateCreate checks the fields required for a new task
func (in *TaskInput) ValidateCreate() error {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return auth.NewError(auth.KindInvalidArgument, "name is required")
	}
	return in.validate()
}

func (in *TaskInput) validate() error {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return auth.NewError(auth.KindInvalidArgument, "name cannot be empty")
	}
	if in.Status != nil && !in.Status.Valid() {
		return auth.NewError(auth.KindInvalidArgument, "status must be pending, in_progress or completed")
	}
	if in.PercentDone != nil && (*in.PercentDone < 0 || *in.PercentDone > 100) {
		return auth.NewError(auth.KindInvalidArgument, "percent_done must be between 0 and 100")
	}
	return nil
}

// Update is a dated status note on a project
type Update struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Content   string    `json:"content"`
	Date      time.Time `json:"date"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}
