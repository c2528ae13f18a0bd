package api

import (
	"context"
	"io"
	"time"

	"github.com/platinummonkey/workbench/pkg/assets"
	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/projects"
	"github.com/platinummonkey/workbench/pkg/users"
)

// UserStore is the account storage used by the API
type UserStore interface {
	auth.IdentityStore
	List(ctx context.Context) ([]*auth.Identity, error)
	Create(ctx context.Context, req *users.CreateUserRequest) (*auth.Identity, error)
	Update(ctx context.Context, id int64, req *users.UpdateUserRequest) (*auth.Identity, error)
	Delete(ctx context.Context, id int64) error
}

// ProjectService is the project, membership, task and update storage used
// by the API
type ProjectService interface {
	auth.ProjectLookup

	ListProjects(ctx context.Context) ([]*projects.Project, error)
	ListForIdentity(ctx context.Context, identity *auth.Identity) ([]*projects.Project, error)
	GetProject(ctx context.Context, id int64) (*projects.Project, error)
	CreateProject(ctx context.Context, in *projects.ProjectInput) (*projects.Project, error)
	UpdateProject(ctx context.Context, id int64, in *projects.ProjectInput) (*projects.Project, error)
	DeleteProject(ctx context.Context, id int64) error

	ListMembers(ctx context.Context, projectID int64) ([]*projects.Member, error)
	AddMember(ctx context.Context, projectID, userID int64) error
	RemoveMember(ctx context.Context, projectID, userID int64) error
	ProjectIDsForUser(ctx context.Context, userID int64) ([]int64, error)
	SetUserProjects(ctx context.Context, userID int64, projectIDs []int64) ([]int64, error)

	ListTasks(ctx context.Context, projectID int64) ([]*projects.Task, error)
	GetTask(ctx context.Context, projectID, taskID int64) (*projects.Task, error)
	CreateTask(ctx context.Context, projectID int64, in *projects.TaskInput) (*projects.Task, error)
	UpdateTask(ctx context.Context, projectID, taskID int64, in *projects.TaskInput) (*projects.Task, error)
	DeleteTask(ctx context.Context, projectID, taskID int64) error

	ListUpdates(ctx context.Context, projectID int64) ([]*projects.Update, error)
	CreateUpdate(ctx context.Context, projectID int64, content string, date time.Time) (*projects.Update, error)
	ToggleUpdate(ctx context.Context, projectID, updateID int64) (*projects.Update, error)
	DeleteUpdate(ctx context.Context, projectID, updateID int64) error
}

// AssetService is the document and 3D model storage used by the API
type AssetService interface {
	ListDocuments(ctx context.Context, projectID int64) ([]*assets.Document, error)
	GetDocument(ctx context.Context, projectID, documentID int64) (*assets.Document, error)
	UploadDocument(ctx context.Context, projectID int64, in *assets.DocumentUpload) (*assets.Document, error)
	OpenDocument(ctx context.Context, projectID, documentID int64) (*assets.Document, io.ReadCloser, error)
	DeleteDocument(ctx context.Context, projectID, documentID int64) error

	ListModelsForIdentity(ctx context.Context, identity *auth.Identity) ([]*assets.Model3D, error)
	GetModel(ctx context.Context, id int64) (*assets.Model3D, error)
	UploadModel(ctx context.Context, in *assets.ModelUpload) (*assets.Model3D, error)
	AssignModel(ctx context.Context, modelID int64, projectID *int64) (*assets.Model3D, error)
	OpenModel(ctx context.Context, id int64) (*assets.Model3D, io.ReadCloser, error)
	DeleteModel(ctx context.Context, id int64) error
}

// MembershipInvalidator drops cached access decisions after membership
// changes. projects.MembershipCache implements it.
type MembershipInvalidator interface {
	Invalidate(ctx context.Context, projectID, userID int64) error
	InvalidateProject(ctx context.Context, projectID int64) error
	InvalidateUser(ctx context.Context, userID int64, projectIDs []int64) error
}

// LoginRequest is the body of the login endpoints. Username is accepted as
// an alias of Email for OAuth2 password-form clients.
type LoginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

func (r *LoginRequest) login() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Username
}

// TokenResponse is returned by a successful login
type TokenResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   time.Time     `json:"expires_at"`
	User        *UserResponse `json:"user"`
}

// UserResponse is an account with its explicit project memberships
type UserResponse struct {
	*auth.Identity
	Projects []int64 `json:"projects"`
}

// RegisterRequest is the body of public self-registration
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// MemberRequest adds a user to a project
type MemberRequest struct {
	UserID int64 `json:"user_id"`
}

// UpdateRequest posts a project update. Date is YYYY-MM-DD or RFC 3339
// and defaults to today.
type UpdateRequest struct {
	Content string `json:"content"`
	Date    string `json:"date"`
}

func (r *UpdateRequest) date() (time.Time, error) {
	if r.Date == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", r.Date); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, r.Date)
	if err != nil {
		return time.Time{}, auth.NewError(auth.KindInvalidArgument, "date must be YYYY-MM-DD")
	}
	return t, nil
}

// AssignRequest moves a model to a project
type AssignRequest struct {
	ProjectID *int64 `json:"project_id"`
}
