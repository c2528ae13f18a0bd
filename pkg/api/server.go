package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/workbench/pkg/assets"
	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/httputil"
	"github.com/platinummonkey/workbench/pkg/middleware"
	"github.com/platinummonkey/workbench/pkg/observability"
	"github.com/platinummonkey/workbench/pkg/projects"
	"github.com/platinummonkey/workbench/pkg/storage"
	"github.com/platinummonkey/workbench/pkg/users"
)

// Config holds the request-level settings of the API
type Config struct {
	AccessTokenTTL time.Duration
	RememberMeTTL  time.Duration
	CookieSecure   bool
	MaxUploadBytes int64
}

// Dependencies are the collaborators of the API. Cache, Limiter, Metrics,
// Audit and Logger may be nil.
type Dependencies struct {
	Issuer   *auth.Issuer
	Verifier *auth.Verifier
	Checker  *auth.AccessChecker
	Users    UserStore
	Projects ProjectService
	Assets   AssetService
	Cache    MembershipInvalidator
	Limiter  middleware.Limiter
	Metrics  *observability.Metrics
	Audit    audit.Logger
	Logger   *observability.Logger
}

// Server represents our API server
type Server struct {
	cfg      Config
	router   *mux.Router
	issuer   *auth.Issuer
	verifier *auth.Verifier
	checker  *auth.AccessChecker
	users    UserStore
	projects ProjectService
	assets   AssetService
	cache    MembershipInvalidator
	limiter  middleware.Limiter
	metrics  *observability.Metrics
	audit    audit.Logger
	logger   *observability.Logger
}

// NewServer creates a new API server
func NewServer(cfg Config, deps Dependencies) *Server {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 24 * time.Hour
	}
	if cfg.RememberMeTTL < cfg.AccessTokenTTL {
		cfg.RememberMeTTL = cfg.AccessTokenTTL
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	if deps.Audit == nil {
		deps.Audit = audit.NoopLogger{}
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}

	s := &Server{
		cfg:      cfg,
		router:   mux.NewRouter(),
		issuer:   deps.Issuer,
		verifier: deps.Verifier,
		checker:  deps.Checker,
		users:    deps.Users,
		projects: deps.Projects,
		assets:   deps.Assets,
		cache:    deps.Cache,
		limiter:  deps.Limiter,
		metrics:  deps.Metrics,
		audit:    deps.Audit,
		logger:   deps.Logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(audit.Middleware(s.audit))
	api := s.router.PathPrefix("/api").Subrouter()

	// Public authentication routes
	authRoutes := api.PathPrefix("/auth").Subrouter()
	if s.limiter != nil {
		authRoutes.Use(middleware.LimitLogins(s.limiter, s.metrics, "api"))
	}
	authRoutes.HandleFunc("/login", s.login).Methods("POST")
	authRoutes.HandleFunc("/admin/login", s.adminLogin).Methods("POST")
	authRoutes.HandleFunc("/register", s.register).Methods("POST")
	authRoutes.HandleFunc("/logout", s.logout).Methods("POST")

	// Everything else requires a verified credential
	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.APIAuth(s.verifier))

	admin := middleware.RequireAdministrator()
	project := middleware.RequireProjectAccess(s.checker, "project_id")

	// User routes
	protected.HandleFunc("/users/me", s.me).Methods("GET")
	protected.Handle("/users", admin(http.HandlerFunc(s.listUsers))).Methods("GET")
	protected.Handle("/users", admin(http.HandlerFunc(s.createUser))).Methods("POST")
	protected.Handle("/users/{user_id}", admin(http.HandlerFunc(s.getUser))).Methods("GET")
	protected.Handle("/users/{user_id}", admin(http.HandlerFunc(s.updateUser))).Methods("PUT")
	protected.Handle("/users/{user_id}", admin(http.HandlerFunc(s.deleteUser))).Methods("DELETE")

	// Project routes
	protected.HandleFunc("/projects", s.listProjects).Methods("GET")
	protected.Handle("/projects", admin(http.HandlerFunc(s.createProject))).Methods("POST")
	protected.Handle("/projects/{project_id}", project(http.HandlerFunc(s.getProject))).Methods("GET")
	protected.Handle("/projects/{project_id}", admin(project(http.HandlerFunc(s.updateProject)))).Methods("PUT")
	protected.Handle("/projects/{project_id}", admin(project(http.HandlerFunc(s.deleteProject)))).Methods("DELETE")

	// Member routes
	protected.Handle("/projects/{project_id}/members", admin(project(http.HandlerFunc(s.listMembers)))).Methods("GET")
	protected.Handle("/projects/{project_id}/members", admin(project(http.HandlerFunc(s.addMember)))).Methods("POST")
	protected.Handle("/projects/{project_id}/members/{user_id}", admin(project(http.HandlerFunc(s.removeMember)))).Methods("DELETE")

	// Task routes
	protected.Handle("/projects/{project_id}/tasks", project(http.HandlerFunc(s.listTasks))).Methods("GET")
	protected.Handle("/projects/{project_id}/tasks", project(http.HandlerFunc(s.createTask))).Methods("POST")
	protected.Handle("/projects/{project_id}/tasks/{task_id}", project(http.HandlerFunc(s.getTask))).Methods("GET")
	protected.Handle("/projects/{project_id}/tasks/{task_id}", project(http.HandlerFunc(s.updateTask))).Methods("PUT")
	protected.Handle("/projects/{project_id}/tasks/{task_id}", project(http.HandlerFunc(s.deleteTask))).Methods("DELETE")

	// Update routes
	protected.Handle("/projects/{project_id}/updates", project(http.HandlerFunc(s.listUpdates))).Methods("GET")
	protected.Handle("/projects/{project_id}/updates", project(http.HandlerFunc(s.createUpdate))).Methods("POST")
	protected.Handle("/projects/{project_id}/updates/{update_id}/toggle", project(http.HandlerFunc(s.toggleUpdate))).Methods("POST")
	protected.Handle("/projects/{project_id}/updates/{update_id}", project(http.HandlerFunc(s.deleteUpdate))).Methods("DELETE")

	// Document routes
	protected.Handle("/projects/{project_id}/documents", project(http.HandlerFunc(s.listDocuments))).Methods("GET")
	protected.Handle("/projects/{project_id}/documents", project(http.HandlerFunc(s.uploadDocument))).Methods("POST")
	protected.Handle("/projects/{project_id}/documents/{document_id}", project(http.HandlerFunc(s.getDocument))).Methods("GET")
	protected.Handle("/projects/{project_id}/documents/{document_id}/download", project(http.HandlerFunc(s.downloadDocument))).Methods("GET")
	protected.Handle("/projects/{project_id}/documents/{document_id}", project(http.HandlerFunc(s.deleteDocument))).Methods("DELETE")

	// 3D model routes
	protected.HandleFunc("/models", s.listModels).Methods("GET")
	protected.Handle("/models", admin(http.HandlerFunc(s.uploadModel))).Methods("POST")
	protected.HandleFunc("/models/{model_id}", s.getModel).Methods("GET")
	protected.Handle("/models/{model_id}", admin(http.HandlerFunc(s.deleteModel))).Methods("DELETE")
	protected.HandleFunc("/models/{model_id}/assign", s.assignModel).Methods("POST")
	protected.HandleFunc("/models/{model_id}/download", s.downloadModel).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the router so other surfaces can mount next to the API
func (s *Server) Router() *mux.Router {
	return s.router
}

// writeError maps store and access control errors to responses
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrIdentityNotFound):
		httputil.WriteNotFoundError(w, "user not found")
	case errors.Is(err, projects.ErrProjectNotFound),
		errors.Is(err, projects.ErrTaskNotFound),
		errors.Is(err, projects.ErrUpdateNotFound),
		errors.Is(err, projects.ErrMemberNotFound),
		errors.Is(err, assets.ErrDocumentNotFound),
		errors.Is(err, assets.ErrModelNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, users.ErrEmailTaken):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, projects.ErrMemberExists):
		httputil.WriteErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrBlobNotFound):
		httputil.WriteNotFoundError(w, "file content not found")
	default:
		httputil.WriteAuthError(w, r, err)
	}
}

// record writes an audit event for the request
func (s *Server) record(r *http.Request, event *audit.Event) {
	if identity := middleware.GetIdentity(r); identity != nil && event.UserID == nil {
		event.WithUser(identity.ID, identity.Email)
	}
	audit.Record(r.Context(), s.audit, event)
}

// invalidate drops cached membership answers for the given pairs
func (s *Server) invalidate(r *http.Request, userID int64, projectIDs ...int64) {
	if s.cache == nil || len(projectIDs) == 0 {
		return
	}
	if err := s.cache.InvalidateUser(r.Context(), userID, projectIDs); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to invalidate membership cache")
	}
}

// invalidateProject drops every cached membership answer for a project
func (s *Server) invalidateProject(r *http.Request, projectID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateProject(r.Context(), projectID); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to invalidate membership cache")
	}
}
