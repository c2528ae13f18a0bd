package web

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/httputil"
	"github.com/platinummonkey/workbench/pkg/middleware"
	"github.com/platinummonkey/workbench/pkg/observability"
	"github.com/platinummonkey/workbench/pkg/projects"
	"github.com/platinummonkey/workbench/pkg/users"
)

// Accounts is the account storage used by the pages
type Accounts interface {
	auth.IdentityStore
	List(ctx context.Context) ([]*auth.Identity, error)
	Create(ctx context.Context, req *users.CreateUserRequest) (*auth.Identity, error)
}

// Projects is the project storage used by the pages
type Projects interface {
	ListProjects(ctx context.Context) ([]*projects.Project, error)
	ListForIdentity(ctx context.Context, identity *auth.Identity) ([]*projects.Project, error)
	GetProject(ctx context.Context, id int64) (*projects.Project, error)
	ListTasks(ctx context.Context, projectID int64) ([]*projects.Task, error)
	ListUpdates(ctx context.Context, projectID int64) ([]*projects.Update, error)
}

// Config holds the session settings of the pages
type Config struct {
	AccessTokenTTL time.Duration
	RememberMeTTL  time.Duration
	CookieSecure   bool
}

// Dependencies are the collaborators of the pages. Limiter, Metrics and
// Audit may be nil.
type Dependencies struct {
	Issuer   *auth.Issuer
	Verifier *auth.Verifier
	Checker  *auth.AccessChecker
	Accounts Accounts
	Projects Projects
	Renderer Renderer
	Limiter  middleware.Limiter
	Metrics  *observability.Metrics
	Audit    audit.Logger
}

// Handlers serves the server-rendered pages
type Handlers struct {
	cfg      Config
	issuer   *auth.Issuer
	verifier *auth.Verifier
	checker  *auth.AccessChecker
	accounts Accounts
	projects Projects
	renderer Renderer
	limiter  middleware.Limiter
	metrics  *observability.Metrics
	audit    audit.Logger
}

// NewHandlers creates the page handlers
func NewHandlers(cfg Config, deps Dependencies) *Handlers {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 24 * time.Hour
	}
	if cfg.RememberMeTTL <= 0 {
		cfg.RememberMeTTL = 30 * 24 * time.Hour
	}
	if cfg.RememberMeTTL < cfg.AccessTokenTTL {
		cfg.RememberMeTTL = cfg.AccessTokenTTL
	}
	if deps.Audit == nil {
		deps.Audit = audit.NoopLogger{}
	}
	return &Handlers{
		cfg:      cfg,
		issuer:   deps.Issuer,
		verifier: deps.Verifier,
		checker:  deps.Checker,
		accounts: deps.Accounts,
		projects: deps.Projects,
		renderer: deps.Renderer,
		limiter:  deps.Limiter,
		metrics:  deps.Metrics,
		audit:    deps.Audit,
	}
}

// Register mounts the pages on router behind the cookie session
func (h *Handlers) Register(router *mux.Router) {
	opts := middleware.DefaultWebSessionOptions()
	pages := router.NewRoute().Subrouter()
	pages.Use(middleware.WebSession(h.verifier, opts))

	var login http.Handler = http.HandlerFunc(h.login)
	if h.limiter != nil {
		login = middleware.LimitLogins(h.limiter, h.metrics, "web")(login)
	}

	pages.HandleFunc("/", h.root).Methods("GET")
	pages.HandleFunc("/auth/login", h.loginPage).Methods("GET")
	pages.Handle("/auth/login", login).Methods("POST")
	pages.HandleFunc("/auth/logout", h.logout).Methods("GET")
	pages.HandleFunc("/auth/register", h.registerPage).Methods("GET")
	pages.HandleFunc("/auth/register", h.register).Methods("POST")

	pages.HandleFunc("/dashboard", h.dashboard).Methods("GET")
	pages.HandleFunc("/dashboard/profile", h.profile).Methods("GET")
	pages.HandleFunc("/dashboard/projects/{project_id}", h.projectDetail).Methods("GET")
	pages.HandleFunc("/admin", h.admin).Methods("GET")
}

// home is where a signed in identity lands
func home(identity *auth.Identity) string {
	if identity != nil && identity.Administrator() {
		return "/admin"
	}
	return "/dashboard"
}

// render writes a page with status, falling back to a plain 500
func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, name string, page *Page) {
	if page.Identity == nil {
		page.Identity = middleware.GetIdentity(r)
	}
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, name, page); err != nil {
		observability.FromContext(r.Context()).WithError(err).WithField("page", name).Error("failed to render page")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (h *Handlers) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := auth.HTTPStatus(err)
	if errors.Is(err, projects.ErrProjectNotFound) {
		status = http.StatusNotFound
	}
	title := http.StatusText(status)
	if status == http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).Error("page request failed")
	}
	h.render(w, r, status, PageError, &Page{Title: title})
}

func (h *Handlers) root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, home(middleware.GetIdentity(r)), http.StatusSeeOther)
}

func (h *Handlers) loginPage(w http.ResponseWriter, r *http.Request) {
	next := r.URL.Query().Get("next")
	if identity := middleware.GetIdentity(r); identity != nil {
		http.Redirect(w, r, middleware.SafeRedirect(next, home(identity)), http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, PageLogin, &Page{Title: "Sign in", Next: next})
}

// login checks the submitted form and sets the session cookie. Failures
// re-render the form with a 401 and the uniform message.
func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, PageLogin, &Page{Title: "Sign in", Error: "invalid form"})
		return
	}
	email := r.PostForm.Get("username")
	if email == "" {
		email = r.PostForm.Get("email")
	}
	next := r.PostForm.Get("next")

	identity, err := auth.Authenticate(r.Context(), h.accounts, email, r.PostForm.Get("password"))
	if err != nil {
		if auth.KindOf(err) != auth.KindInvalidCredential {
			h.metrics.RecordLogin("web", "error")
			h.renderError(w, r, err)
			return
		}
		h.metrics.RecordLogin("web", "failure")
		audit.Record(r.Context(), h.audit, audit.NewEvent(r, audit.EventTypeAuthLoginFailed, audit.EventStatusFailure).
			WithMetadata("email", email).
			WithMetadata("surface", "web"))
		h.render(w, r, http.StatusUnauthorized, PageLogin, &Page{
			Title: "Sign in",
			Error: auth.LoginFailedMessage,
			Email: email,
			Next:  next,
		})
		return
	}

	ttl := h.cfg.AccessTokenTTL
	remember := httputil.ParseFormBool(r.PostForm.Get("remember"))
	if remember {
		ttl = h.cfg.RememberMeTTL
	}
	if err := h.startSession(w, r, identity, ttl); err != nil {
		h.metrics.RecordLogin("web", "error")
		h.renderError(w, r, err)
		return
	}

	h.metrics.RecordLogin("web", "success")
	audit.Record(r.Context(), h.audit, audit.NewEvent(r, audit.EventTypeAuthLogin, audit.EventStatusSuccess).
		WithUser(identity.ID, identity.Email).
		WithMetadata("surface", "web").
		WithMetadata("remember", remember))
	http.Redirect(w, r, middleware.SafeRedirect(next, home(identity)), http.StatusSeeOther)
}

func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, identity *auth.Identity, ttl time.Duration) error {
	cred, err := h.issuer.IssueFor(identity, ttl)
	if err != nil {
		return err
	}
	if err := h.accounts.TouchLastLogin(r.Context(), identity.ID, time.Now().UTC()); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to record last login")
	}
	http.SetCookie(w, auth.SessionCookie(cred, h.cfg.CookieSecure, ttl))
	return nil
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	event := audit.NewEvent(r, audit.EventTypeAuthLogout, audit.EventStatusSuccess)
	if identity := middleware.GetIdentity(r); identity != nil {
		event.WithUser(identity.ID, identity.Email)
	}
	audit.Record(r.Context(), h.audit, event)

	http.SetCookie(w, auth.ClearSessionCookie(h.cfg.CookieSecure))
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handlers) registerPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, PageRegister, &Page{Title: "Create an account"})
}

// register creates a standard account and signs it in
func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, PageRegister, &Page{Title: "Create an account", Error: "invalid form"})
		return
	}
	page := &Page{
		Title: "Create an account",
		Name:  r.PostForm.Get("name"),
		Email: r.PostForm.Get("email"),
	}

	identity, err := h.accounts.Create(r.Context(), &users.CreateUserRequest{
		Email:    page.Email,
		Name:     page.Name,
		Password: r.PostForm.Get("password"),
		Role:     auth.RoleStandard,
	})
	var authErr *auth.Error
	switch {
	case err == nil:
	case errors.As(err, &authErr) && authErr.Kind == auth.KindInvalidArgument:
		page.Error = authErr.PublicMessage()
		h.render(w, r, http.StatusBadRequest, PageRegister, page)
		return
	case errors.Is(err, users.ErrEmailTaken):
		page.Error = "That email is already registered"
		h.render(w, r, http.StatusBadRequest, PageRegister, page)
		return
	default:
		h.renderError(w, r, err)
		return
	}

	audit.Record(r.Context(), h.audit, audit.NewEvent(r, audit.EventTypeAuthRegister, audit.EventStatusSuccess).
		WithUser(identity.ID, identity.Email).
		WithResource(audit.ResourceTypeUser, identity.Subject()))

	if err := h.startSession(w, r, identity, h.cfg.AccessTokenTTL); err != nil {
		h.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	list, err := h.projects.ListForIdentity(r.Context(), middleware.GetIdentity(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, PageDashboard, &Page{Title: "Projects", Projects: list})
}

func (h *Handlers) profile(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, PageProfile, &Page{Title: "Profile"})
}

// projectDetail shows a project, its tasks and updates behind the owner check
func (h *Handlers) projectDetail(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "project_id")
	if err != nil {
		h.renderError(w, r, auth.NewError(auth.KindNotFound, "project not found"))
		return
	}
	if err := h.checker.Authorize(r.Context(), middleware.GetIdentity(r), id); err != nil {
		h.renderError(w, r, err)
		return
	}

	page := &Page{}
	if page.Project, err = h.projects.GetProject(r.Context(), id); err != nil {
		h.renderError(w, r, err)
		return
	}
	if page.Tasks, err = h.projects.ListTasks(r.Context(), id); err != nil {
		h.renderError(w, r, err)
		return
	}
	if page.Updates, err = h.projects.ListUpdates(r.Context(), id); err != nil {
		h.renderError(w, r, err)
		return
	}
	page.Title = page.Project.Name
	h.render(w, r, http.StatusOK, PageProject, page)
}

// admin is the administrator overview. WebSession keeps everyone else out.
func (h *Handlers) admin(w http.ResponseWriter, r *http.Request) {
	page := &Page{Title: "Administration"}
	var err error
	if page.Projects, err = h.projects.ListProjects(r.Context()); err != nil {
		h.renderError(w, r, err)
		return
	}
	if page.Users, err = h.accounts.List(r.Context()); err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, PageAdmin, page)
}
