package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/httputil"
	"github.com/platinummonkey/workbench/pkg/observability"
	"github.com/platinummonkey/workbench/pkg/users"
)

// login handles POST /api/auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	s.handleLogin(w, r, "api", false)
}

// adminLogin handles POST /api/auth/admin/login. It only issues credentials
// to administrators.
func (s *Server) adminLogin(w http.ResponseWriter, r *http.Request) {
	s.handleLogin(w, r, "api_admin", true)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, surface string, administratorsOnly bool) {
	req, err := parseLoginRequest(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	identity, err := auth.Authenticate(r.Context(), s.users, req.login(), req.Password)
	if err != nil {
		if auth.KindOf(err) == auth.KindInvalidCredential {
			s.metrics.RecordLogin(surface, "failure")
			s.record(r, audit.NewEvent(r, audit.EventTypeAuthLoginFailed, audit.EventStatusFailure).
				WithMetadata("email", req.login()).
				WithMetadata("surface", surface))
		} else {
			s.metrics.RecordLogin(surface, "error")
		}
		writeError(w, r, err)
		return
	}

	if administratorsOnly && !identity.Administrator() {
		s.metrics.RecordLogin(surface, "forbidden")
		s.record(r, audit.NewEvent(r, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied).
			WithUser(identity.ID, identity.Email).
			WithMessage("administrator login by non-administrator"))
		httputil.WriteForbidden(w, "administrator access required")
		return
	}

	ttl := s.cfg.AccessTokenTTL
	if req.Remember {
		ttl = s.cfg.RememberMeTTL
	}
	cred, err := s.issuer.IssueFor(identity, ttl)
	if err != nil {
		s.metrics.RecordLogin(surface, "error")
		httputil.WriteInternalError(w, r, err)
		return
	}

	if err := s.users.TouchLastLogin(r.Context(), identity.ID, time.Now().UTC()); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to record last login")
	}
	projectIDs, err := s.projects.ProjectIDsForUser(r.Context(), identity.ID)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}

	s.metrics.RecordLogin(surface, "success")
	s.record(r, audit.NewEvent(r, audit.EventTypeAuthLogin, audit.EventStatusSuccess).
		WithUser(identity.ID, identity.Email).
		WithMetadata("surface", surface).
		WithMetadata("remember", req.Remember))

	http.SetCookie(w, auth.SessionCookie(cred, s.cfg.CookieSecure, ttl))
	httputil.WriteSuccess(w, TokenResponse{
		AccessToken: cred.Token,
		TokenType:   "bearer",
		ExpiresAt:   cred.ExpiresAt,
		User:        &UserResponse{Identity: identity, Projects: projectIDs},
	})
}

// parseLoginRequest accepts a JSON body or an urlencoded form
func parseLoginRequest(r *http.Request) (*LoginRequest, error) {
	req := &LoginRequest{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := httputil.ParseJSON(r, req); err != nil {
			return nil, err
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	req.Email = r.PostForm.Get("email")
	req.Username = r.PostForm.Get("username")
	req.Password = r.PostForm.Get("password")
	req.Remember = httputil.ParseFormBool(r.PostForm.Get("remember"))
	return req, nil
}

// register handles POST /api/auth/register. Self-registered accounts are
// always standard users.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	identity, err := s.users.Create(r.Context(), &users.CreateUserRequest{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     auth.RoleStandard,
	})
	if err != nil {
		s.record(r, audit.NewEvent(r, audit.EventTypeAuthRegister, audit.EventStatusFailure).
			WithMetadata("email", req.Email).
			WithError(err))
		writeError(w, r, err)
		return
	}

	s.record(r, audit.NewEvent(r, audit.EventTypeAuthRegister, audit.EventStatusSuccess).
		WithUser(identity.ID, identity.Email).
		WithResource(audit.ResourceTypeUser, identity.Subject()))
	httputil.WriteCreated(w, &UserResponse{Identity: identity, Projects: []int64{}})
}

// logout handles POST /api/auth/logout. Credentials are stateless so this
// only clears the session cookie.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	event := audit.NewEvent(r, audit.EventTypeAuthLogout, audit.EventStatusSuccess)
	if identity, err := s.verifier.VerifyRequest(r); err == nil {
		event.WithUser(identity.ID, identity.Email)
	}
	s.record(r, event)

	http.SetCookie(w, auth.ClearSessionCookie(s.cfg.CookieSecure))
	httputil.WriteNoContent(w)
}
