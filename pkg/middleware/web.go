package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/contextkeys"
	"github.com/platinummonkey/workbench/pkg/observability"
)

// WebSessionOptions configures WebSession
type WebSessionOptions struct {
	// ProtectedPrefixes require a verified session
	ProtectedPrefixes []string
	// AdminPrefixes additionally require an administrator
	AdminPrefixes []string
	// LoginPath receives unauthenticated visitors
	LoginPath string
	// HomePath receives non-administrators turned away from admin pages
	HomePath string
}

// DefaultWebSessionOptions returns the page layout of the web surface
func DefaultWebSessionOptions() WebSessionOptions {
	return WebSessionOptions{
		ProtectedPrefixes: []string{"/dashboard", "/admin", "/projects"},
		AdminPrefixes:     []string{"/admin"},
		LoginPath:         "/auth/login",
		HomePath:          "/dashboard",
	}
}

// WebSession guards the cookie based web surface. Protected pages redirect
// to the login page when the session does not verify; other pages are
// served either way, with the identity attached when one verifies.
func WebSession(verifier *auth.Verifier, opts WebSessionOptions) func(http.Handler) http.Handler {
	defaults := DefaultWebSessionOptions()
	if opts.LoginPath == "" {
		opts.LoginPath = defaults.LoginPath
	}
	if opts.HomePath == "" {
		opts.HomePath = defaults.HomePath
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			protected := hasPrefix(path, opts.ProtectedPrefixes)

			identity, err := verifier.VerifyRequest(r)
			if err != nil {
				if protected {
					if auth.HTTPStatus(err) == http.StatusInternalServerError {
						observability.FromContext(r.Context()).WithError(err).Error("session verification failed")
					}
					http.Redirect(w, r, opts.LoginPath+"?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if hasPrefix(path, opts.AdminPrefixes) && !identity.Administrator() {
				http.Redirect(w, r, opts.HomePath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(contextkeys.WithIdentity(r.Context(), identity)))
		})
	}
}

// hasPrefix matches whole path segments, so /admin covers /admin/users but
// not /administrators.
func hasPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

// SafeRedirect returns next when it is a local absolute path, otherwise
// fallback. It keeps the login page's ?next= from sending users off-site.
func SafeRedirect(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	if u, err := url.Parse(next); err != nil || u.Host != "" || u.Scheme != "" {
		return fallback
	}
	return next
}
