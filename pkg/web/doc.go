// Package web serves the server-rendered pages of the portal: sign in,
// registration, the project dashboard and the administrator overview.
//
// Pages share the access_token cookie with the JSON API. Session checks and
// the administrator gate come from middleware.WebSession; a signed out visit
// to /dashboard or /admin is redirected to /auth/login?next=<path>.
//
//	renderer, err := web.NewTemplateRenderer(cfg.Web.TemplateDir) // "" uses the built-in pages
//	web.NewHandlers(web.Config{...}, web.Dependencies{Renderer: renderer, ...}).Register(router)
package web
