// Package auth is the credential and access-control core of workbench.
//
// # Overview
//
// Requests authenticate with a signed, expiring bearer credential (HS256 JWT).
// The credential is issued after a password login and travels either in the
// Authorization header or in the access_token cookie used by the web
// dashboard. Every project-scoped resource is then guarded by a role gate and
// a project membership check.
//
// # Issuing
//
//	keys, err := auth.NewStaticKeySource(cfg.Auth.Secret)
//	issuer := auth.NewIssuer(keys)
//	cred, err := issuer.Issue(user.ID, auth.RoleStandard, 24*time.Hour)
//
// Claims carry sub (decimal user id), exp, iat, iss, jti and the role. The
// KeySource interface is the rotation point: a source may sign with a new key
// while still accepting the previous ones.
//
// # Verifying
//
//	verifier := auth.NewVerifier(keys, userStore)
//	identity, err := verifier.VerifyRequest(r)
//
// Extraction tries the Authorization header first and then the access_token
// cookie, whose value is "Bearer <token>". A credential is rejected as:
//
//   - MissingCredential when no extractor finds a token
//   - InvalidCredential on a bad signature, algorithm, issuer or payload
//   - ExpiredCredential when now >= exp
//   - UnknownSubject when the user is gone or inactive
//
// A successful verification stamps the user's last login time. Failures of
// that write are logged and ignored.
//
// # Authorizing
//
//	err := auth.Authorize(identity, auth.RequireAdministrator())
//	err = checker.Authorize(ctx, identity, projectID)
//
// Identities stored with the older boolean admin flag and those stored with a
// role string are normalized by NormalizeRole before any decision is made.
// AccessChecker reports NotFound for a missing project before it considers
// membership, so non-members cannot probe for project ids.
//
// # Errors
//
// All failures are *Error values with a Kind. HTTPStatus maps them to
// 400/401/403/404; anything without a Kind is a 500.
package auth
