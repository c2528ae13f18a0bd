package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/platinummonkey/workbench/pkg/contextkeys"
	"github.com/platinummonkey/workbench/pkg/observability"
)

// IdentityStore is the persistent identity collaborator. Lookups return an
// error wrapping ErrIdentityNotFound when no row matches.
type IdentityStore interface {
	GetByID(ctx context.Context, id int64) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

// Verifier validates credentials and resolves them to live identities
type Verifier struct {
	keys       KeySource
	identities IdentityStore
	opts       options
}

// NewVerifier creates a verifier
func NewVerifier(keys KeySource, identities IdentityStore, opts ...Option) *Verifier {
	return &Verifier{keys: keys, identities: identities, opts: buildOptions(opts)}
}

// VerifyRequest extracts the credential from r and verifies it
func (v *Verifier) VerifyRequest(r *http.Request) (*Identity, error) {
	raw, err := ExtractToken(r, v.opts.extractors...)
	if err != nil {
		v.opts.metrics.RecordVerification(KindMissingCredential.String())
		return nil, err
	}
	return v.Verify(r.Context(), raw)
}

// Verify validates raw and returns the identity it names
func (v *Verifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	identity, err := v.verify(ctx, raw)
	if err != nil {
		outcome := KindOf(err).String()
		if KindOf(err) == KindUnknown {
			outcome = "error"
		}
		v.opts.metrics.RecordVerification(outcome)
		return nil, err
	}
	v.opts.metrics.RecordVerification("success")
	return identity, nil
}

func (v *Verifier) verify(ctx context.Context, raw string) (*Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, NewError(KindMissingCredential, "")
	}

	claims, err := v.parse(raw)
	if err != nil {
		return nil, err
	}

	identity, err := v.resolve(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	now := v.opts.clock()
	if err := v.identities.TouchLastLogin(ctx, identity.ID, now); err != nil {
		v.logger(ctx).
			WithField("user_id", identity.ID).
			WithError(err).
			Warn("failed to record last login")
	} else {
		identity.LastLoginAt = &now
	}

	return identity, nil
}

func (v *Verifier) parse(raw string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.opts.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.opts.clock),
	)

	var lastErr error
	for _, key := range v.keys.VerificationKeys() {
		claims := &Claims{}
		secret := key.Secret
		_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err == nil {
			return claims, nil
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, wrapError(KindExpiredCredential, "", err)
		}
		lastErr = err
	}
	return nil, wrapError(KindInvalidCredential, "", lastErr)
}

// resolve looks up the subject. Numeric subjects are ids; subjects holding
// an email address come from older credentials.
func (v *Verifier) resolve(ctx context.Context, subject string) (*Identity, error) {
	var (
		identity *Identity
		err      error
	)
	switch {
	case subject == "":
		return nil, NewError(KindInvalidCredential, "credential has no subject")
	case strings.Contains(subject, "@"):
		identity, err = v.identities.GetByEmail(ctx, subject)
	default:
		id, perr := strconv.ParseInt(subject, 10, 64)
		if perr != nil || id <= 0 {
			return nil, NewError(KindInvalidCredential, "credential subject is malformed")
		}
		identity, err = v.identities.GetByID(ctx, id)
	}

	if errors.Is(err, ErrIdentityNotFound) {
		return nil, NewError(KindUnknownSubject, "")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential subject: %w", err)
	}
	if identity == nil || !identity.IsActive {
		return nil, NewError(KindUnknownSubject, "")
	}
	return identity, nil
}

// logger prefers the request logger and falls back to the configured one
func (v *Verifier) logger(ctx context.Context) *observability.Logger {
	if _, ok := ctx.Value(contextkeys.LoggerKey).(*observability.Logger); ok {
		return observability.FromContext(ctx)
	}
	return v.opts.logger
}
