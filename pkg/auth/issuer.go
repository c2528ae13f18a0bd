package auth

import (
	"io"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/platinummonkey/workbench/pkg/observability"
)

// DefaultIssuer is the iss claim written into every credential
const DefaultIssuer = "workbench"

// Claims is the signed credential payload
type Claims struct {
	Role  Role `json:"role,omitempty"`
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Credential is an issued bearer token
type Credential struct {
	Token     string    `json:"access_token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Clock returns the current time
type Clock func() time.Time

type options struct {
	clock      Clock
	issuer     string
	extractors []Extractor
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// Option configures an Issuer or Verifier
type Option func(*options)

// WithClock overrides the time source
func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithIssuerName overrides the iss claim
func WithIssuerName(name string) Option {
	return func(o *options) { o.issuer = name }
}

// WithExtractors sets the ordered credential extractors used by VerifyRequest
func WithExtractors(extractors ...Extractor) Option {
	return func(o *options) { o.extractors = extractors }
}

// WithLogger sets the logger used when the request context carries none
func WithLogger(logger *observability.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics recorder
func WithMetrics(metrics *observability.Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

func buildOptions(opts []Option) options {
	o := options{
		clock:      time.Now,
		issuer:     DefaultIssuer,
		extractors: DefaultExtractors(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}
	return o
}

// Issuer signs credentials
type Issuer struct {
	keys KeySource
	opts options
}

// NewIssuer creates an issuer
func NewIssuer(keys KeySource, opts ...Option) *Issuer {
	return &Issuer{keys: keys, opts: buildOptions(opts)}
}

// Issue signs a credential for subjectID that expires ttl from now
func (i *Issuer) Issue(subjectID int64, role Role, ttl time.Duration) (Credential, error) {
	if subjectID <= 0 {
		return Credential{}, NewError(KindInvalidArgument, "subject id must be positive")
	}
	if ttl <= 0 {
		return Credential{}, NewError(KindInvalidArgument, "ttl must be positive")
	}
	if role != "" && !role.Valid() {
		return Credential{}, NewError(KindInvalidArgument, "unknown role "+string(role))
	}

	key, err := i.keys.SigningKey()
	if err != nil {
		return Credential{}, wrapError(KindUnknown, "failed to load signing key", err)
	}

	// exp has second precision; round up so the credential never expires
	// before now+ttl
	now := i.opts.clock()
	expiresAt := now.Add(ttl).Add(time.Second - 1).Truncate(time.Second)
	claims := Claims{
		Role:  role,
		Admin: role == RoleAdministrator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(subjectID, 10),
			Issuer:    i.opts.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = key.ID
	signed, err := token.SignedString(key.Secret)
	if err != nil {
		return Credential{}, wrapError(KindUnknown, "failed to sign credential", err)
	}

	return Credential{Token: signed, TokenType: "bearer", ExpiresAt: expiresAt}, nil
}

// IssueFor signs a credential for an identity
func (i *Issuer) IssueFor(identity *Identity, ttl time.Duration) (Credential, error) {
	if identity == nil {
		return Credential{}, NewError(KindInvalidArgument, "identity is required")
	}
	return i.Issue(identity.ID, identity.EffectiveRole(), ttl)
}
