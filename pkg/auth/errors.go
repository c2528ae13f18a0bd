package auth

import (
	"errors"
	"net/http"
)

// Kind classifies access-control failures
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindMissingCredential
	KindInvalidCredential
	KindExpiredCredential
	KindUnknownSubject
	KindUnauthenticated
	KindForbidden
	KindNotFound
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindInvalidArgument:   "invalid_argument",
	KindMissingCredential: "missing_credential",
	KindInvalidCredential: "invalid_credential",
	KindExpiredCredential: "expired_credential",
	KindUnknownSubject:    "unknown_subject",
	KindUnauthenticated:   "unauthenticated",
	KindForbidden:         "forbidden",
	KindNotFound:          "not_found",
}

var defaultMessages = map[Kind]string{
	KindInvalidArgument:   "invalid argument",
	KindMissingCredential: "missing credentials",
	KindInvalidCredential: "invalid credentials",
	KindExpiredCredential: "credentials expired",
	KindUnknownSubject:    "unknown or inactive user",
	KindUnauthenticated:   "authentication required",
	KindForbidden:         "insufficient permissions",
	KindNotFound:          "not found",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Error is an access-control failure with a kind
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// NewError creates an error of the given kind. An empty message uses the
// kind's default.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessages[e.Kind]
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// PublicMessage is the text safe to return to clients; it never includes
// the wrapped cause.
func (e *Error) PublicMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return defaultMessages[e.Kind]
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrForbidden)
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrInvalidArgument   = NewError(KindInvalidArgument, "")
	ErrMissingCredential = NewError(KindMissingCredential, "")
	ErrInvalidCredential = NewError(KindInvalidCredential, "")
	ErrExpiredCredential = NewError(KindExpiredCredential, "")
	ErrUnknownSubject    = NewError(KindUnknownSubject, "")
	ErrUnauthenticated   = NewError(KindUnauthenticated, "")
	ErrForbidden         = NewError(KindForbidden, "")
	ErrNotFound          = NewError(KindNotFound, "")
)

// ErrIdentityNotFound is returned (possibly wrapped) by identity stores
var ErrIdentityNotFound = errors.New("identity not found")

// KindOf extracts the kind of err, or KindUnknown
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindUnknown
}

// HTTPStatus maps an error to its response status
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindMissingCredential, KindInvalidCredential, KindExpiredCredential, KindUnknownSubject, KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
