package auth

import (
	"net/http"
	"strings"
)

// CookieName is the session cookie carrying the credential
const CookieName = "access_token"

const bearerPrefix = "Bearer "

// Extractor pulls a raw credential out of a request
type Extractor interface {
	Extract(r *http.Request) (string, bool)
}

// ExtractorFunc adapts a function to Extractor
type ExtractorFunc func(r *http.Request) (string, bool)

// Extract calls f(r)
func (f ExtractorFunc) Extract(r *http.Request) (string, bool) {
	return f(r)
}

// BearerHeaderExtractor reads "Authorization: Bearer <token>"
func BearerHeaderExtractor() Extractor {
	return ExtractorFunc(func(r *http.Request) (string, bool) {
		return stripBearer(r.Header.Get("Authorization"))
	})
}

// CookieExtractor reads a cookie whose value is "Bearer <token>"
func CookieExtractor(name string) Extractor {
	return ExtractorFunc(func(r *http.Request) (string, bool) {
		cookie, err := r.Cookie(name)
		if err != nil {
			return "", false
		}
		return stripBearer(cookie.Value)
	})
}

// DefaultExtractors returns the header extractor followed by the session cookie
func DefaultExtractors() []Extractor {
	return []Extractor{BearerHeaderExtractor(), CookieExtractor(CookieName)}
}

// ExtractToken tries each extractor in order; the first hit wins
func ExtractToken(r *http.Request, extractors ...Extractor) (string, error) {
	for _, e := range extractors {
		if token, ok := e.Extract(r); ok {
			return token, nil
		}
	}
	return "", NewError(KindMissingCredential, "")
}

func stripBearer(value string) (string, bool) {
	if len(value) < len(bearerPrefix) || !strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearerPrefix):])
	return token, token != ""
}
