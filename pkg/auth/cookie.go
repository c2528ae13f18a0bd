package auth

import (
	"net/http"
	"time"
)

// SessionCookie builds the access_token cookie for a credential. The stored
// value keeps the "Bearer " prefix.
func SessionCookie(cred Credential, secure bool, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    bearerPrefix + cred.Token,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		Expires:  cred.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearSessionCookie expires the access_token cookie
func ClearSessionCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
