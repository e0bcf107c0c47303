package auth

import (
	"errors"
	"net/http"
	"strings"
)

const bearerPrefix = "bearer "

var (
	ErrMissingSessionIssuer     = errors.New("session validator: issuer required")
	ErrMissingSessionCookieName = errors.New("session validator: cookie name required")
)

// SessionValidatorConfig describes where request sessions are read from.
type SessionValidatorConfig struct {
	Issuer     *SessionIssuer
	CookieName string
}

// SessionValidator resolves the session of an incoming request.
type SessionValidator struct {
	issuer     *SessionIssuer
	cookieName string
}

// NewSessionValidator constructs a validator with the provided configuration.
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if cfg.Issuer == nil {
		return nil, ErrMissingSessionIssuer
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingSessionCookieName
	}
	return &SessionValidator{issuer: cfg.Issuer, cookieName: cookieName}, nil
}

// CookieName returns the cookie name configured for session lookups.
func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateRequest reads the session cookie, falling back to an Authorization bearer token when
// the cookie is absent or fails validation. The cookie error wins when no header is sent.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	if r == nil {
		return SessionClaims{}, ErrMissingSessionToken
	}
	cookieErr := ErrMissingSessionToken
	if cookie, err := r.Cookie(v.cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		claims, err := v.issuer.Validate(cookie.Value)
		if err == nil {
			return claims, nil
		}
		cookieErr = err
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return v.issuer.Validate(header[len(bearerPrefix):])
	}
	return SessionClaims{}, cookieErr
}
