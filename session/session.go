// session/session.go

// Package session bridges the upstream token pair into browser cookies so the
// frontend never handles tokens directly. Tokens are opaque strings here; the
// BFF never decodes them.
package session

import (
	"net/http"

	"github.com/dalemusser/gestorbff/apperr"
	"github.com/dalemusser/gestorbff/config"
)

// MaxAge is the cookie lifetime in seconds (7 days). The upstream access
// token expires much sooner; the refresh cookie carries the session across
// that gap.
const MaxAge = 7 * 24 * 60 * 60

// Manager writes and reads the session cookie pair. Construct once from
// config and share; it is stateless.
type Manager struct {
	accessName  string
	refreshName string
	crossSite   bool
}

// NewManager builds a Manager from session config. cfg.CookieMode selects
// the attribute set: cross-site deployments need SameSite=None plus Secure,
// same-origin development uses SameSite=Lax without Secure so plain-HTTP
// localhost still works.
func NewManager(cfg config.SessionConfig) *Manager {
	return &Manager{
		accessName:  cfg.AccessCookieName,
		refreshName: cfg.RefreshCookieName,
		crossSite:   cfg.CookieMode == config.CookieModeCrossSite,
	}
}

// Establish sets the session cookies on the response. The refresh cookie is
// only written when refresh is non-empty: a token refresh may return a new
// access token without rotating the refresh token, and overwriting the
// refresh cookie with "" would end the session.
func (m *Manager) Establish(w http.ResponseWriter, access, refresh string) {
	http.SetCookie(w, m.cookie(m.accessName, access, MaxAge))
	if refresh != "" {
		http.SetCookie(w, m.cookie(m.refreshName, refresh, MaxAge))
	}
}

// Clear expires both session cookies. The attributes must match the ones
// used by Establish or browsers treat them as different cookies.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, m.cookie(m.accessName, "", -1))
	http.SetCookie(w, m.cookie(m.refreshName, "", -1))
}

// Token returns the access token from the request cookies, or a 401 error
// when the cookie is absent.
func (m *Manager) Token(r *http.Request) (string, error) {
	c, err := r.Cookie(m.accessName)
	if err != nil || c.Value == "" {
		return "", apperr.Unauthorized("Not authenticated")
	}
	return c.Value, nil
}

// RefreshToken returns the refresh token from the request cookies, or a 401
// error when the cookie is absent.
func (m *Manager) RefreshToken(r *http.Request) (string, error) {
	c, err := r.Cookie(m.refreshName)
	if err != nil || c.Value == "" {
		return "", apperr.Unauthorized("No refresh token")
	}
	return c.Value, nil
}

func (m *Manager) cookie(name, value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
	}
	if m.crossSite {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	} else {
		c.SameSite = http.SameSiteLaxMode
	}
	return c
}
