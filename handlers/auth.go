// handlers/auth.go

// Package handlers wires the HTTP surface: auth endpoints backed by the
// upstream auth API and session cookies, and generic resource endpoints
// backed by the collection proxy.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/dalemusser/gestorbff/apperr"
	"github.com/dalemusser/gestorbff/httputil"
	"github.com/dalemusser/gestorbff/session"
	"github.com/dalemusser/gestorbff/supabase"
)

// Auth serves the /auth endpoints.
type Auth struct {
	client  *supabase.Client
	cookies *session.Manager
	logger  *zap.Logger
}

// NewAuth builds the auth handler group.
func NewAuth(client *supabase.Client, cookies *session.Manager, logger *zap.Logger) *Auth {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auth{client: client, cookies: cookies, logger: logger}
}

// sessionPayload mirrors the upstream auth payload back to the frontend.
// Tokens also travel in the response body so non-browser clients can use the
// API directly; browsers rely on the cookies.
type sessionPayload struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int             `json:"expires_in"`
	User         json.RawMessage `json:"user,omitempty"`
}

func toPayload(s *supabase.Session) sessionPayload {
	return sessionPayload{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
		User:         s.User,
	}
}

// SignIn handles POST /auth/signin.
func (h *Auth) SignIn(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httputil.BindJSON(r, &creds); err != nil {
		apperr.Write(w, r, apperr.BadRequest(err.Error()))
		return
	}

	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		apperr.Write(w, r, apperr.BadRequest("Email and password are required"))
		return
	}

	sess, err := h.client.SignIn(r.Context(), creds.Email, creds.Password)
	if err != nil {
		apperr.WriteWithLogger(w, r, err, h.logger)
		return
	}

	h.cookies.Establish(w, sess.AccessToken, sess.RefreshToken)
	httputil.WriteJSON(w, http.StatusOK, toPayload(sess))
}

// SignOut handles POST /auth/signout. Without an access token it is a no-op
// upstream, but the cookies are cleared either way; an upstream revocation
// failure is logged, not surfaced, because the browser-side session is gone
// regardless.
func (h *Auth) SignOut(w http.ResponseWriter, r *http.Request) {
	if token, err := h.cookies.Token(r); err == nil {
		if err := h.client.SignOut(r.Context(), token); err != nil {
			h.logger.Warn("upstream signout failed", zap.Error(err))
		}
	}

	h.cookies.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me.
func (h *Auth) Me(w http.ResponseWriter, r *http.Request) {
	token, err := h.cookies.Token(r)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}

	user, err := h.client.GetUser(r.Context(), token)
	if err != nil {
		apperr.WriteWithLogger(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]json.RawMessage{"user": user})
}

// Refresh handles POST /auth/refresh. A missing refresh cookie fails before
// any upstream call is made.
func (h *Auth) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken, err := h.cookies.RefreshToken(r)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}

	sess, err := h.client.Refresh(r.Context(), refreshToken)
	if err != nil {
		apperr.WriteWithLogger(w, r, err, h.logger)
		return
	}

	h.cookies.Establish(w, sess.AccessToken, sess.RefreshToken)
	httputil.WriteJSON(w, http.StatusOK, toPayload(sess))
}
