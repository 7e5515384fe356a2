// supabase/client.go

// Package supabase owns the single pooled HTTP connection to the upstream
// backend: GoTrue password auth plus the PostgREST tabular REST API. All
// upstream failures are normalized into the apperr domain error shape here;
// callers re-map by context (e.g., empty result → not found).
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/gestorbff/apperr"
	"github.com/dalemusser/gestorbff/config"
	"github.com/dalemusser/gestorbff/metrics"
)

// Client is a long-lived upstream client; create one per process and share
// it. It holds no mutable state after construction.
type Client struct {
	baseURL string
	anonKey string
	httpc   *http.Client
}

// Response is the shaped result of a generic REST call. Data is nil for
// DELETE responses, an empty JSON object for empty or undecodable bodies,
// and the raw JSON payload otherwise.
type Response struct {
	Data   json.RawMessage
	Header http.Header
}

// Session is the upstream auth payload returned by sign-in and refresh.
type Session struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int             `json:"expires_in"`
	User         json.RawMessage `json:"user,omitempty"`
}

// New creates a Client with a pooled transport. Per-request timeouts come
// from cfg.RequestTimeout; the transport-level timeouts bound connection
// setup so a dead upstream fails fast.
func New(cfg config.SupabaseConfig) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		anonKey: cfg.AnonKey,
		httpc: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
	}
}

// Close releases idle upstream connections. Call once at shutdown.
func (c *Client) Close() {
	c.httpc.CloseIdleConnections()
}

// SignIn exchanges credentials for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	return c.authToken(ctx, "password", body, "auth.signin")
}

// Refresh exchanges a refresh token for a fresh session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	return c.authToken(ctx, "refresh_token", body, "auth.refresh")
}

func (c *Client) authToken(ctx context.Context, grantType string, body any, op string) (*Session, error) {
	raw, _, err := c.do(ctx, op, http.MethodPost, c.baseURL+"/auth/v1/token?grant_type="+grantType, "", body, nil)
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, apperr.BadUpstream("Invalid response from Supabase").Wrap(err)
	}
	return &s, nil
}

// GetUser fetches the user behind an access token. The raw user object is
// returned; some GoTrue versions nest it under a "user" key, which is
// unwrapped here.
func (c *Client) GetUser(ctx context.Context, accessToken string) (json.RawMessage, error) {
	raw, _, err := c.do(ctx, "auth.user", http.MethodGet, c.baseURL+"/auth/v1/user", accessToken, nil, nil)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		User json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.User) > 0 && string(wrapped.User) != "null" {
		return wrapped.User, nil
	}
	return raw, nil
}

// Health probes the upstream auth service. Suitable as a readiness check.
func (c *Client) Health(ctx context.Context) error {
	_, _, err := c.do(ctx, "auth.health", http.MethodGet, c.baseURL+"/auth/v1/health", "", nil, nil)
	return err
}

// SignOut revokes the session behind an access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	_, _, err := c.do(ctx, "auth.signout", http.MethodPost, c.baseURL+"/auth/v1/logout", accessToken, nil, nil)
	return err
}

// Rest issues a generic call against /rest/v1/<path>. path may carry its own
// query fragment (e.g., "tasks?id=eq.42"); params are appended to it.
//
// Status shaping: DELETE with 200/204 yields nil data (no content expected);
// 204 on other methods yields an empty object; empty or undecodable 2xx
// bodies yield an empty object. Any non-2xx status becomes an apperr carrying
// the upstream status code.
func (c *Client) Rest(ctx context.Context, method, path, accessToken string, params url.Values, body any, headers http.Header) (*Response, error) {
	u := c.baseURL + "/rest/v1/" + path
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		u += sep + params.Encode()
	}

	raw, header, err := c.do(ctx, "rest."+strings.ToLower(method), method, u, accessToken, body, headers)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(method, http.MethodDelete) {
		return &Response{Data: nil, Header: header}, nil
	}
	return &Response{Data: raw, Header: header}, nil
}

// do executes one upstream call and shapes the result. The returned raw
// payload is never nil for 2xx statuses: empty and undecodable bodies come
// back as "{}".
func (c *Client) do(ctx context.Context, op, method, urlStr, accessToken string, body any, extra http.Header) (json.RawMessage, http.Header, error) {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, apperr.Internal("Unexpected error").Wrap(err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, nil, apperr.Internal("Unexpected error").Wrap(err)
	}

	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.ObserveUpstream(op, 0, time.Since(start))
		return nil, nil, apperr.BadUpstream("Supabase request failed").Wrap(err)
	}
	defer resp.Body.Close()
	metrics.ObserveUpstream(op, resp.StatusCode, time.Since(start))

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, nil, apperr.BadUpstream("Supabase request failed").Wrap(err)
	}

	if resp.StatusCode >= 400 {
		return nil, nil, shapeError(resp.StatusCode, buf.Bytes())
	}

	if resp.StatusCode == http.StatusNoContent || buf.Len() == 0 {
		return json.RawMessage(`{}`), resp.Header, nil
	}
	if !json.Valid(buf.Bytes()) {
		return json.RawMessage(`{}`), resp.Header, nil
	}
	return json.RawMessage(buf.Bytes()), resp.Header, nil
}

// shapeError converts a non-2xx upstream response into a domain error. The
// message is extracted from the body's "message", "error_description", or
// "error" fields, in that order of preference. Upstream error shapes are
// undocumented, so anything unrecognized falls back to a generic message —
// never a secondary parse error.
func shapeError(status int, body []byte) error {
	detail := "Supabase request failed"

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"message", "error_description", "error"} {
			if s, ok := payload[key].(string); ok && s != "" {
				detail = s
				break
			}
		}
	}

	return apperr.Upstream(detail, status)
}
