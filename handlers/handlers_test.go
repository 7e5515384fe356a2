// handlers/handlers_test.go
package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dalemusser/gestorbff/config"
	"github.com/dalemusser/gestorbff/handlers"
	"github.com/dalemusser/gestorbff/origin"
	"github.com/dalemusser/gestorbff/resource"
	"github.com/dalemusser/gestorbff/router"
	"github.com/dalemusser/gestorbff/session"
	"github.com/dalemusser/gestorbff/supabase"
)

// fakeUpstream is a minimal in-memory stand-in for the auth + REST backend.
type fakeUpstream struct {
	calls   atomic.Int64
	lastURL atomic.Value // *url.URL of the last REST call
}

func (f *fakeUpstream) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		switch r.URL.Query().Get("grant_type") {
		case "password":
			if body["email"] != "ana@example.com" || body["password"] != "secret" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error_description":"Invalid login credentials"}`))
				return
			}
		case "refresh_token":
			if body["refresh_token"] != "rt-1" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error_description":"Invalid Refresh Token"}`))
				return
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"token_type":    "bearer",
			"expires_in":    3600,
			"user":          map[string]any{"email": "ana@example.com"},
		})
	})

	mux.HandleFunc("GET /auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"invalid token"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"email": "ana@example.com", "id": "u1"})
	})

	mux.HandleFunc("POST /auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/rest/v1/", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		u := *r.URL
		f.lastURL.Store(&u)

		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"JWT required"}`))
			return
		}

		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPost:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`[{"id":"t1","title":"nueva"}]`))
		default:
			w.Header().Set("Content-Range", "0-0/1")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"id":"t1","title":"nueva"}]`))
		}
	})

	return mux
}

func (f *fakeUpstream) restURL() *url.URL {
	v, _ := f.lastURL.Load().(*url.URL)
	return v
}

// newApp wires the real router against the fake upstream.
func newApp(t *testing.T) (http.Handler, *fakeUpstream) {
	t.Helper()

	fake := &fakeUpstream{}
	upstream := httptest.NewServer(fake.handler())
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		Env:      "dev",
		LogLevel: "error",
		Supabase: config.SupabaseConfig{
			URL:            upstream.URL,
			AnonKey:        "anon",
			RequestTimeout: 5 * time.Second,
		},
		Session: config.SessionConfig{
			AccessCookieName:  "sb-access-token",
			RefreshCookieName: "sb-refresh-token",
			CookieMode:        config.CookieModeLocal,
		},
		RateLimitPerMinute: 10000,
	}

	client := supabase.New(cfg.Supabase)
	t.Cleanup(client.Close)

	cookies := session.NewManager(cfg.Session)
	origins, err := origin.Build(nil)
	if err != nil {
		t.Fatalf("origin.Build: %v", err)
	}

	logger := zap.NewNop()
	deps := router.Deps{
		Auth:    handlers.NewAuth(client, cookies, logger),
		Clients: handlers.NewResources(resource.NewService(client, resource.Clients), cookies, logger),
		Tasks:   handlers.NewResources(resource.NewService(client, resource.Tasks), cookies, logger),
		Origins: origins,
	}
	return router.New(cfg, logger, deps), fake
}

func sessionCookies() []*http.Cookie {
	return []*http.Cookie{
		{Name: "sb-access-token", Value: "at-1"},
		{Name: "sb-refresh-token", Value: "rt-1"},
	}
}

func doJSON(h http.Handler, method, target, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	for _, c := range cookies {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestSignInThenMe(t *testing.T) {
	h, _ := newApp(t)

	w := doJSON(h, http.MethodPost, "/auth/signin", `{"email":"ana@example.com","password":"secret"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("signin status = %d, body %s", w.Code, w.Body)
	}

	cookies := w.Result().Cookies()
	var access, refresh *http.Cookie
	for _, c := range cookies {
		switch c.Name {
		case "sb-access-token":
			access = c
		case "sb-refresh-token":
			refresh = c
		}
	}
	if access == nil || refresh == nil {
		t.Fatalf("cookies = %v, want both session cookies", cookies)
	}
	if access.Value != "at-1" || refresh.Value != "rt-1" {
		t.Errorf("cookie values = %q/%q", access.Value, refresh.Value)
	}

	me := doJSON(h, http.MethodGet, "/auth/me", "", []*http.Cookie{access, refresh})
	if me.Code != http.StatusOK {
		t.Fatalf("me status = %d, body %s", me.Code, me.Body)
	}
	var payload struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal(me.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if payload.User.Email != "ana@example.com" {
		t.Errorf("email = %q", payload.User.Email)
	}
}

func TestSignInBadCredentialsPassesUpstreamStatus(t *testing.T) {
	h, _ := newApp(t)

	w := doJSON(h, http.MethodPost, "/auth/signin", `{"email":"ana@example.com","password":"wrong"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}

	var env map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	if env["detail"] != "Invalid login credentials" {
		t.Errorf("detail = %q", env["detail"])
	}
	if env["code"] != "supabase_error" {
		t.Errorf("code = %q", env["code"])
	}
	if env["request_id"] == "" {
		t.Error("request_id missing from error envelope")
	}
}

func TestSignInMissingFields(t *testing.T) {
	h, fake := newApp(t)

	w := doJSON(h, http.MethodPost, "/auth/signin", `{"email":"ana@example.com"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if fake.calls.Load() != 0 {
		t.Errorf("upstream called %d times, want 0", fake.calls.Load())
	}
}

func TestRefreshWithoutCookieSkipsUpstream(t *testing.T) {
	h, fake := newApp(t)

	w := doJSON(h, http.MethodPost, "/auth/refresh", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if fake.calls.Load() != 0 {
		t.Errorf("upstream called %d times, want 0", fake.calls.Load())
	}

	var env map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	if env["detail"] != "No refresh token" {
		t.Errorf("detail = %q", env["detail"])
	}
}

func TestRefreshRotatesCookies(t *testing.T) {
	h, _ := newApp(t)

	w := doJSON(h, http.MethodPost, "/auth/refresh", "", sessionCookies())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if got := len(w.Result().Cookies()); got != 2 {
		t.Errorf("got %d cookies, want 2", got)
	}
}

func TestSignOutWithoutTokenClearsCookiesWithoutUpstreamCall(t *testing.T) {
	h, fake := newApp(t)

	w := doJSON(h, http.MethodPost, "/auth/signout", "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if fake.calls.Load() != 0 {
		t.Errorf("upstream called %d times, want 0", fake.calls.Load())
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("got %d cookies, want 2 expirations", len(cookies))
	}
	for _, c := range cookies {
		if c.MaxAge >= 0 {
			t.Errorf("%s: MaxAge = %d, want negative", c.Name, c.MaxAge)
		}
	}
}

func TestSignOutWithTokenRevokesUpstream(t *testing.T) {
	h, fake := newApp(t)

	w := doJSON(h, http.MethodPost, "/auth/signout", "", sessionCookies())
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if fake.calls.Load() != 1 {
		t.Errorf("upstream called %d times, want 1", fake.calls.Load())
	}
}

func TestListRequiresSession(t *testing.T) {
	h, fake := newApp(t)

	w := doJSON(h, http.MethodGet, "/tasks", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if fake.calls.Load() != 0 {
		t.Errorf("upstream called %d times, want 0", fake.calls.Load())
	}
}

func TestTaskFiltersReachUpstream(t *testing.T) {
	h, fake := newApp(t)

	w := doJSON(h, http.MethodGet, "/tasks?status=finalizado&due_from=2026-01-01&due_to=2026-01-31", "", sessionCookies())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	u := fake.restURL()
	if u == nil {
		t.Fatal("no REST call captured")
	}
	q := u.Query()
	if q.Get("status") != "eq.finalizado" {
		t.Errorf("status predicate = %q", q.Get("status"))
	}
	if q.Get("and") != "(due_date.gte.2026-01-01,due_date.lte.2026-01-31)" {
		t.Errorf("date group = %q", q.Get("and"))
	}

	var page resource.Page
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 1 || page.Page != 1 || page.PageSize != resource.DefaultPageSize {
		t.Errorf("page meta = %+v", page)
	}
}

func TestCamelCaseDateAliases(t *testing.T) {
	h, fake := newApp(t)

	w := doJSON(h, http.MethodGet, "/tasks?dueFrom=2026-02-01&dueTo=2026-02-28", "", sessionCookies())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	u := fake.restURL()
	if u == nil {
		t.Fatal("no REST call captured")
	}
	if got := u.Query().Get("and"); got != "(due_date.gte.2026-02-01,due_date.lte.2026-02-28)" {
		t.Errorf("date group = %q", got)
	}
}

func TestCreateTaskReturns201(t *testing.T) {
	h, _ := newApp(t)

	w := doJSON(h, http.MethodPost, "/tasks", `{"title":"nueva"}`, sessionCookies())
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	var rec map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["id"] != "t1" {
		t.Errorf("record = %v", rec)
	}
}

func TestDeleteTaskReturns204(t *testing.T) {
	h, fake := newApp(t)

	w := doJSON(h, http.MethodDelete, "/tasks/t1", "", sessionCookies())
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	u := fake.restURL()
	if u == nil || u.Query().Get("id") != "eq.t1" {
		t.Errorf("REST URL = %v, want id=eq.t1", u)
	}
}

func TestCompleteTask(t *testing.T) {
	h, fake := newApp(t)

	w := doJSON(h, http.MethodPost, "/tasks/t1/complete", "", sessionCookies())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if u := fake.restURL(); u == nil || u.Query().Get("id") != "eq.t1" {
		t.Errorf("REST URL = %v", u)
	}
}

func TestClientsHaveNoCompleteRoute(t *testing.T) {
	h, _ := newApp(t)

	w := doJSON(h, http.MethodPost, "/clients/c1/complete", "", sessionCookies())
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUnknownRouteGetsJSONEnvelope(t *testing.T) {
	h, _ := newApp(t)

	w := doJSON(h, http.MethodGet, "/nope", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var env map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("body is not the JSON envelope: %s", w.Body)
	}
	if env["code"] != "not_found" {
		t.Errorf("code = %q", env["code"])
	}
}

func TestEveryResponseCarriesRequestID(t *testing.T) {
	h, _ := newApp(t)

	for _, target := range []string{"/auth/me", "/tasks", "/nope"} {
		w := doJSON(h, http.MethodGet, target, "", nil)
		if got := w.Header().Get("X-Request-ID"); got == "" {
			t.Errorf("%s: X-Request-ID header missing", target)
		}
	}
}

func TestNonJSONContentTypeRejected(t *testing.T) {
	h, _ := newApp(t)

	r := httptest.NewRequest(http.MethodPost, "/auth/signin", strings.NewReader("email=x"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", w.Code)
	}
}
