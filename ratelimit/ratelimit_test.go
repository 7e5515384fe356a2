package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestKeyLimiter_BurstThenReject(t *testing.T) {
	kl := NewKeyLimiter(60, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if !kl.Allow("1.2.3.4") {
			t.Fatalf("request %d within burst should be allowed", i+1)
		}
	}
	if kl.Allow("1.2.3.4") {
		t.Error("request beyond burst should be rejected")
	}

	// Other keys have their own bucket.
	if !kl.Allow("5.6.7.8") {
		t.Error("independent key should be allowed")
	}
}

func TestIPKeyFunc(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(r *http.Request)
		remote string
		want   string
	}{
		{
			name:   "forwarded for takes first hop",
			setup:  func(r *http.Request) { r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2") },
			remote: "192.0.2.1:5000",
			want:   "10.0.0.1",
		},
		{
			name:   "real ip",
			setup:  func(r *http.Request) { r.Header.Set("X-Real-IP", "10.0.0.9") },
			remote: "192.0.2.1:5000",
			want:   "10.0.0.9",
		},
		{
			name:   "remote addr strips port",
			setup:  func(r *http.Request) {},
			remote: "192.0.2.7:6000",
			want:   "192.0.2.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			tt.setup(r)
			if got := IPKeyFunc(r); got != tt.want {
				t.Errorf("IPKeyFunc() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMiddleware_RejectsWithEnvelope(t *testing.T) {
	handler := Middleware(Config{PerMinute: 60, Burst: 1})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}

	var body struct {
		Detail string `json:"detail"`
		Code   string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != "rate_limited" {
		t.Errorf("code = %q, want \"rate_limited\"", body.Code)
	}
}

func TestMiddleware_Skip(t *testing.T) {
	handler := Middleware(Config{
		PerMinute: 60,
		Burst:     1,
		Skip:      func(r *http.Request) bool { return r.URL.Path == "/healthz" },
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("skipped path should never be limited, got %d", rec.Code)
		}
	}
}
