// server/server_test.go
package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidRedirectHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"example.com", true},
		{"example.com:8443", true},
		{"localhost:3000", true},
		{"[::1]:443", true},
		{"[fe80::1%eth0]", true},
		{"", false},
		{"example.com:notaport", false},
		{"example.com:70000", false},
		{"https://example.com", false},
		{"/etc/passwd", false},
		{"evil.com\r\nSet-Cookie: x", false},
		{"[not-an-ip]", false},
	}

	for _, tt := range tests {
		if got := validRedirectHost(tt.host); got != tt.want {
			t.Errorf("validRedirectHost(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestRedirectHandler(t *testing.T) {
	h := redirectHandler()

	r := httptest.NewRequest(http.MethodGet, "/clients?page=2", nil)
	r.Host = "api.example.com"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "https://api.example.com/clients?page=2" {
		t.Errorf("Location = %q", loc)
	}
}

func TestRedirectHandlerRejectsBadHost(t *testing.T) {
	h := redirectHandler()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "evil.com\r\nX-Injected: 1"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHasControlChars(t *testing.T) {
	if hasControlChars("/path?a=b") {
		t.Error("plain URI flagged")
	}
	if !hasControlChars("/path\r\nX: y") {
		t.Error("CRLF not flagged")
	}
}
