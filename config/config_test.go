// config/config_test.go
package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestParseDurationFlexible(t *testing.T) {
	def := 10 * time.Second

	tests := []struct {
		name    string
		in      any
		want    time.Duration
		wantErr bool
	}{
		{"duration string", "90s", 90 * time.Second, false},
		{"minutes string", "2m", 2 * time.Minute, false},
		{"plain seconds string", "120", 120 * time.Second, false},
		{"int seconds", 30, 30 * time.Second, false},
		{"int64 seconds", int64(45), 45 * time.Second, false},
		{"float seconds", 1.5, 1500 * time.Millisecond, false},
		{"empty string", "", def, false},
		{"nil", nil, def, false},
		{"garbage", "soon", def, true},
		{"negative", "-5s", def, true},
		{"zero int", 0, def, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDurationFlexible(tt.in, def)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeListKeys(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"json array", `["http://localhost","https://app.example.com"]`, []string{"http://localhost", "https://app.example.com"}},
		{"comma list", "http://localhost, https://app.example.com", []string{"http://localhost", "https://app.example.com"}},
		{"single value", "https://app.example.com", []string{"https://app.example.com"}},
		{"interface slice", []any{"a", "b"}, []string{"a", "b"}},
		{"empty string", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set("allowed_origins", tt.in)
			if err := normalizeListKeys(nil, v, "allowed_origins"); err != nil {
				t.Fatalf("normalizeListKeys: %v", err)
			}

			got := v.GetStringSlice("allowed_origins")
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Env:      "dev",
			LogLevel: "debug",
			HTTP:     HTTPConfig{HTTPPort: 8080, HTTPSPort: 443},
			Supabase: SupabaseConfig{
				URL:            "https://proj.supabase.co",
				AnonKey:        "anon",
				RequestTimeout: 10 * time.Second,
			},
			Session: SessionConfig{
				AccessCookieName:  "sb-access-token",
				RefreshCookieName: "sb-refresh-token",
				CookieMode:        CookieModeCrossSite,
			},
			RateLimitPerMinute: 100,
		}
	}

	t.Run("valid", func(t *testing.T) {
		if err := validate(base()); err != nil {
			t.Errorf("validate: %v", err)
		}
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		frag   string
	}{
		{"missing supabase url", func(c *Config) { c.Supabase.URL = "" }, "GESTOR_SUPABASE_URL"},
		{"bad supabase url scheme", func(c *Config) { c.Supabase.URL = "ftp://x" }, "http(s)"},
		{"missing anon key", func(c *Config) { c.Supabase.AnonKey = "" }, "GESTOR_SUPABASE_ANON_KEY"},
		{"bad cookie mode", func(c *Config) { c.Session.CookieMode = "both" }, "cookie_mode"},
		{"bad port", func(c *Config) { c.HTTP.HTTPPort = 0 }, "http_port"},
		{"zero rate limit", func(c *Config) { c.RateLimitPerMinute = 0 }, "rate_limit_per_minute"},
		{"lets encrypt needs https", func(c *Config) { c.TLS.UseLetsEncrypt = true }, "use_https"},
		{"manual tls needs certs", func(c *Config) { c.HTTP.UseHTTPS = true }, "GESTOR_CERT_FILE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.frag) {
				t.Errorf("error %q does not mention %q", err, tt.frag)
			}
		})
	}
}

func TestDumpRedactsSecrets(t *testing.T) {
	cfg := Config{Supabase: SupabaseConfig{AnonKey: "super-secret"}}
	dump := cfg.Dump()
	if strings.Contains(dump, "super-secret") {
		t.Error("Dump leaked the anon key")
	}
	if !strings.Contains(dump, "[REDACTED]") {
		t.Error("Dump should mark the anon key as redacted")
	}
}
