// config/config.go
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// HTTPConfig groups HTTP/HTTPS port, protocol, and server timeout settings.
type HTTPConfig struct {
	HTTPPort  int  `mapstructure:"http_port"`
	HTTPSPort int  `mapstructure:"https_port"`
	UseHTTPS  bool `mapstructure:"use_https"`

	ReadTimeout       time.Duration `mapstructure:"-"`
	ReadHeaderTimeout time.Duration `mapstructure:"-"`
	WriteTimeout      time.Duration `mapstructure:"-"`
	IdleTimeout       time.Duration `mapstructure:"-"`
	ShutdownTimeout   time.Duration `mapstructure:"-"`
}

// TLSConfig groups TLS / ACME-related settings.
type TLSConfig struct {
	CertFile            string `mapstructure:"cert_file"`
	KeyFile             string `mapstructure:"key_file"`
	UseLetsEncrypt      bool   `mapstructure:"use_lets_encrypt"`
	LetsEncryptEmail    string `mapstructure:"lets_encrypt_email"`
	LetsEncryptCacheDir string `mapstructure:"lets_encrypt_cache_dir"`
	Domain              string `mapstructure:"domain"`
}

// SupabaseConfig groups everything needed to talk to the upstream backend.
type SupabaseConfig struct {
	URL     string `mapstructure:"supabase_url"`
	AnonKey string `mapstructure:"supabase_anon_key"`

	// RequestTimeout bounds every outbound upstream call.
	RequestTimeout time.Duration `mapstructure:"-"`
}

// SessionConfig groups cookie naming and transport-security policy.
type SessionConfig struct {
	AccessCookieName  string `mapstructure:"access_cookie_name"`
	RefreshCookieName string `mapstructure:"refresh_cookie_name"`

	// CookieMode selects the cookie attribute set: "cross-site"
	// (Secure, SameSite=None — frontend on a different origin) or
	// "local" (SameSite=Lax, not secure — same-origin development).
	CookieMode string `mapstructure:"cookie_mode"`
}

// Config holds the full configuration for the BFF, immutable after Load.
type Config struct {
	Env      string `mapstructure:"env"`       // "dev" | "prod"
	LogLevel string `mapstructure:"log_level"` // debug, info, warn, error …

	HTTP     HTTPConfig     `mapstructure:",squash"`
	TLS      TLSConfig      `mapstructure:",squash"`
	Supabase SupabaseConfig `mapstructure:",squash"`
	Session  SessionConfig  `mapstructure:",squash"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`

	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
	RateLimitBurst     int `mapstructure:"rate_limit_burst"`

	MaxRequestBodyBytes int64 `mapstructure:"max_request_body_bytes"`
}

// Cookie modes accepted by session config.
const (
	CookieModeCrossSite = "cross-site"
	CookieModeLocal     = "local"
)

// Dump returns a pretty, redacted JSON string of the config for debugging.
// Never logs secrets; use at debug level only.
func (c Config) Dump() string {
	cp := c
	if cp.Supabase.AnonKey != "" {
		cp.Supabase.AnonKey = "[REDACTED]"
	}
	b, _ := json.MarshalIndent(cp, "", "  ")
	return string(b)
}

// Load merges defaults → config.* file(s) → env vars → explicit flags into
// one Config. Final precedence (highest wins): flags(explicit) > env >
// config > defaults.
func Load(logger *zap.Logger) (*Config, error) {
	// 0) Optionally load .env (safe: real env still wins over .env)
	if err := godotenv.Load(); err == nil && logger != nil {
		logger.Info("Loaded .env file")
	}

	// 1) Define flags (only *explicitly set* flags will override)
	pflag.String("env", "dev", `Runtime environment "dev"|"prod"`)
	pflag.String("log_level", "debug", "Log level")

	pflag.Int("http_port", 8080, "HTTP port")
	pflag.Int("https_port", 443, "HTTPS port")
	pflag.Bool("use_https", false, "Serve HTTPS")

	pflag.Bool("use_lets_encrypt", false, "Use Let's Encrypt")
	pflag.String("lets_encrypt_email", "", "ACME account e-mail")
	pflag.String("lets_encrypt_cache_dir", "letsencrypt-cache", "ACME cache dir")
	pflag.String("cert_file", "", "TLS cert file (manual TLS)")
	pflag.String("key_file", "", "TLS key file  (manual TLS)")
	pflag.String("domain", "", "Domain for TLS or ACME")

	pflag.String("supabase_url", "", "Supabase project base URL")
	pflag.String("supabase_anon_key", "", "Supabase anon API key")
	pflag.String("request_timeout", "10s", `Upstream request timeout (e.g., "10s")`)

	pflag.String("allowed_origins", "", `JSON array of origins, e.g. '["http://localhost","https://app.example"]'`)

	pflag.String("access_cookie_name", "sb-access-token", "Access-token cookie name")
	pflag.String("refresh_cookie_name", "sb-refresh-token", "Refresh-token cookie name")
	pflag.String("cookie_mode", CookieModeCrossSite, `Cookie policy: "cross-site" or "local"`)

	pflag.Int("rate_limit_per_minute", 100, "Per-IP sustained request rate")
	pflag.Int("rate_limit_burst", 0, "Per-IP burst size (0 = same as rate)")

	pflag.Int64("max_request_body_bytes", 2<<20, "Max HTTP request body size in bytes (0 = unlimited)")

	pflag.String("read_timeout", "15s", "HTTP server read timeout")
	pflag.String("read_header_timeout", "5s", "HTTP server read-header timeout")
	pflag.String("write_timeout", "30s", "HTTP server write timeout")
	pflag.String("idle_timeout", "60s", "HTTP server idle timeout")
	pflag.String("shutdown_timeout", "15s", "Graceful shutdown timeout")
	pflag.Parse()

	// 2) Viper + env
	v := viper.New()
	v.SetEnvPrefix("GESTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Bind env for all keys so Unmarshal sees them.
	for _, k := range allKeys() {
		_ = v.BindEnv(k)
	}

	// 3) Optional config.* files (yaml|yml|json|toml)
	for _, ext := range [...]string{"yaml", "yml", "json", "toml"} {
		file := "config." + ext
		if _, err := os.Stat(file); err != nil {
			continue
		}
		b, err := os.ReadFile(file)
		if err != nil {
			if logger != nil {
				logger.Warn("cannot read config file", zap.String("file", file), zap.Error(err))
			}
			continue
		}
		v.SetConfigType(ext)
		if err := v.MergeConfig(bytes.NewReader(b)); err != nil {
			if logger != nil {
				logger.Warn("cannot decode config file", zap.String("file", file), zap.Error(err))
			}
			continue
		}
		if logger != nil {
			logger.Info("Loaded config file", zap.String("file", file))
		}
	}

	// 4) Defaults (lowest precedence)
	setDefaults(v)

	// 5) Apply *explicit* flags (highest precedence)
	pflag.CommandLine.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			_ = v.BindPFlag(f.Name, f)
		}
	})

	// 6) Normalize list keys (accept JSON strings or comma lists → []string)
	if err := normalizeListKeys(logger, v, "allowed_origins"); err != nil {
		return nil, err
	}

	// 7) Build struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.Supabase.RequestTimeout = durationKey(logger, v, "request_timeout", 10*time.Second)
	cfg.HTTP.ReadTimeout = durationKey(logger, v, "read_timeout", 15*time.Second)
	cfg.HTTP.ReadHeaderTimeout = durationKey(logger, v, "read_header_timeout", 5*time.Second)
	cfg.HTTP.WriteTimeout = durationKey(logger, v, "write_timeout", 30*time.Second)
	cfg.HTTP.IdleTimeout = durationKey(logger, v, "idle_timeout", 60*time.Second)
	cfg.HTTP.ShutdownTimeout = durationKey(logger, v, "shutdown_timeout", 15*time.Second)

	cfg.Supabase.URL = strings.TrimRight(strings.TrimSpace(cfg.Supabase.URL), "/")
	cfg.Session.CookieMode = strings.ToLower(strings.TrimSpace(cfg.Session.CookieMode))

	// 8) Validate
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func allKeys() []string {
	return []string{
		"env", "log_level",
		"http_port", "https_port", "use_https",
		"use_lets_encrypt", "lets_encrypt_email", "lets_encrypt_cache_dir",
		"cert_file", "key_file", "domain",
		"supabase_url", "supabase_anon_key", "request_timeout",
		"allowed_origins",
		"access_cookie_name", "refresh_cookie_name", "cookie_mode",
		"rate_limit_per_minute", "rate_limit_burst",
		"max_request_body_bytes",
		"read_timeout", "read_header_timeout", "write_timeout",
		"idle_timeout", "shutdown_timeout",
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "debug")

	v.SetDefault("http_port", 8080)
	v.SetDefault("https_port", 443)
	v.SetDefault("use_https", false)

	v.SetDefault("use_lets_encrypt", false)
	v.SetDefault("lets_encrypt_email", "")
	v.SetDefault("lets_encrypt_cache_dir", "letsencrypt-cache")
	v.SetDefault("cert_file", "")
	v.SetDefault("key_file", "")
	v.SetDefault("domain", "")

	v.SetDefault("supabase_url", "")
	v.SetDefault("supabase_anon_key", "")
	v.SetDefault("request_timeout", "10s")

	v.SetDefault("allowed_origins", []string{})

	v.SetDefault("access_cookie_name", "sb-access-token")
	v.SetDefault("refresh_cookie_name", "sb-refresh-token")
	v.SetDefault("cookie_mode", CookieModeCrossSite)

	v.SetDefault("rate_limit_per_minute", 100)
	v.SetDefault("rate_limit_burst", 0)

	v.SetDefault("max_request_body_bytes", int64(2<<20))

	v.SetDefault("read_timeout", "15s")
	v.SetDefault("read_header_timeout", "5s")
	v.SetDefault("write_timeout", "30s")
	v.SetDefault("idle_timeout", "60s")
	v.SetDefault("shutdown_timeout", "15s")
}

func durationKey(logger *zap.Logger, v *viper.Viper, key string, def time.Duration) time.Duration {
	dur, err := parseDurationFlexible(v.Get(key), def)
	if err != nil && logger != nil {
		logger.Warn("invalid duration; using default",
			zap.String("key", key),
			zap.Any("value", v.Get(key)),
			zap.Duration("default", def),
			zap.Error(err))
	}
	return dur
}

// normalizeListKeys coerces JSON-array strings or comma-separated values
// into []string for the given keys.
func normalizeListKeys(logger *zap.Logger, v *viper.Viper, keys ...string) error {
	for _, key := range keys {
		val := v.Get(key)
		switch t := val.(type) {
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				continue
			}
			var arr []string
			if err := json.Unmarshal([]byte(s), &arr); err != nil {
				// Not JSON: accept a plain comma-separated list.
				for _, item := range strings.Split(s, ",") {
					if item = strings.TrimSpace(item); item != "" {
						arr = append(arr, item)
					}
				}
			}
			v.Set(key, arr)
		case []interface{}:
			arr := make([]string, 0, len(t))
			for _, e := range t {
				arr = append(arr, fmt.Sprint(e))
			}
			v.Set(key, arr)
		case []string, nil:
			// already correct or unset
		default:
			if logger != nil {
				logger.Warn("unexpected type for list key; expected JSON array/string",
					zap.String("key", key), zap.Any("value", t))
			}
		}
	}
	return nil
}

func validate(cfg Config) error {
	var missing []string
	var invalid []string

	if strings.TrimSpace(cfg.Supabase.URL) == "" {
		missing = append(missing, "GESTOR_SUPABASE_URL (or --supabase_url)")
	} else if u, err := url.Parse(cfg.Supabase.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		invalid = append(invalid, "supabase_url must be an http(s) URL")
	}
	if strings.TrimSpace(cfg.Supabase.AnonKey) == "" {
		missing = append(missing, "GESTOR_SUPABASE_ANON_KEY (or --supabase_anon_key)")
	}

	if cfg.Session.CookieMode != CookieModeCrossSite && cfg.Session.CookieMode != CookieModeLocal {
		invalid = append(invalid, `cookie_mode must be "cross-site" or "local"`)
	}
	if strings.TrimSpace(cfg.Session.AccessCookieName) == "" {
		missing = append(missing, "access_cookie_name")
	}
	if strings.TrimSpace(cfg.Session.RefreshCookieName) == "" {
		missing = append(missing, "refresh_cookie_name")
	}

	if cfg.HTTP.HTTPPort <= 0 || cfg.HTTP.HTTPPort > 65535 {
		invalid = append(invalid, "http_port must be in 1..65535")
	}
	if cfg.HTTP.HTTPSPort <= 0 || cfg.HTTP.HTTPSPort > 65535 {
		invalid = append(invalid, "https_port must be in 1..65535")
	}
	if cfg.HTTP.UseHTTPS && cfg.HTTP.HTTPPort == cfg.HTTP.HTTPSPort {
		invalid = append(invalid, "http_port and https_port cannot be equal when use_https=true")
	}

	if cfg.TLS.UseLetsEncrypt {
		if !cfg.HTTP.UseHTTPS {
			invalid = append(invalid, "use_lets_encrypt=true requires use_https=true")
		}
		if strings.TrimSpace(cfg.TLS.Domain) == "" {
			missing = append(missing, "GESTOR_DOMAIN (or --domain) for Let's Encrypt")
		}
		if s := strings.TrimSpace(cfg.TLS.LetsEncryptEmail); s == "" {
			missing = append(missing, "GESTOR_LETS_ENCRYPT_EMAIL (or --lets_encrypt_email)")
		} else if !strings.Contains(s, "@") {
			invalid = append(invalid, "lets_encrypt_email must look like an email address")
		}
	} else if cfg.HTTP.UseHTTPS {
		if strings.TrimSpace(cfg.TLS.CertFile) == "" || strings.TrimSpace(cfg.TLS.KeyFile) == "" {
			missing = append(missing, "GESTOR_CERT_FILE and GESTOR_KEY_FILE (or --cert_file/--key_file) for manual TLS")
		}
	}

	if cfg.RateLimitPerMinute <= 0 {
		invalid = append(invalid, "rate_limit_per_minute must be > 0")
	}
	if cfg.Supabase.RequestTimeout <= 0 {
		invalid = append(invalid, "request_timeout must be > 0")
	}

	if len(missing) == 0 && len(invalid) == 0 {
		return nil
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid: "+strings.Join(invalid, ", "))
	}
	return fmt.Errorf("configuration errors: %s", strings.Join(parts, " | "))
}
