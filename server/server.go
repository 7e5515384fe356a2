// server/server.go
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/acme/autocert"

	"github.com/dalemusser/gestorbff/config"
)

// WithShutdownSignals returns a context canceled on SIGINT or SIGTERM.
// Pass it to ListenAndServeWithContext so signals become graceful shutdown.
func WithShutdownSignals(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			if logger != nil {
				logger.Info("shutdown signal received", zap.Any("signal", sig))
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// ListenAndServeWithContext serves handler over plain HTTP, manual TLS, or
// Let's Encrypt (http-01), depending on cfg, and blocks until ctx is canceled
// or a server fails. In the TLS modes a second server on :80 answers ACME
// challenges and redirects everything else to HTTPS.
func ListenAndServeWithContext(
	ctx context.Context,
	cfg *config.Config,
	handler http.Handler,
	logger *zap.Logger,
) error {
	if cfg == nil {
		return fmt.Errorf("ListenAndServeWithContext: cfg is nil")
	}
	if handler == nil {
		return fmt.Errorf("ListenAndServeWithContext: handler is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := newServer(cfg, handler, logger)

	var (
		aux      *http.Server
		ln       net.Listener
		tcpLn    net.Listener // for cleanup; ln may wrap it with TLS
		serveErr = make(chan error, 1)
		auxErr   chan error // nil in HTTP mode; a nil channel never fires
	)

	if !cfg.HTTP.UseHTTPS {
		var err error
		tcpLn, err = net.Listen("tcp", ":"+strconv.Itoa(cfg.HTTP.HTTPPort))
		if err != nil {
			return fmt.Errorf("listen http: %w", err)
		}
		ln = tcpLn
		logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
	} else {
		tlsCfg, auxHandler, err := tlsSetup(ctx, cfg, logger)
		if err != nil {
			return err
		}

		aux = newServer(cfg, auxHandler, logger)
		aux.Addr = ":80"
		auxErr = make(chan error, 1)
		go func() { auxErr <- ignoreClosed(aux.ListenAndServe()) }()
		logger.Info("redirect/ACME server listening", zap.String("addr", aux.Addr))

		srv.TLSConfig = tlsCfg
		tcpLn, err = net.Listen("tcp", ":"+strconv.Itoa(cfg.HTTP.HTTPSPort))
		if err != nil {
			_ = aux.Shutdown(context.Background())
			return fmt.Errorf("listen https: %w", err)
		}
		ln = tls.NewListener(tcpLn, tlsCfg)
		logger.Info("HTTPS server listening",
			zap.String("addr", tcpLn.Addr().String()),
			zap.Bool("lets_encrypt", cfg.TLS.UseLetsEncrypt))
	}

	go func() { serveErr <- ignoreClosed(srv.Serve(ln)) }()

	stopAux := func(ctx context.Context) {
		if aux != nil {
			_ = aux.Shutdown(ctx)
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down server")
			// Fresh context: the shutdown window must outlive the canceled ctx.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			stopAux(shutdownCtx)
			err := srv.Shutdown(shutdownCtx)
			_ = tcpLn.Close()
			if err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			logger.Info("server stopped gracefully")
			return nil

		case err := <-serveErr:
			stopAux(context.Background())
			_ = tcpLn.Close()
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil

		case err := <-auxErr:
			if err != nil {
				_ = srv.Close()
				_ = tcpLn.Close()
				return fmt.Errorf("redirect server error: %w", err)
			}
			// Clean stop; keep waiting on the primary.
			aux = nil
			auxErr = nil
		}
	}
}

func newServer(cfg *config.Config, handler http.Handler, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Handler:           handler,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	if stdlog, err := zap.NewStdLogAt(logger, zapcore.WarnLevel); err == nil {
		srv.ErrorLog = stdlog
	}
	return srv
}

func ignoreClosed(err error) error {
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// tlsSetup returns the TLS config for the primary server and the handler for
// the :80 auxiliary server, for either the Let's Encrypt or manual cert mode.
func tlsSetup(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*tls.Config, http.Handler, error) {
	if cfg.TLS.UseLetsEncrypt {
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.TLS.Domain),
			Cache:      autocert.DirCache(cfg.TLS.LetsEncryptCacheDir),
			Email:      cfg.TLS.LetsEncryptEmail,
		}
		tlsCfg := &tls.Config{
			MinVersion:     tls.VersionTLS12,
			GetCertificate: m.GetCertificate,
		}
		// Warm the cache so the first HTTPS request doesn't stall on issuance.
		if err := waitForCert(ctx, m, cfg.TLS.Domain, 60*time.Second); err != nil {
			logger.Warn("certificate pre-warm failed; first HTTPS hits may see TLS errors", zap.Error(err))
		}
		return tlsCfg, m.HTTPHandler(redirectHandler()), nil
	}

	if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
		return nil, nil, fmt.Errorf("manual TLS selected but cert_file / key_file not provided")
	}
	if err := checkKeyPermissions(cfg.TLS.CertFile, cfg.TLS.KeyFile); err != nil {
		if cfg.Env == "prod" {
			return nil, nil, err
		}
		logger.Warn("TLS key file check failed (would block in prod)", zap.Error(err))
	}
	cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load TLS cert/key: %w", err)
	}
	tlsCfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}
	return tlsCfg, redirectHandler(), nil
}

// redirectHandler sends plain-HTTP requests to the HTTPS equivalent, refusing
// hosts and URIs that could smuggle headers into the Location value.
func redirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uri := r.URL.RequestURI()
		if !validRedirectHost(r.Host) || hasControlChars(uri) {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, "https://"+r.Host+uri, http.StatusMovedPermanently)
	})
}

func hasControlChars(s string) bool {
	for _, c := range s {
		if (c < 0x20 && c != '\t') || c == 0x7f {
			return true
		}
	}
	return false
}

func validRedirectHost(host string) bool {
	if host == "" || strings.Contains(host, "://") || strings.HasPrefix(host, "/") {
		return false
	}

	name := host
	if h, p, err := net.SplitHostPort(host); err == nil {
		name = h
		if n, err := strconv.Atoi(p); err != nil || n <= 0 || n > 65535 {
			return false
		}
	}
	if name == "" {
		return false
	}

	// Bracketed IPv6, possibly with a zone id ("fe80::1%eth0").
	if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") && len(name) >= 3 {
		ip := strings.TrimSuffix(strings.TrimPrefix(name, "["), "]")
		if i := strings.IndexByte(ip, '%'); i >= 0 {
			ip = ip[:i]
		}
		if net.ParseIP(ip) == nil {
			return false
		}
	}

	return !hasControlChars(name) && !strings.ContainsAny(name, "\t")
}

// checkKeyPermissions verifies both TLS files are regular files and the key
// is not group/world readable.
func checkKeyPermissions(certFile, keyFile string) error {
	for _, f := range []string{certFile, keyFile} {
		info, err := os.Stat(f)
		if err != nil {
			return fmt.Errorf("cannot access TLS file %s: %w", f, err)
		}
		if info.IsDir() {
			return fmt.Errorf("TLS path is a directory, not a file: %s", f)
		}
	}

	// Permission bits mean nothing on Windows.
	if runtime.GOOS != "windows" {
		info, err := os.Stat(keyFile)
		if err != nil {
			return err
		}
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			return fmt.Errorf("TLS key file %s has overly permissive permissions %o (recommended: 0600)", keyFile, perm)
		}
	}
	return nil
}

// waitForCert polls autocert until a certificate for host is available, the
// timeout elapses, or ctx is canceled.
func waitForCert(ctx context.Context, m *autocert.Manager, host string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for {
		_, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: host})
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for cert for %q: %w", host, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
