// metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// reqDuration is a histogram of HTTP request durations in seconds, labeled
// by route pattern, method, and status code.
var reqDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: []float64{0.01, 0.1, 0.3, 1.2, 5},
	},
	[]string{"path", "method", "status"},
)

// upstreamDuration tracks outbound Supabase call latency by operation and
// upstream status.
var upstreamDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "supabase_request_duration_seconds",
		Help:    "Duration of outbound Supabase requests.",
		Buckets: []float64{0.01, 0.1, 0.3, 1.2, 5},
	},
	[]string{"operation", "status"},
)

// RegisterDefault registers the Go runtime and process collectors plus the
// request histograms. Intended to be called once at startup.
func RegisterDefault(logger *zap.Logger) {
	mustRegister(logger, "Go collector", collectors.NewGoCollector())
	mustRegister(logger, "process collector", collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mustRegister(logger, "HTTP request histogram", reqDuration)
	mustRegister(logger, "Supabase request histogram", upstreamDuration)
}

func mustRegister(logger *zap.Logger, name string, c prometheus.Collector) {
	if err := prometheus.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			// Re-registration happens in tests; it's fine.
			return
		}
		if logger != nil {
			logger.Fatal("failed to register "+name, zap.Error(err))
		} else {
			panic("metrics: failed to register " + name + ": " + err.Error())
		}
	}
}

// HTTPMetrics records request duration into http_request_duration_seconds.
// The chi route pattern (e.g., "/tasks/{id}") is used instead of the raw
// path to keep label cardinality bounded.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		protoMajor := r.ProtoMajor
		if protoMajor < 1 {
			protoMajor = 1
		}
		ww := middleware.NewWrapResponseWriter(w, protoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		// Status 0 means WriteHeader was never called: net/http reports 200.
		if status == 0 {
			status = http.StatusOK
		}
		if status < 100 || status > 599 {
			status = http.StatusInternalServerError
		}

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		reqDuration.WithLabelValues(path, r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// ObserveUpstream records one outbound Supabase call.
func ObserveUpstream(operation string, status int, elapsed time.Duration) {
	upstreamDuration.WithLabelValues(operation, strconv.Itoa(status)).
		Observe(elapsed.Seconds())
}

// Handler returns an http.Handler that exposes the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
