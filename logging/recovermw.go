// logging/recovermw.go
package logging

import (
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dalemusser/gestorbff/apperr"
	"github.com/dalemusser/gestorbff/requestid"
)

// Recoverer returns a middleware that recovers from panics, logs them with a
// stack trace, and renders the JSON error envelope with HTTP 500 if headers
// haven't been written yet. Internal details never reach the client.
func Recoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			protoMajor := r.ProtoMajor
			if protoMajor < 1 {
				protoMajor = 1
			}
			ww := middleware.NewWrapResponseWriter(w, protoMajor)

			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic_value", rec),
						zap.ByteString("stacktrace", debug.Stack()),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.String("request_id", requestid.Get(r.Context())),
					)

					// If headers are already sent the client gets an
					// incomplete response; the status can't change anymore.
					if ww.Status() == 0 {
						apperr.Write(w, r, apperr.Internal("Unexpected error"))
					} else {
						logger.Warn("panic occurred after headers written; response may be incomplete",
							zap.Int("status_already_sent", ww.Status()),
							zap.String("path", r.URL.Path))
					}
				}
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
