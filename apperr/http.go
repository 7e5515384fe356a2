// apperr/http.go
package apperr

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/dalemusser/gestorbff/requestid"
)

// Envelope is the JSON error body returned by every endpoint. It is always
// fully populated; request_id carries the correlation id of the request that
// failed.
type Envelope struct {
	Detail    string `json:"detail"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// Write renders err as the uniform JSON error envelope. Unrecognized errors
// become internal_error with a fixed detail; the original error is never
// exposed to the client.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	e := From(err)
	writeEnvelope(w, r, e)
}

// WriteWithLogger is Write plus server-side logging of 5xx causes, keyed by
// the request's correlation id.
func WriteWithLogger(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	e := From(err)

	if logger != nil && e.HTTPStatus() >= 500 {
		logger.Error("request failed",
			zap.String("code", e.Code),
			zap.String("detail", e.Detail),
			zap.Int("status", e.HTTPStatus()),
			zap.String("request_id", requestid.Get(r.Context())),
			zap.Error(e.Err),
		)
	}

	writeEnvelope(w, r, e)
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, e *Error) {
	env := Envelope{
		Detail:    e.Detail,
		Code:      e.Code,
		RequestID: requestid.Get(r.Context()),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	_ = json.NewEncoder(w).Encode(env)
}

// NotFoundHandler returns a handler that renders a JSON 404 envelope. It is
// designed to be passed directly to chi.Router.NotFound(..).
func NotFoundHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if logger != nil {
			logger.Info("not_found",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
		}
		Write(w, r, NotFound("The requested resource was not found"))
	}
}

// MethodNotAllowedHandler returns a handler that renders a JSON 405 envelope.
func MethodNotAllowedHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if logger != nil {
			logger.Info("method_not_allowed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
		}
		Write(w, r, New("method_not_allowed", "The requested HTTP method is not allowed for this resource", http.StatusMethodNotAllowed))
	}
}
