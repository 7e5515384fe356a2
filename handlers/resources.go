// handlers/resources.go
package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dalemusser/gestorbff/apperr"
	"github.com/dalemusser/gestorbff/httputil"
	"github.com/dalemusser/gestorbff/resource"
	"github.com/dalemusser/gestorbff/session"
)

// Resources serves the CRUD endpoints for one proxied collection. The same
// handler type backs /clients and /tasks; routes that the collection does not
// support (e.g., complete) are simply not mounted.
type Resources struct {
	svc     *resource.Service
	cookies *session.Manager
	logger  *zap.Logger
}

// NewResources builds the handler group for one collection.
func NewResources(svc *resource.Service, cookies *session.Manager, logger *zap.Logger) *Resources {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resources{svc: svc, cookies: cookies, logger: logger}
}

// Routes returns the chi router for this collection, to be mounted at
// /<collection>.
func (h *Resources) Routes() chi.Router {
	r := chi.NewRouter()
	// Mounted routers do not inherit the parent's JSON handlers.
	r.NotFound(apperr.NotFoundHandler(h.logger))
	r.MethodNotAllowed(apperr.MethodNotAllowedHandler(h.logger))

	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	if h.svc.Descriptor().TerminalStatus != "" {
		r.Post("/{id}/complete", h.complete)
	}
	return r
}

func (h *Resources) list(w http.ResponseWriter, r *http.Request) {
	token, err := h.cookies.Token(r)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}

	page, err := queryInt(r, "page", 1)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", resource.DefaultPageSize)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}

	q := r.URL.Query()
	filters := resource.Filters{
		Q:        q.Get("q"),
		Status:   q.Get("status"),
		DateFrom: firstOf(q, "due_from", "dueFrom"),
		DateTo:   firstOf(q, "due_to", "dueTo"),
	}

	result, err := h.svc.List(r.Context(), token, page, pageSize, filters)
	if err != nil {
		apperr.WriteWithLogger(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Resources) get(w http.ResponseWriter, r *http.Request) {
	token, err := h.cookies.Token(r)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}

	rec, err := h.svc.Get(r.Context(), token, chi.URLParam(r, "id"))
	if err != nil {
		apperr.WriteWithLogger(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Resources) create(w http.ResponseWriter, r *http.Request) {
	token, err := h.cookies.Token(r)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}

	var record map[string]any
	if err := httputil.BindJSON(r, &record); err != nil {
		apperr.Write(w, r, apperr.BadRequest(err.Error()))
		return
	}

	rec, err := h.svc.Create(r.Context(), token, record)
	if err != nil {
		apperr.WriteWithLogger(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

func (h *Resources) update(w http.ResponseWriter, r *http.Request) {
	token, err := h.cookies.Token(r)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}

	var record map[string]any
	if err := httputil.BindJSON(r, &record); err != nil {
		apperr.Write(w, r, apperr.BadRequest(err.Error()))
		return
	}
	if len(record) == 0 {
		apperr.Write(w, r, apperr.BadRequest("No fields to update"))
		return
	}

	rec, err := h.svc.Update(r.Context(), token, chi.URLParam(r, "id"), record)
	if err != nil {
		apperr.WriteWithLogger(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Resources) delete(w http.ResponseWriter, r *http.Request) {
	token, err := h.cookies.Token(r)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}

	if err := h.svc.Delete(r.Context(), token, chi.URLParam(r, "id")); err != nil {
		apperr.WriteWithLogger(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Resources) complete(w http.ResponseWriter, r *http.Request) {
	token, err := h.cookies.Token(r)
	if err != nil {
		apperr.Write(w, r, err)
		return
	}

	rec, err := h.svc.Complete(r.Context(), token, chi.URLParam(r, "id"))
	if err != nil {
		apperr.WriteWithLogger(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// queryInt parses an integer query parameter, defaulting when absent.
// Out-of-bounds values are left for the service to clamp; only non-integers
// are rejected.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.BadRequest(name + " must be an integer")
	}
	return n, nil
}

// firstOf returns the first non-empty value among the named query params.
// The camelCase names exist for compatibility with older frontend builds.
func firstOf(q url.Values, names ...string) string {
	for _, name := range names {
		if v := q.Get(name); v != "" {
			return v
		}
	}
	return ""
}
