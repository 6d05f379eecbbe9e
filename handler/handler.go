// Package handler provides the HTTP handlers for the user server.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stevemurr/simple-user-server/store"
)

const (
	msgNotFound     = "Not Found"
	msgUserNotFound = "User not found"
	msgInvalidJSON  = "Invalid JSON"
	msgInternal     = "Internal Server Error"
)

// UserStore is the collection the handlers serve. *store.Users implements it.
type UserStore interface {
	Filter(keep func(store.Record) bool) []store.Record
	Find(id int) (store.Record, bool)
	Create(payload store.Record) store.Record
	Upsert(id int, payload store.Record) (store.Record, bool)
	Patch(id int, payload store.Record) (store.Record, error)
	Delete(id int) error
}

// Handler holds the server dependencies and registers routes.
type Handler struct {
	users  UserStore
	router chi.Router
}

// Option configures a Handler.
type Option func(*options)

type options struct {
	middlewares    []func(http.Handler) http.Handler
	allowedOrigins []string
}

// WithMiddleware appends middlewares to the stack, after request logging and
// before panic recovery.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(o *options) {
		o.middlewares = append(o.middlewares, mw...)
	}
}

// WithAllowedOrigins enables CORS for the given origins. "*" allows any.
func WithAllowedOrigins(origins []string) Option {
	return func(o *options) {
		o.allowedOrigins = origins
	}
}

// New creates a Handler and wires up all routes.
func New(users UserStore, opts ...Option) *Handler {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	h := &Handler{users: users, router: chi.NewRouter()}

	h.router.Use(normalizePath)
	h.router.Use(middleware.RequestID)
	h.router.Use(middleware.RealIP)
	h.router.Use(requestLogger)
	if len(o.allowedOrigins) > 0 {
		h.router.Use(cors(o.allowedOrigins))
	}
	h.router.Use(o.middlewares...)
	h.router.Use(middleware.Recoverer)

	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.router.Get("/users", h.listUsers)
	h.router.Post("/users", h.createUser)
	h.router.Get("/users/{id}", h.getUser)
	h.router.Put("/users/{id}", h.upsertUser)
	h.router.Patch("/users/{id}", h.patchUser)
	h.router.Delete("/users/{id}", h.deleteUser)

	// Unknown paths and known paths with the wrong method look the same.
	h.router.NotFound(notFound)
	h.router.MethodNotAllowed(notFound)
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusNotFound, msgNotFound)
}
