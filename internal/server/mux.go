// internal/server/mux.go
// Package server implements the HTTP handlers and routing for the tracker
// service. It exposes the record catalog, metadata lookups, cover uploads,
// batch operations and preferences as a JSON API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vannputh/analytics/internal/auth"
	"github.com/vannputh/analytics/internal/batch"
	"github.com/vannputh/analytics/internal/catalog"
	errordefs "github.com/vannputh/analytics/internal/errors"
	"github.com/vannputh/analytics/internal/filter"
	"github.com/vannputh/analytics/internal/media"
	"github.com/vannputh/analytics/internal/metadata"
	"github.com/vannputh/analytics/internal/metrics"
	"github.com/vannputh/analytics/internal/schema"
	"github.com/vannputh/analytics/internal/storage"
)

// ContextKey is used for context values to avoid collisions
// when storing values in request context
type ContextKey string

const (
	// ContextKeyUser stores the authenticated subject
	ContextKeyUser ContextKey = "user"

	// DefaultUser owns preferences when auth is disabled
	DefaultUser = "default"

	// Default limits for list operations
	DefaultListLimit = 100  // Default number of records to return
	MaxListLimit     = 1000 // Maximum number of records to return
)

// Deps are the collaborators a Mux serves. Fetcher, Uploader and Verifier
// are optional: without them metadata and cover routes answer 503 and auth
// is disabled.
type Deps struct {
	Store    storage.Store
	Catalog  *catalog.Service
	Batch    *batch.Runner
	Fetcher  metadata.Fetcher
	Uploader media.Uploader
	Verifier *auth.Verifier
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	// Cover limits
	MaxCoverSize      int64
	AllowedImageTypes []string

	// CORS configuration
	CORSAllowedOrigins []string // Allowed origins for CORS (empty means deny all)
}

// Mux handles HTTP requests for the tracker service.
type Mux struct {
	router chi.Router
	deps   Deps
	logger *slog.Logger
}

// NewMux creates the HTTP handler with every tracker endpoint registered.
func NewMux(d Deps) *Mux {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewMetrics()
	}
	m := &Mux{router: chi.NewRouter(), deps: d, logger: d.Logger}

	r := m.router
	r.Use(middleware.Recoverer)
	r.Use(m.correlation)
	r.Use(m.cors)
	r.Use(m.instrument)

	// Health endpoints
	r.Get("/healthz", m.handleHealthz)
	r.Get("/readyz", m.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/records", m.handleListRecords)
		r.Get("/records/{id}", m.handleGetRecord)
		r.Get("/records/{id}/history", m.handleHistory)
		r.Get("/filter-options", m.handleFilterOptions)
		r.Get("/analytics/summary", m.handleSummary)

		// Mutations and per-user state require a token when auth is enabled
		r.Group(func(r chi.Router) {
			r.Use(m.authenticate)

			r.Post("/records", m.handleCreateRecord)
			r.Patch("/records/{id}", m.handleUpdateRecord)
			r.Delete("/records/{id}", m.handleDeleteRecord)

			r.Post("/metadata/lookup", m.handleLookup)
			r.Post("/records/{id}/metadata/preview", m.handlePreviewMetadata)
			r.Post("/records/{id}/metadata/apply", m.handleApplyMetadata)

			r.Post("/covers", m.handleUploadCover)

			r.Post("/batch/metadata", m.handleBatchMetadata)
			r.Post("/batch/update", m.handleBatchUpdate)

			r.Get("/preferences", m.handleGetPreferences)
			r.Put("/preferences", m.handlePutPreferences)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		m.writeErrorDef(w, r, errordefs.New(errordefs.TRACKER_NOT_FOUND, "route not found", ""))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		m.writeErrorDef(w, r, errordefs.New(errordefs.TRACKER_BAD_REQUEST, "method not allowed", ""))
	})

	return m
}

// ServeHTTP implements http.Handler.
func (m *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

// handleHealthz handles liveness health check requests
func (m *Mux) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz reports whether the store answers.
func (m *Mux) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := m.deps.Store.Ping(ctx); err != nil {
		m.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// toErrorDef maps collaborator errors onto the error taxonomy.
func toErrorDef(err error) *errordefs.Error {
	var (
		def   *errordefs.Error
		ve    *schema.ValidationError
		fe    *metadata.FetchError
		pe    *catalog.PersistenceError
		maxed *http.MaxBytesError
	)
	switch {
	case errors.As(err, &def):
		return def
	case errors.As(err, &ve):
		return errordefs.Validation(ve.Fields)
	case errors.As(err, &fe):
		return errordefs.New(errordefs.TRACKER_FETCH, fe.Error(), "")
	case errors.As(err, &maxed):
		return errordefs.New(errordefs.TRACKER_MEDIA_SIZE, "request body too large", "")
	case errors.Is(err, storage.ErrNotFound):
		return errordefs.New(errordefs.TRACKER_NOT_FOUND, "record not found", "")
	case errors.Is(err, storage.ErrConflict):
		return errordefs.New(errordefs.TRACKER_CONFLICT, "record already exists", "")
	case errors.Is(err, filter.ErrInvalidQuery), errors.Is(err, batch.ErrEmptyPatch):
		return errordefs.New(errordefs.TRACKER_VALIDATION, err.Error(), "")
	case errors.As(err, &pe):
		return errordefs.New(errordefs.TRACKER_PERSISTENCE, pe.Error(), "")
	default:
		return errordefs.New(errordefs.TRACKER_INTERNAL, "internal error", "")
	}
}
