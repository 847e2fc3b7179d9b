// Package server exposes the delivery journal as a read-only JSON API.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazz-dev/pingbot/internal/config"
	"github.com/hazz-dev/pingbot/internal/storage"
)

// JournalStore defines the journal queries the server needs.
type JournalStore interface {
	AllLatest(ctx context.Context) ([]storage.Entry, error)
	ServiceHistory(ctx context.Context, service string, limit, offset int) ([]storage.Entry, int, error)
}

// Server holds the chi router and its dependencies.
type Server struct {
	store    JournalStore
	services []config.Service
	router   chi.Router
	logger   *slog.Logger
}

// New creates a new Server and registers all routes.
func New(store JournalStore, services []config.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:    store,
		services: services,
		router:   chi.NewRouter(),
		logger:   logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/services", s.handleListServices)
	r.Get("/api/services/{name}/deliveries", s.handleDeliveries)
}

type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type serviceSummary struct {
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Host         string         `json:"host"`
	Enabled      bool           `json:"enabled"`
	LastDelivery *storage.Entry `json:"last_delivery"`
}

// handleListServices pairs every configured service with its most recent
// journal entry. Services that were never delivered have a null entry.
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	latest, err := s.store.AllLatest(r.Context())
	if err != nil {
		s.logger.Error("AllLatest", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	byService := make(map[string]storage.Entry, len(latest))
	for _, e := range latest {
		byService[e.Service] = e
	}

	out := make([]serviceSummary, 0, len(s.services))
	for _, svc := range s.services {
		sum := serviceSummary{
			Name:    svc.Name,
			Type:    string(svc.Type),
			Host:    svc.Host,
			Enabled: svc.Enabled,
		}
		if e, ok := byService[svc.Name]; ok {
			sum.LastDelivery = &e
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, out)
}

type deliveriesResponse struct {
	Deliveries []storage.Entry `json:"deliveries"`
	Total      int             `json:"total"`
}

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	const maxLimit = 1000

	limit := 50
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = min(n, maxLimit)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset parameter")
			return
		}
		offset = n
	}

	entries, total, err := s.store.ServiceHistory(r.Context(), name, limit, offset)
	if err != nil {
		s.logger.Error("ServiceHistory", "service", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if total == 0 {
		writeError(w, http.StatusNotFound, "no deliveries for service")
		return
	}
	if entries == nil {
		entries = []storage.Entry{}
	}

	writeJSON(w, http.StatusOK, deliveriesResponse{Deliveries: entries, Total: total})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
