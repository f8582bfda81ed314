// Package api serves snapshots over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vulnverified/posture/internal/engine"
	"github.com/vulnverified/posture/internal/hostname"
	"github.com/vulnverified/posture/internal/store"
)

const maxRequestBody = 1 << 20

// RunFunc collects a snapshot for a domain.
type RunFunc func(ctx context.Context, domain string) (*engine.Snapshot, error)

// Archive stores and retrieves snapshots.
type Archive interface {
	SaveSnapshot(ctx context.Context, s *engine.Snapshot) error
	LatestSnapshot(ctx context.Context, domain string) (*engine.Snapshot, error)
}

type Server struct {
	run     RunFunc
	archive Archive
	logger  *zap.Logger
}

func New(run RunFunc, archive Archive, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{run: run, archive: archive, logger: logger}
}

type snapshotRequest struct {
	Domain string `json:"domain"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Routes returns the router with request-id, panic recovery and request logging.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Route("/v1/snapshots", func(r chi.Router) {
		r.Post("/", s.createSnapshot)
		r.Get("/{domain}", s.latestSnapshot)
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createSnapshot runs a collection synchronously and archives the result.
// An archive failure is logged; the caller still gets the snapshot.
func (s *Server) createSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	domain := hostname.Normalize(req.Domain)
	if domain == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "domain is required"})
		return
	}

	snap, err := s.run(r.Context(), domain)
	if err != nil {
		s.logger.Error("snapshot failed", zap.String("domain", domain), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	if s.archive != nil {
		if err := s.archive.SaveSnapshot(r.Context(), snap); err != nil {
			s.logger.Warn("archive snapshot", zap.String("domain", domain), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) latestSnapshot(w http.ResponseWriter, r *http.Request) {
	domain := hostname.Normalize(chi.URLParam(r, "domain"))
	if s.archive == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no archive configured"})
		return
	}
	snap, err := s.archive.LatestSnapshot(r.Context(), domain)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no snapshot for " + domain})
		return
	}
	if err != nil {
		s.logger.Error("load snapshot", zap.String("domain", domain), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "archive unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
