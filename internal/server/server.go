// Package server exposes the engine's external interface: the authenticated
// run trigger, run inspection endpoints, and metrics. The trigger is
// fire-and-forget — it creates the run row, launches the background task and
// returns the run id without waiting on completion.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/venuegrid/internal/engine/ingest"
	"github.com/rendis/venuegrid/internal/engine/storage"
	"github.com/rendis/venuegrid/internal/model"
)

// Trigger is the slice of the run coordinator the server needs.
type Trigger interface {
	Prepare(ctx context.Context, cfg model.RunConfig) (*ingest.PreparedRun, error)
	Launch(pr *ingest.PreparedRun)
}

type Server struct {
	store     *storage.Store
	runner    Trigger
	authToken string
	logger    *slog.Logger

	defaultStepKm   float64
	defaultRadiusKm float64
	defaultKeywords []string
}

type Options struct {
	AuthToken       string
	DefaultStepKm   float64
	DefaultRadiusKm float64
	DefaultKeywords []string
	Logger          *slog.Logger
}

func New(store *storage.Store, runner Trigger, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		store:           store,
		runner:          runner,
		authToken:       opts.AuthToken,
		logger:          opts.Logger,
		defaultStepKm:   opts.DefaultStepKm,
		defaultRadiusKm: opts.DefaultRadiusKm,
		defaultKeywords: opts.DefaultKeywords,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/runs", func(r chi.Router) {
		r.With(s.requireAuth).Post("/", s.handleTrigger)
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/venues", s.handleAuditTrail)
		r.With(s.requireAuth).Post("/{id}/pause", s.handlePause)
	})

	return r
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token != s.authToken {
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// triggerRequest is the trigger payload. Omitted step/radius/keywords take
// the configured defaults; an omitted provider means the configured one.
type triggerRequest struct {
	Provider string                 `json:"provider,omitempty"`
	Region   model.RegionDescriptor `json:"region"`
	StepKm   float64                `json:"step_km,omitempty"`
	RadiusKm float64                `json:"radius_km,omitempty"`
	Keywords []string               `json:"keywords,omitempty"`
	Enrich   bool                   `json:"enrich,omitempty"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	cfg := model.RunConfig{
		Provider: req.Provider,
		Region:   req.Region,
		StepKm:   req.StepKm,
		RadiusKm: req.RadiusKm,
		Keywords: req.Keywords,
		Enrich:   req.Enrich,
	}
	if cfg.StepKm == 0 {
		cfg.StepKm = s.defaultStepKm
	}
	if cfg.RadiusKm == 0 {
		cfg.RadiusKm = s.defaultRadiusKm
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = s.defaultKeywords
	}

	// Setup errors (bad region, missing credentials) surface synchronously;
	// everything after Launch is observable only through the run record.
	pr, err := s.runner.Prepare(r.Context(), cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.runner.Launch(pr)

	writeJSON(w, http.StatusAccepted, map[string]any{"run_id": pr.ID, "total_tiles": len(pr.Tiles)})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := s.store.RunByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	trail, err := s.store.AuditTrail(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if trail == nil {
		trail = []model.RunVenue{}
	}
	writeJSON(w, http.StatusOK, trail)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	if err := s.store.PauseRun(r.Context(), id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": model.RunPaused})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
