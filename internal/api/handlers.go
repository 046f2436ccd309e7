package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/domain"
	"github.com/user/listing-harvester/internal/storage"
)

// HarvestRequest is the payload for POST /api/harvest.
type HarvestRequest struct {
	Regions    []string `json:"regions"`
	Furnished  string   `json:"furnished"`
	FastMode   bool     `json:"fast_mode"`
	MaxWorkers int      `json:"max_workers"`
}

func (s *Server) handleHarvestRequest(w http.ResponseWriter, r *http.Request) {
	var req HarvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Regions) == 0 {
		s.respondWithError(w, http.StatusBadRequest, "Regions list cannot be empty")
		return
	}

	regions := make([]domain.Region, 0, len(req.Regions))
	for _, name := range req.Regions {
		region, ok := domain.ParseRegion(name)
		if !ok {
			s.respondWithError(w, http.StatusBadRequest, "Unknown region: "+name)
			return
		}
		regions = append(regions, region)
	}
	filter, ok := domain.ParseFilter(req.Furnished)
	if !ok {
		s.respondWithError(w, http.StatusBadRequest, "Invalid furnished filter: "+req.Furnished)
		return
	}
	if req.MaxWorkers <= 0 {
		req.MaxWorkers = s.config.MaxWorkers
	}

	run := &domain.RunStatus{
		ID:        uuid.NewString(),
		Status:    domain.StatusRunning,
		Regions:   regions,
		Filter:    filter,
		FastMode:  req.FastMode,
		StartedAt: time.Now().UTC(),
	}
	if err := s.runs.SaveRun(r.Context(), run); err != nil {
		s.logger.Error("failed to save run", zap.String("run_id", run.ID), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not register run")
		return
	}

	accepted := *run
	s.inflight.Add(1)
	go s.execute(run, req)

	s.respondWithJSON(w, http.StatusAccepted, accepted)
}

// execute runs a submitted harvest and records its outcome.
func (s *Server) execute(run *domain.RunStatus, req HarvestRequest) {
	defer s.inflight.Done()

	s.logger.Info("harvest started", zap.String("run_id", run.ID), zap.Strings("regions", req.Regions))
	pages, err := s.runner.RunMany(s.baseCtx, req.Regions, string(run.Filter), req.FastMode, req.MaxWorkers)

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Pages = pages
	run.Status = domain.StatusCompleted
	if err != nil {
		run.Status = domain.StatusFailed
		run.Error = err.Error()
		s.logger.Error("harvest failed", zap.String("run_id", run.ID), zap.Error(err))
	} else {
		s.logger.Info("harvest finished", zap.String("run_id", run.ID), zap.Any("successful_pages", pages))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.runs.SaveRun(ctx, run); err != nil {
		s.logger.Error("failed to save run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Run not found")
			return
		}
		s.logger.Error("failed to get run status", zap.String("run_id", id), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve status")
		return
	}
	s.respondWithJSON(w, http.StatusOK, run)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthStatus := map[string]string{"store": "healthy"}
	if err := s.runs.Ping(ctx); err != nil {
		healthStatus["store"] = "unhealthy"
		s.logger.Error("health check failed for run store", zap.Error(err))
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		code = http.StatusInternalServerError
		response = []byte(`{"error":"encoding failure"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
