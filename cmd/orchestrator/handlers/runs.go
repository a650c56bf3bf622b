package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/history"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/report"
)

// ErrRunInProgress is returned by a Runner that is already running.
var ErrRunInProgress = errors.New("a run is already in progress")

// Runner starts a run in the background and returns its id.
type Runner interface {
	Start(ctx context.Context, kinds []report.TargetKind) (string, error)
}

// RunHandler serves recorded runs and starts new ones.
type RunHandler struct {
	store  history.Store
	runner Runner
	logger logger.Logger
}

// NewRunHandler creates a RunHandler. store or runner may be nil, in which case
// the matching endpoints answer 503.
func NewRunHandler(store history.Store, runner Runner, log logger.Logger) *RunHandler {
	return &RunHandler{store: store, runner: runner, logger: log}
}

// CreateRunRequest selects the targets of a new run.
type CreateRunRequest struct {
	Mode string `json:"mode"`
}

// CreateRunResponse identifies a started run.
type CreateRunResponse struct {
	RunID   string   `json:"runId"`
	Targets []string `json:"targets"`
}

// Create handles starting a run.
func (h *RunHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		respondError(w, http.StatusServiceUnavailable, "runs cannot be started from this server")
		return
	}

	var req CreateRunRequest
	if err := parseJSON(r, &req, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kinds, err := report.ParseTargets(req.Mode)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID, err := h.runner.Start(r.Context(), kinds)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error(r.Context(), "failed to start run", map[string]interface{}{
			"error": err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	targets := make([]string, len(kinds))
	for i, k := range kinds {
		targets[i] = string(k)
	}
	respondJSON(w, http.StatusAccepted, CreateRunResponse{RunID: runID, Targets: targets})
}

// List handles listing recorded runs with pagination.
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}

	limit, offset := parsePagination(r)
	runs, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error(r.Context(), "failed to list runs", map[string]interface{}{
			"error": err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(runs, len(runs), limit, offset))
}

// GetByID handles getting a single run with its targets and comparisons.
func (h *RunHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}

	id, ok := parseUUIDOrRespond(w, r, "id", "run")
	if !ok {
		return
	}

	run, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrRunNotFound) {
			respondError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error(r.Context(), "failed to get run", map[string]interface{}{
			"error":  err.Error(),
			"run_id": id,
		})
		respondError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	respondJSON(w, http.StatusOK, run)
}
