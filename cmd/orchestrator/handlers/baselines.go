package handlers

import (
	"context"
	"net/http"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/baseline"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
)

// BaselineLister lists stored baselines.
type BaselineLister interface {
	List(ctx context.Context) ([]baseline.Entry, error)
}

// BaselineHandler serves the stored baselines.
type BaselineHandler struct {
	baselines BaselineLister
	logger    logger.Logger
}

// NewBaselineHandler creates a new baseline handler.
func NewBaselineHandler(baselines BaselineLister, log logger.Logger) *BaselineHandler {
	return &BaselineHandler{baselines: baselines, logger: log}
}

// List handles listing every baseline.
func (h *BaselineHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.baselines.List(r.Context())
	if err != nil {
		h.logger.Error(r.Context(), "failed to list baselines", map[string]interface{}{
			"error": err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "failed to list baselines")
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(entries, len(entries), len(entries), 0))
}
