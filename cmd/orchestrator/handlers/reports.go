package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/gorilla/mux"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/storage"
)

// ReportHandler serves report files from the report store.
type ReportHandler struct {
	store  storage.BlobStorage
	logger logger.Logger
}

// NewReportHandler creates a new report handler.
func NewReportHandler(store storage.BlobStorage, log logger.Logger) *ReportHandler {
	return &ReportHandler{store: store, logger: log}
}

// List handles listing every stored report file.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.List(r.Context(), "")
	if err != nil {
		h.logger.Error(r.Context(), "failed to list reports", map[string]interface{}{
			"error": err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(keys, len(keys), len(keys), 0))
}

// Get handles downloading one report file. The route must capture the key as {key}.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		respondError(w, http.StatusBadRequest, "report path is required")
		return
	}

	reader, err := h.store.Download(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrFileNotFound):
			respondError(w, http.StatusNotFound, "report not found")
		case errors.Is(err, storage.ErrInvalidPath):
			respondError(w, http.StatusBadRequest, "invalid report path")
		default:
			h.logger.Error(r.Context(), "failed to download report", map[string]interface{}{
				"error": err.Error(),
				"key":   key,
			})
			respondError(w, http.StatusInternalServerError, "failed to download report")
		}
		return
	}
	defer reader.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Error(r.Context(), "failed to stream report", map[string]interface{}{
			"error": err.Error(),
			"key":   key,
		})
	}
}
