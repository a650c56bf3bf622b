package handlers

import (
	"net/http"
)

// HealthResponse reports liveness and which optional stores are wired.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	History string `json:"history,omitempty"`
}

// NewHealthHandler answers health checks for the report viewer and run API.
func NewHealthHandler(version string, historyEnabled bool) http.HandlerFunc {
	history := "disabled"
	if historyEnabled {
		history = "enabled"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: version, History: history})
	}
}
