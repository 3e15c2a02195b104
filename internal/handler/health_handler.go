package handlers

import (
	"net/http"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.HealthCheck(); err != nil {
		h.Log.Warn().Err(err).Msg("health check failed")
		WriteSuccess(w, HealthResponse{Status: "degraded", Database: "unreachable"}, http.StatusServiceUnavailable)
		return
	}
	WriteSuccess(w, HealthResponse{Status: "ok", Database: "ok"}, http.StatusOK)
}
