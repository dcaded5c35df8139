package handlers

import (
	"encoding/json"
	"net/http"
)

// HealthResponse represents the readiness state
// swagger:model HealthResponse
type HealthResponse struct {
	// Readiness status
	// default: ok
	Status string `json:"status"`

	// Run id of the completed bootstrap
	RunID string `json:"runId,omitempty"`
}

// NewHealthHandler returns an HTTP handler reporting readiness.
// @Summary Readiness probe
// @Description Returns 200 once the bootstrap has completed, 503 before
// @Tags bootstrap
// @Produce json
// @Success 200 {object} handlers.HealthResponse "Bootstrap completed"
// @Failure 503 {object} handlers.HealthResponse "Bootstrap pending"
// @Router /healthz [get]
func NewHealthHandler(svc ReportGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		report := svc.LastReport()
		if report == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(HealthResponse{Status: "pending"})
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(HealthResponse{Status: "ok", RunID: report.RunID})
	}
}
