package handlers

//go:generate mockgen -source=report.go -destination=mock_report.go -package=handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sbilibin2017/user-bootstrap/internal/models"
)

// ReportGetter defines the interface that the service must implement.
type ReportGetter interface {
	LastReport() *models.Report
}

// ReportErrorResponse represents an error response when the report is unavailable
// swagger:model ReportErrorResponse
type ReportErrorResponse struct {
	// Error message
	// default: Bootstrap has not completed yet
	Error string `json:"error"`
}

// NewReportHandler returns an HTTP handler exposing the last bootstrap report.
// @Summary Get bootstrap report
// @Description Returns the indexes, collection stats and seed outcome of the last successful bootstrap run
// @Tags bootstrap
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Report "Last bootstrap report"
// @Failure 401 "Unauthorized"
// @Failure 403 "Subject lacks the ADMIN role"
// @Failure 500 "Role lookup failed"
// @Failure 503 {object} handlers.ReportErrorResponse "Bootstrap has not completed yet"
// @Router /report [get]
func NewReportHandler(svc ReportGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		report := svc.LastReport()
		if report == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(ReportErrorResponse{
				Error: "Bootstrap has not completed yet",
			})
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(report)
	}
}
