// Package handlers exposes the clinic-facing HTTP surface: clinician
// availability queries and live table views over websockets.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/emberhealth/clinicflow/internal/schedule"
	"github.com/emberhealth/clinicflow/pkg/logging"
)

// AvailabilityHandler serves "which clinicians are available" queries.
type AvailabilityHandler struct {
	svc    *schedule.Service
	logger *logging.Logger
}

// NewAvailabilityHandler wires the handler.
func NewAvailabilityHandler(svc *schedule.Service, logger *logging.Logger) *AvailabilityHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityHandler{svc: svc, logger: logger}
}

type availabilityResponse struct {
	AsOf      string             `json:"as_of"`
	Available []schedule.Profile `json:"available"`
}

// AvailableNow returns clinicians whose working window covers the current
// instant.
// GET /clinicians/available
// Query params:
//   - at: RFC3339 timestamp to evaluate instead of now (optional)
func (h *AvailabilityHandler) AvailableNow(w http.ResponseWriter, r *http.Request) {
	at := time.Now()
	if s := r.URL.Query().Get("at"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, `{"error": "invalid at time, use RFC3339 format"}`, http.StatusBadRequest)
			return
		}
		at = parsed
	}

	available, err := h.svc.AvailableAt(r.Context(), at)
	if err != nil {
		h.logger.Error("availability query failed", "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(availabilityResponse{
		AsOf:      at.Format(time.RFC3339),
		Available: available,
	}); err != nil {
		h.logger.Error("failed to encode availability response", "error", err)
	}
}
