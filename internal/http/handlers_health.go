package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/okroshka/karmabot/internal/reconcile"
)

type healthResponse struct {
	Status  string                     `json:"status"`
	Breaker string                     `json:"breaker,omitempty"`
	Metrics *reconcile.MetricsSnapshot `json:"metrics,omitempty"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := healthResponse{Status: "ok"}
	if s.breakerState != nil {
		resp.Breaker = s.breakerState()
		if resp.Breaker == "open" {
			resp.Status = "degraded"
		}
	}
	if s.metrics != nil {
		snap := s.metrics.MetricsSnapshot()
		resp.Metrics = &snap
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
