package handler

import (
	"encoding/json"
	"net/http"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/console/service"
)

type MonitorHandler struct {
	service *service.GovernorService
}

func NewMonitorHandler(s *service.GovernorService) *MonitorHandler {
	return &MonitorHandler{service: s}
}

func (h *MonitorHandler) Aggressiveness(w http.ResponseWriter, r *http.Request) {
	trendN := queryInt(r.URL.Query().Get("trend"), 12)

	current, trend := h.service.Aggressiveness(trendN)

	resp := map[string]interface{}{
		"current": current,
		"trend":   trend,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *MonitorHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.service.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
