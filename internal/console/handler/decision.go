package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/console/service"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/domain"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/infra/auth"
)

// DecisionHandler обслуживает весь жизненный цикл решения:
// оценка, чтение, отчёт об исполнении и откат.
type DecisionHandler struct {
	service *service.GovernorService
	logger  *zap.Logger
}

func NewDecisionHandler(s *service.GovernorService, logger *zap.Logger) *DecisionHandler {
	return &DecisionHandler{service: s, logger: logger}
}

func (h *DecisionHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req domain.EvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	eval, err := h.service.Evaluate(r.Context(), req)
	if err != nil {
		h.logger.Error("Evaluation failed", zap.String("decision_type", req.DecisionType), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(eval)
}

func (h *DecisionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "decision id is required", http.StatusBadRequest)
		return
	}

	rec := h.service.GetDecision(id)
	if rec == nil {
		http.Error(w, "decision not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

func (h *DecisionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 50)

	records := h.service.RecentDecisions(q.Get("type"), q.Get("actor"), limit)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func (h *DecisionHandler) Critical(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r.URL.Query().Get("hours"), 24)

	records := h.service.CriticalDecisions(hours)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// Archive читает полную историю из Postgres, а не из горячего кэша.
func (h *DecisionHandler) Archive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 100)

	var from, to time.Time
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid 'from' timestamp, expected RFC3339", http.StatusBadRequest)
			return
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid 'to' timestamp, expected RFC3339", http.StatusBadRequest)
			return
		}
		to = t
	}

	records, err := h.service.ArchiveDecisions(r.Context(), q.Get("actor"), q.Get("type"), from, to, limit)
	if err != nil {
		h.logger.Error("Archive query failed", zap.Error(err))
		http.Error(w, "failed to fetch decision archive", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func (h *DecisionHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="decisions.csv"`)

	if err := h.service.ExportCSV(w); err != nil {
		h.logger.Error("CSV export failed", zap.Error(err))
	}
}

func (h *DecisionHandler) ReportExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "decision id is required", http.StatusBadRequest)
		return
	}

	var report domain.ExecutionReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if !h.service.ReportExecution(id, report) {
		http.Error(w, "decision not found or status transition not allowed", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"decision_id": id, "status": "recorded"})
}

func (h *DecisionHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "decision id is required", http.StatusBadRequest)
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Reason == "" {
		http.Error(w, "reason is required", http.StatusBadRequest)
		return
	}

	if !h.service.Reverse(id, body.Reason) {
		http.Error(w, "decision is not reversible or not found", http.StatusConflict)
		return
	}

	// Откат — ручная операция, фиксируем кто его запросил
	operator, _ := auth.UserIDFromContext(r.Context())
	h.logger.Info("decision reversed",
		zap.String("decision_id", id),
		zap.String("operator", operator),
		zap.String("reason", body.Reason))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"decision_id": id, "status": "reversed"})
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
