package domain

import "time"

// Outcome — итоговый вердикт моста по запрошенному действию.
type Outcome string

const (
	OutcomeApproved      Outcome = "APPROVED"       // Действие разрешено
	OutcomeRejected      Outcome = "REJECTED"       // Симуляция показала неприемлемый риск
	OutcomeRequiresHuman Outcome = "REQUIRES_HUMAN" // Обязательный ручной апрув (HITL)
	OutcomeRequiresLLM   Outcome = "REQUIRES_LLM"   // Advisory-рецензия: действие идет, флаг поднят
	OutcomeThrottled     Outcome = "THROTTLED"      // Монитор агрессивности заблокировал без классификации
)

// Terminal сообщает, завершает ли вердикт обработку запроса.
// REQUIRES_LLM — единственный нетерминальный статус: действие одобрено,
// но параллельно отправляется на внешнее рецензирование.
func (o Outcome) Terminal() bool {
	return o != OutcomeRequiresLLM
}

// GovernanceEvaluation — эфемерный результат одного вызова EvaluateDecision.
// DecisionID заполнен, только если классификатор потребовал запись в журнал.
type GovernanceEvaluation struct {
	Outcome             Outcome  `json:"outcome"`
	ClassificationLevel string   `json:"classification_level"`
	Approved            bool     `json:"approved"`
	RiskScore           float64  `json:"risk_score"`
	ConfidenceScore     float64  `json:"confidence_score"`
	AggressivenessScore float64  `json:"aggressiveness_score"`
	Recommendations     []string `json:"recommendations,omitempty"`
	Warnings            []string `json:"warnings,omitempty"`
	Blockers            []string `json:"blockers,omitempty"`
	Narrative           string   `json:"narrative_explanation"`
	DecisionID          string   `json:"decision_id,omitempty"`
	EvaluationTimeMs    float64  `json:"evaluation_time_ms"`
}

// EvaluationRequest — входной контракт моста.
// Context — открытая мапа: распознаются estimated_risk, estimated_impact,
// accounts_affected, irreversible, financial_impact, account_id, inputs,
// confidence, expected_impact, validated_by и сигналы для симуляции рисков.
type EvaluationRequest struct {
	DecisionType string                 `json:"decision_type"`
	Actor        string                 `json:"actor"`
	Context      map[string]interface{} `json:"context"`
	Alternatives []string               `json:"alternatives,omitempty"`
	Chosen       string                 `json:"chosen,omitempty"`
	Reasoning    []string               `json:"reasoning,omitempty"`
}

// ExecutionReport — отчет вызывающей стороны о фактическом исполнении.
type ExecutionReport struct {
	Success bool                   `json:"success"`
	Result  map[string]interface{} `json:"result,omitempty"`
}

// ActionEvent — эфемерное событие для скользящих окон монитора.
type ActionEvent struct {
	ActionType string
	AccountID  string
	Timestamp  time.Time
}
