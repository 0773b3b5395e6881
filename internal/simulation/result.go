package simulation

import "time"

// RiskLevel — градация совокупного риска симуляции.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "SAFE"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Result — итог одной симуляции. Не персистится сам по себе:
// мост потребляет его сразу и при необходимости встраивает в запись журнала.
type Result struct {
	ActionType string    `json:"action_type"`
	Timestamp  time.Time `json:"timestamp"`

	// Четыре независимые оси риска, каждая в [0,1]
	IdentityRisk         float64 `json:"identity_risk"`
	PatternSimilarity    float64 `json:"pattern_similarity"`
	ShadowbanProbability float64 `json:"shadowban_probability"`
	CorrelationRisk      float64 `json:"correlation_risk"`

	// Оценки эффекта, каждая в [-1,1]
	EstimatedEngagement float64 `json:"estimated_engagement"`
	EstimatedReach      float64 `json:"estimated_reach"`
	EstimatedConversion float64 `json:"estimated_conversion"`

	TotalRiskScore float64   `json:"total_risk_score"`
	RiskLevel      RiskLevel `json:"risk_level"`
	ShouldProceed  bool      `json:"should_proceed"`

	Recommendations []string `json:"recommendations,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	Blockers        []string `json:"blockers,omitempty"`
}

// RecentAction — действие из недавней истории, поставляется вызывающей
// стороной в контексте под ключом "recent_actions".
type RecentAction struct {
	ActionType string    `json:"action_type"`
	Target     string    `json:"target"`
	Timestamp  time.Time `json:"timestamp"`
}

func riskLevelFor(total float64) RiskLevel {
	switch {
	case total < 0.20:
		return RiskSafe
	case total < 0.40:
		return RiskLow
	case total < 0.60:
		return RiskMedium
	case total < blockRiskThreshold:
		return RiskHigh
	default:
		return RiskCritical
	}
}
