package domain

// GovernorStats — сводные счетчики моста для дашборда консоли.
type GovernorStats struct {
	TotalEvaluations int64   `json:"total_evaluations"`
	Approvals        int64   `json:"approvals"`
	Rejections       int64   `json:"rejections"`
	HumanEscalations int64   `json:"human_escalations"`
	ThrottleEvents   int64   `json:"throttle_events"`
	BlockRate        float64 `json:"block_rate"`
}

// TrendPoint — одна точка истории агрессивности для графиков.
type TrendPoint struct {
	Timestamp string  `json:"timestamp"`
	Score     float64 `json:"score"`
	Level     string  `json:"level"`
}
