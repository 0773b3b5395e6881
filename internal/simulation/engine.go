package simulation

/*
Файл engine.go реализует движок предварительной симуляции риска.
Перед исполнением действия движок оценивает четыре независимые оси риска
(идентичность, похожесть паттерна, вероятность shadowban, корреляция
аккаунтов) и три оси эффекта (вовлеченность, охват, конверсия), после чего
выносит вердикт "proceed / hold".

Скоринг детерминированный и объяснимый: накопительные вклады с потолками,
без ML. Никакого внешнего I/O — движок работает только с контекстом вызова
и собственной ограниченной историей.
*/

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/domain"
)

// Веса осей риска. Shadowban весит больше остальных: это единственная ось,
// которая ловит уже состоявшиеся санкции платформы.
const (
	weightIdentity    = 0.25
	weightPattern     = 0.25
	weightShadowban   = 0.30
	weightCorrelation = 0.20
)

// Пороги вердикта
const (
	blockRiskThreshold     = 0.75 // total_risk_score на пороге и выше — блок
	shadowbanHoldThreshold = 0.60 // вероятность shadowban, дающая безусловный HOLD
	historyCapacity        = 1000
)

// Базовый эффект по типам действий. Незнакомые типы считаются обычной публикацией.
var baseImpact = map[string]float64{
	"post_content":     0.30,
	"boost_post":       0.50,
	"launch_ab_test":   0.40,
	"activate_account": 0.30,
	"follow_campaign":  0.20,
	"publish_story":    0.25,
	"schedule_post":    0.20,
}

const defaultBaseImpact = 0.30

// Stats — служебные счетчики движка.
type Stats struct {
	TotalSimulations int64   `json:"total_simulations"`
	BlockedCount     int64   `json:"blocked_count"`
	BlockRate        float64 `json:"block_rate"`
	AvgProcessingMs  float64 `json:"avg_processing_ms"`
}

// Engine хранит ограниченную историю симуляций и сквозные счетчики.
// Состояние инстансное, за мьютексом — по экземпляру на каждый мост.
type Engine struct {
	mu sync.Mutex

	history          []Result
	totalSimulations int64
	blockedCount     int64
	avgProcessingMs  float64

	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		history: make([]Result, 0, 128),
		logger:  logger.Named("risk-simulation"),
	}
}

// Simulate оценивает предложенное действие по контексту вызова.
// Операция чисто вычислительная; ctx принят ради единообразия вызова
// из асинхронных обработчиков, точек приостановки внутри нет.
func (e *Engine) Simulate(ctx context.Context, actionType string, actionCtx map[string]interface{}) Result {
	start := time.Now()

	res := Result{
		ActionType: actionType,
		Timestamp:  start,
	}

	res.IdentityRisk = e.identityRisk(actionCtx, &res)
	res.PatternSimilarity = e.patternSimilarity(actionCtx, &res)
	res.ShadowbanProbability = e.shadowbanProbability(actionCtx, &res)
	res.CorrelationRisk = e.correlationRisk(actionCtx, &res)

	e.estimateImpact(actionType, actionCtx, &res)

	res.TotalRiskScore = clamp01(
		weightIdentity*res.IdentityRisk +
			weightPattern*res.PatternSimilarity +
			weightShadowban*res.ShadowbanProbability +
			weightCorrelation*res.CorrelationRisk,
	)
	res.RiskLevel = riskLevelFor(res.TotalRiskScore)

	// Вероятность shadowban дает самостоятельный HOLD независимо от агрегата
	if res.ShadowbanProbability >= shadowbanHoldThreshold {
		res.Blockers = append(res.Blockers,
			fmt.Sprintf("HOLD: shadowban probability %.0f%% — suspend activity on this account", res.ShadowbanProbability*100))
	}

	res.ShouldProceed = res.TotalRiskScore < blockRiskThreshold &&
		res.ShadowbanProbability < shadowbanHoldThreshold &&
		len(res.Blockers) == 0

	if !res.ShouldProceed {
		res.Recommendations = append(res.Recommendations,
			"reduce action frequency and re-simulate before retrying")
	}

	elapsedMs := float64(time.Since(start).Microseconds()) / 1000.0
	e.record(res, elapsedMs)

	if !res.ShouldProceed {
		e.logger.Warn("simulation blocked action",
			zap.String("action_type", actionType),
			zap.Float64("total_risk", res.TotalRiskScore),
			zap.Float64("shadowban", res.ShadowbanProbability),
		)
	}

	return res
}

// identityRisk: накопительные вклады от смен фингерпринта, IP/прокси,
// несоответствия user-agent и возраста аккаунта. Молодые аккаунты рискуют больше.
func (e *Engine) identityRisk(ctx map[string]interface{}, res *Result) float64 {
	risk := 0.0

	fpChanges := domain.CtxInt(ctx, "fingerprint_changes", 0)
	risk += math.Min(float64(fpChanges)*0.15, 0.40)

	ipChanges := domain.CtxInt(ctx, "ip_changes", 0) + domain.CtxInt(ctx, "proxy_changes", 0)
	risk += math.Min(float64(ipChanges)*0.10, 0.30)

	if domain.CtxBool(ctx, "user_agent_inconsistent", false) {
		risk += 0.20
		res.Warnings = append(res.Warnings, "user-agent inconsistency detected")
	}

	switch age := domain.CtxFloat(ctx, "account_age_days", 365); {
	case age < 7:
		risk += 0.30
		res.Recommendations = append(res.Recommendations, "warm up the account before automated activity")
	case age < 30:
		risk += 0.20
	case age < 90:
		risk += 0.10
	}

	return clamp01(risk)
}

// patternSimilarity: сравнение с недавними действиями, поставленными вызывающей
// стороной. Ловим однообразие типов, механически ровный тайминг и узкий круг целей.
func (e *Engine) patternSimilarity(ctx map[string]interface{}, res *Result) float64 {
	recent := recentActions(ctx)
	if len(recent) < 3 {
		return 0
	}

	risk := 0.0

	// Доминирование одного типа действия
	freq := make(map[string]int, 4)
	for _, a := range recent {
		freq[a.ActionType]++
	}
	for actionType, n := range freq {
		if float64(n)/float64(len(recent)) > 0.5 {
			risk += 0.35
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("action type %q dominates recent history", actionType))
			break
		}
	}

	// Механически ровный тайминг: низкий коэффициент вариации интервалов
	if cv, ok := intervalCV(recent); ok {
		switch {
		case cv < 0.15:
			risk += 0.40
			res.Warnings = append(res.Warnings, "near-constant action intervals look scripted")
		case cv < 0.30:
			risk += 0.20
		}
	}

	// Узкий круг целей
	targets := make(map[string]struct{}, len(recent))
	for _, a := range recent {
		if a.Target != "" {
			targets[a.Target] = struct{}{}
		}
	}
	if len(targets) > 0 {
		uniqueRatio := float64(len(targets)) / float64(len(recent))
		if uniqueRatio < 0.3 {
			risk += 0.30
			res.Recommendations = append(res.Recommendations, "diversify action targets")
		}
	}

	return clamp01(risk)
}

// shadowbanProbability: накопление сигналов уже действующих санкций платформы.
func (e *Engine) shadowbanProbability(ctx map[string]interface{}, res *Result) float64 {
	prob := 0.0

	switch drop := domain.CtxFloat(ctx, "reach_drop_pct", 0); {
	case drop > 50:
		prob += 0.40
		res.Warnings = append(res.Warnings, fmt.Sprintf("reach dropped %.0f%% over 7 days", drop))
	case drop > 30:
		prob += 0.25
	case drop > 15:
		prob += 0.10
	}

	switch rate := domain.CtxFloat(ctx, "engagement_rate", 0.05); {
	case rate < 0.01:
		prob += 0.20
	case rate < 0.02:
		prob += 0.10
	}

	reports := domain.CtxInt(ctx, "content_reports", 0)
	prob += math.Min(float64(reports)*0.10, 0.30)

	violations := domain.CtxInt(ctx, "policy_violations", 0)
	prob += math.Min(float64(violations)*0.15, 0.30)

	signals := domain.CtxStrings(ctx, "shadowban_signals")
	prob += math.Min(float64(len(signals))*0.15, 0.45)
	for _, sig := range signals {
		res.Warnings = append(res.Warnings, "shadowban signal: "+sig)
	}

	return clamp01(prob)
}

// correlationRisk: насколько активность выдает связность аккаунтов.
func (e *Engine) correlationRisk(ctx map[string]interface{}, res *Result) float64 {
	risk := 0.0

	switch n := domain.CtxInt(ctx, "concurrent_accounts", 1); {
	case n > 10:
		risk += 0.30
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d accounts acting concurrently", n))
	case n > 5:
		risk += 0.20
	case n > 2:
		risk += 0.10
	}

	sharedIP := domain.CtxInt(ctx, "shared_ip_accounts", 0)
	risk += math.Min(float64(sharedIP)*0.10, 0.30)

	risk += clamp01(domain.CtxFloat(ctx, "content_similarity", 0)) * 0.30
	risk += clamp01(domain.CtxFloat(ctx, "timing_correlation", 0)) * 0.30

	if risk > 0.5 {
		res.Recommendations = append(res.Recommendations,
			"desynchronize account schedules and vary content per account")
	}

	return clamp01(risk)
}

// estimateImpact: базовый эффект типа действия, модулированный средним трех
// качественных оценок контекста. Охват — 0.8 от вовлеченности, конверсия —
// вовлеченность, умноженная на силу воронки.
func (e *Engine) estimateImpact(actionType string, ctx map[string]interface{}, res *Result) {
	base, ok := baseImpact[actionType]
	if !ok {
		base = defaultBaseImpact
	}

	quality := (domain.CtxFloat(ctx, "content_quality", 0.5) +
		domain.CtxFloat(ctx, "timing_score", 0.5) +
		domain.CtxFloat(ctx, "audience_match", 0.5)) / 3

	engagement := clampSigned(base * quality * 2)
	res.EstimatedEngagement = engagement
	res.EstimatedReach = clampSigned(engagement * 0.8)
	res.EstimatedConversion = clampSigned(engagement * domain.CtxFloat(ctx, "funnel_strength", 0.5))
}

// record дописывает результат в кольцевую историю и обновляет счетчики.
func (e *Engine) record(res Result, elapsedMs float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, res)
	if len(e.history) > historyCapacity {
		e.history = e.history[len(e.history)-historyCapacity:]
	}

	e.totalSimulations++
	if !res.ShouldProceed {
		e.blockedCount++
	}

	// Скользящее среднее времени обработки
	n := float64(e.totalSimulations)
	e.avgProcessingMs += (elapsedMs - e.avgProcessingMs) / n
}

// History возвращает последние n результатов.
func (e *Engine) History(n int) []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n <= 0 || n > len(e.history) {
		n = len(e.history)
	}
	out := make([]Result, n)
	copy(out, e.history[len(e.history)-n:])
	return out
}

// Stats — снимок сквозных счетчиков.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		TotalSimulations: e.totalSimulations,
		BlockedCount:     e.blockedCount,
		AvgProcessingMs:  e.avgProcessingMs,
	}
	if e.totalSimulations > 0 {
		s.BlockRate = float64(e.blockedCount) / float64(e.totalSimulations)
	}
	return s
}

// recentActions разбирает "recent_actions" из контекста: либо типизированный
// срез (вызов из кода), либо []interface{} мап (вызов через JSON API).
func recentActions(ctx map[string]interface{}) []RecentAction {
	if ctx == nil {
		return nil
	}
	switch v := ctx["recent_actions"].(type) {
	case []RecentAction:
		return v
	case []interface{}:
		out := make([]RecentAction, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			ra := RecentAction{
				ActionType: domain.CtxString(m, "action_type", ""),
				Target:     domain.CtxString(m, "target", ""),
			}
			if raw := domain.CtxString(m, "timestamp", ""); raw != "" {
				if ts, err := time.Parse(time.RFC3339, raw); err == nil {
					ra.Timestamp = ts
				}
			}
			out = append(out, ra)
		}
		return out
	default:
		return nil
	}
}

// intervalCV — коэффициент вариации интервалов недавних действий.
// ok=false при статистическом вырождении (мало точек или нулевое среднее).
func intervalCV(recent []RecentAction) (float64, bool) {
	if len(recent) < 3 {
		return 0, false
	}

	intervals := make([]float64, 0, len(recent)-1)
	for i := 1; i < len(recent); i++ {
		if recent[i].Timestamp.IsZero() || recent[i-1].Timestamp.IsZero() {
			return 0, false
		}
		intervals = append(intervals, math.Abs(recent[i].Timestamp.Sub(recent[i-1].Timestamp).Seconds()))
	}

	var mean float64
	for _, v := range intervals {
		mean += v
	}
	mean /= float64(len(intervals))
	if mean <= 0 {
		return 0, false
	}

	var variance float64
	for _, v := range intervals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(intervals))

	return math.Sqrt(variance) / mean, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
