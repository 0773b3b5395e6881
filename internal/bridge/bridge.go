package bridge

/*
Файл bridge.go — оркестратор governance-конвейера. Единая точка входа
EvaluateDecision, которую вызывающая сторона обязана пройти перед
исполнением любого автоматического действия.

Последовательность (каждый шаг может завершить обработку терминальным
вердиктом):

  [start] -> оценка агрессивности -> {THROTTLED}
          -> классификация -> {симуляция?}
          -> {REJECTED | REQUIRES_HUMAN | REQUIRES_LLM | APPROVED}
          -> запись в журнал (если требуется) -> нарратив -> возврат

Бизнес-исходы всегда выражаются значением, не ошибкой; ошибкой наружу
уходит только инфраструктурный сбой записи в журнал — для аудиторского
следа решения он фатален, и решать, исполнять ли действие без следа,
должен вызывающий.
*/

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/classifier"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/domain"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/infra"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/ledger"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/monitor"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/simulation"
)

// CooldownNotifier транслирует cooldown другим инстансам (Redis Pub/Sub).
// Необязателен: nil означает одноинстансный режим.
type CooldownNotifier interface {
	Publish(ctx context.Context, until time.Time) error
}

// Соответствие типов решений действиям симуляции. Незнакомые типы
// симулируются как обычная публикация контента.
var simulationActions = map[string]string{
	"content_boost":      "boost_post",
	"post_content":       "post_content",
	"account_activation": "activate_account",
	"ab_test_launch":     "launch_ab_test",
	"follow_campaign":    "follow_campaign",
	"story_publish":      "publish_story",
	"schedule_post":      "schedule_post",
}

const defaultSimulationAction = "post_content"

// Bridge владеет собственными экземплярами всех четырех компонент конвейера.
type Bridge struct {
	monitor    *monitor.Monitor
	classifier *classifier.Classifier
	engine     *simulation.Engine
	ledger     *ledger.Ledger

	validator simulation.Validator // advisory-рецензент, необязателен
	cooldown  CooldownNotifier     // трансляция пауз, необязательна

	cfg     infra.GovernorConfig
	metrics *Metrics
	logger  *zap.Logger

	statsMu sync.Mutex
	stats   statsCounters
}

type statsCounters struct {
	total      int64
	approvals  int64
	rejections int64
	humans     int64
	throttles  int64
}

func NewBridge(
	cfg infra.GovernorConfig,
	mon *monitor.Monitor,
	cls *classifier.Classifier,
	eng *simulation.Engine,
	led *ledger.Ledger,
	metrics *Metrics,
	logger *zap.Logger,
) *Bridge {
	if cfg.DefaultRisk <= 0 {
		cfg.DefaultRisk = 0.3
	}
	if cfg.DefaultImpact <= 0 {
		cfg.DefaultImpact = 0.2
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	// Журналу нужен набор критических типов для фильтра CriticalDecisions
	led.SetCriticalTypes(cls.AlwaysCriticalTypes())

	return &Bridge{
		monitor:    mon,
		classifier: cls,
		engine:     eng,
		ledger:     led,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger.Named("governance-bridge"),
	}
}

// SetValidator подключает внешнего advisory-рецензента (LLM review).
func (b *Bridge) SetValidator(v simulation.Validator) { b.validator = v }

// SetCooldownNotifier подключает трансляцию cooldown между инстансами.
func (b *Bridge) SetCooldownNotifier(n CooldownNotifier) { b.cooldown = n }

// Monitor отдает монитор агрессивности (для консоли и фоновых событий).
func (b *Bridge) Monitor() *monitor.Monitor { return b.monitor }

// Ledger отдает журнал решений (для консоли).
func (b *Bridge) Ledger() *ledger.Ledger { return b.ledger }

// Engine отдает движок симуляции (для консоли).
func (b *Bridge) Engine() *simulation.Engine { return b.engine }

// EvaluateDecision — главный вход конвейера.
// Результаты именованные: deferred-блок дописывает время оценки и метрики
// уже после return, поэтому он должен видеть возвращаемое значение.
func (b *Bridge) EvaluateDecision(ctx context.Context, req domain.EvaluationRequest) (eval domain.GovernanceEvaluation, err error) {
	start := time.Now()

	if req.Chosen == "" {
		req.Chosen = req.DecisionType
	}

	eval = domain.GovernanceEvaluation{
		ConfidenceScore: domain.CtxFloat(req.Context, "confidence", 0.5),
	}

	defer func() {
		eval.EvaluationTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
		b.metrics.EvaluationDuration.WithLabelValues(string(eval.Outcome)).Observe(time.Since(start).Seconds())
		b.metrics.EvaluationsTotal.WithLabelValues(req.DecisionType, string(eval.Outcome)).Inc()
	}()

	// ШАГ 1: Быстрая проверка агрессивности (самая дешевая, in-memory)
	agg := b.monitor.Evaluate()
	eval.AggressivenessScore = agg.GlobalScore
	b.metrics.AggressivenessScore.Set(agg.GlobalScore)

	if agg.ShouldBlockCritical || b.monitor.InCooldown() {
		eval.Outcome = domain.OutcomeThrottled
		eval.Approved = false
		eval.Recommendations = agg.Recommendations
		eval.Warnings = agg.Warnings
		eval.Narrative = b.throttleNarrative(agg)

		b.metrics.ThrottlesTotal.Inc()
		b.bumpStats(eval.Outcome)
		b.broadcastCooldown(ctx)

		b.logger.Warn("decision throttled by aggressiveness monitor",
			zap.String("decision_type", req.DecisionType),
			zap.String("actor", req.Actor),
			zap.Float64("score", agg.GlobalScore),
		)
		return eval, nil
	}

	// ШАГ 2: Оценки риска/эффекта от вызывающей стороны (или дефолты)
	risk := domain.CtxFloat(req.Context, "estimated_risk", b.cfg.DefaultRisk)
	impact := domain.CtxFloat(req.Context, "estimated_impact", b.cfg.DefaultImpact)

	// ШАГ 3: Классификация
	cls := b.classifier.Classify(req.DecisionType, risk, impact, req.Context)
	eval.ClassificationLevel = string(cls.Level)

	// ШАГ 4: Симуляция, если тир требует. Её оценка риска перекрывает входную.
	var sim *simulation.Result
	if cls.RequiresSimulation {
		r := b.engine.Simulate(ctx, b.simulationActionFor(req.DecisionType), req.Context)
		sim = &r
		risk = r.TotalRiskScore
	}
	eval.RiskScore = risk

	// ШАГ 5: Вердикт
	eval.Outcome = domain.OutcomeApproved
	eval.Approved = true

	if sim != nil && !sim.ShouldProceed {
		eval.Outcome = domain.OutcomeRejected
		eval.Approved = false
		eval.Blockers = append(eval.Blockers, sim.Blockers...)
		eval.Warnings = append(eval.Warnings, sim.Warnings...)
		eval.Recommendations = append(eval.Recommendations, sim.Recommendations...)
	}

	// Ручной апрув перекрывает даже чистую симуляцию
	if cls.RequiresHumanApproval {
		eval.Outcome = domain.OutcomeRequiresHuman
		eval.Approved = false
	} else if cls.RequiresLLMValidation && eval.Approved {
		// Мягкий шлюз: действие идет, параллельно уходит на рецензию
		eval.Outcome = domain.OutcomeRequiresLLM
	}

	// ШАГ 6: Запись в журнал, если тир требует
	if cls.RequiresLedger {
		rec := b.buildRecord(req, cls, risk, eval.ConfidenceScore)
		decisionID, err := b.ledger.RecordDecision(rec)
		if err != nil {
			// Инфраструктурный сбой: решение осталось без аудиторского следа
			b.logger.Error("ledger write failed", zap.Error(err))
			return eval, fmt.Errorf("bridge: ledger write: %w", err)
		}
		eval.DecisionID = decisionID
		b.metrics.LedgerWritesTotal.Inc()
	}

	// ШАГ 7: Нарратив для человека
	eval.Narrative = b.narrative(req, cls, sim, agg, eval)

	// ШАГ 8: Одобренное действие попадает в окна монитора
	if eval.Approved {
		b.monitor.RecordAction(b.simulationActionFor(req.DecisionType),
			domain.CtxString(req.Context, "account_id", "unknown"))
	}

	// ШАГ 9: Счетчики и advisory-рецензия
	b.bumpStats(eval.Outcome)

	if eval.Outcome == domain.OutcomeRequiresLLM && b.validator != nil {
		b.submitAdvisoryReview(req, eval)
	}

	return eval, nil
}

// RecordExecution — отчет об исполнении: переводит запись журнала в
// executed либо failed. Неизвестный ID — false, без ошибок.
func (b *Bridge) RecordExecution(decisionID string, success bool, result map[string]interface{}) bool {
	if success {
		return b.ledger.MarkExecuted(decisionID)
	}

	reason := "execution failed"
	if msg := domain.CtxString(result, "error", ""); msg != "" {
		reason = msg
	}
	return b.ledger.MarkFailed(decisionID, reason)
}

// ReverseDecision откатывает решение в журнале.
func (b *Bridge) ReverseDecision(decisionID, reason string) bool {
	return b.ledger.MarkReversed(decisionID, reason)
}

// Stats — сводные счетчики моста.
func (b *Bridge) Stats() domain.GovernorStats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	s := domain.GovernorStats{
		TotalEvaluations: b.stats.total,
		Approvals:        b.stats.approvals,
		Rejections:       b.stats.rejections,
		HumanEscalations: b.stats.humans,
		ThrottleEvents:   b.stats.throttles,
	}
	if s.TotalEvaluations > 0 {
		s.BlockRate = float64(s.Rejections+s.ThrottleEvents) / float64(s.TotalEvaluations)
	}
	return s
}

func (b *Bridge) bumpStats(outcome domain.Outcome) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	b.stats.total++
	switch outcome {
	case domain.OutcomeApproved, domain.OutcomeRequiresLLM:
		b.stats.approvals++
	case domain.OutcomeRejected:
		b.stats.rejections++
	case domain.OutcomeRequiresHuman:
		b.stats.humans++
	case domain.OutcomeThrottled:
		b.stats.throttles++
	}
}

func (b *Bridge) buildRecord(req domain.EvaluationRequest, cls classifier.Result, risk, confidence float64) *ledger.Record {
	reasoning := append([]string{}, req.Reasoning...)
	reasoning = append(reasoning, cls.Reasoning...)

	return &ledger.Record{
		Actor:                  req.Actor,
		DecisionType:           req.DecisionType,
		Inputs:                 domain.CtxStrings(req.Context, "inputs"),
		Context:                req.Context,
		AlternativesConsidered: req.Alternatives,
		Chosen:                 req.Chosen,
		Reasoning:              reasoning,
		Confidence:             confidence,
		RiskScore:              risk,
		ValidatedBy:            domain.CtxString(req.Context, "validated_by", ""),
		Tags:                   append([]string{strings.ToLower(string(cls.Level))}, cls.RiskFactors...),
		Reversible:             !domain.CtxBool(req.Context, "irreversible", false),
		ExecutionStatus:        ledger.StatusPending,
	}
}

// submitAdvisoryReview отправляет заявку рецензенту fire-and-forget:
// ответ асинхронный и на вердикт этого вызова уже не влияет.
func (b *Bridge) submitAdvisoryReview(req domain.EvaluationRequest, eval domain.GovernanceEvaluation) {
	review := simulation.ReviewRequest{
		ReviewID:     uuid.NewString(),
		DecisionID:   eval.DecisionID,
		DecisionType: req.DecisionType,
		Actor:        req.Actor,
		RiskScore:    eval.RiskScore,
		Narrative:    eval.Narrative,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := b.validator.SubmitReview(ctx, review); err != nil {
			b.logger.Warn("advisory review submission failed",
				zap.String("decision_id", review.DecisionID), zap.Error(err))
		}
	}()
}

// broadcastCooldown объявляет паузу остальным инстансам (если подключено).
func (b *Bridge) broadcastCooldown(ctx context.Context) {
	if b.cooldown == nil {
		return
	}
	until := b.monitor.CooldownUntil()
	if until.IsZero() {
		return
	}
	if err := b.cooldown.Publish(ctx, until); err != nil {
		b.logger.Warn("cooldown broadcast failed", zap.Error(err))
	}
}

func (b *Bridge) simulationActionFor(decisionType string) string {
	if action, ok := simulationActions[decisionType]; ok {
		return action
	}
	return defaultSimulationAction
}

func (b *Bridge) throttleNarrative(agg monitor.Score) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Action throttled: aggressiveness %s (%.2f).", agg.Level, agg.GlobalScore)
	if until := b.monitor.CooldownUntil(); !until.IsZero() && time.Now().Before(until) {
		fmt.Fprintf(&sb, " Cooling down until %s.", until.Format(time.RFC3339))
	}
	return sb.String()
}

// narrative собирает объяснение вердикта для человека: тир, вердикт,
// блокеры, риск симуляции и текущая агрессивность.
func (b *Bridge) narrative(req domain.EvaluationRequest, cls classifier.Result, sim *simulation.Result, agg monitor.Score, eval domain.GovernanceEvaluation) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Decision %q by %s classified %s.", req.DecisionType, req.Actor, cls.Level)

	switch eval.Outcome {
	case domain.OutcomeApproved:
		sb.WriteString(" Approved.")
	case domain.OutcomeRequiresLLM:
		sb.WriteString(" Approved; advisory review requested.")
	case domain.OutcomeRequiresHuman:
		sb.WriteString(" Held for mandatory human approval.")
	case domain.OutcomeRejected:
		sb.WriteString(" Rejected by risk simulation.")
	}

	if len(eval.Blockers) > 0 {
		fmt.Fprintf(&sb, " Blockers: %s.", strings.Join(eval.Blockers, "; "))
	}
	if sim != nil {
		fmt.Fprintf(&sb, " Simulated risk %.0f%% (%s).", sim.TotalRiskScore*100, sim.RiskLevel)
	}
	fmt.Fprintf(&sb, " Aggressiveness %s (%.2f).", agg.Level, agg.GlobalScore)

	if eval.DecisionID != "" {
		fmt.Fprintf(&sb, " Ledger: %s.", eval.DecisionID)
	}
	return sb.String()
}
