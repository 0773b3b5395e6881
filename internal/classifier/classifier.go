package classifier

/*
Файл classifier.go реализует тиринг решений. Каждое решение по оценке
риска/эффекта и контекстным факторам (затронутые аккаунты, обратимость,
финансовый эффект) попадает в один из четырех упорядоченных тиров:

  MICRO < STANDARD < CRITICAL < STRUCTURAL

Тир фиксирует набор обязательств для последующих шагов (запись в журнал,
симуляция, advisory-рецензия, ручной апрув). Набор монотонно растет с
тиром: более высокий тир никогда не отменяет обязательство более низкого.
Правила оцениваются сверху вниз, первое совпадение выигрывает; принудительные
переопределения по типу решения бьют любой скоринг.
*/

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/domain"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/infra"
)

// Level — тир решения.
type Level string

const (
	LevelMicro      Level = "MICRO"
	LevelStandard   Level = "STANDARD"
	LevelCritical   Level = "CRITICAL"
	LevelStructural Level = "STRUCTURAL"
)

// Criticality — строчное имя тира для монитора агрессивности.
func (l Level) Criticality() string {
	switch l {
	case LevelStructural:
		return "structural"
	case LevelCritical:
		return "critical"
	case LevelStandard:
		return "standard"
	default:
		return "micro"
	}
}

// Жесткие контекстные пороги тиринга (не зависят от конфигурации скоринга)
const (
	structuralImpactThreshold    = 0.70
	structuralAccountsThreshold  = 50
	structuralFinancialThreshold = 5000.0
	structuralIrrevRiskThreshold = 0.50

	criticalAccountsThreshold  = 5
	criticalFinancialThreshold = 500.0

	standardAccountsThreshold = 1
)

// Result — чистый результат классификации; не персистится.
type Result struct {
	Level Level `json:"level"`

	RequiresLedger        bool `json:"requires_ledger"`
	RequiresSimulation    bool `json:"requires_simulation"`
	RequiresLLMValidation bool `json:"requires_llm_validation"`
	RequiresHumanApproval bool `json:"requires_human_approval"`

	Reasoning   []string `json:"reasoning,omitempty"`
	RiskFactors []string `json:"risk_factors,omitempty"`

	RiskThreshold   float64 `json:"risk_threshold"`
	ImpactThreshold float64 `json:"impact_threshold"`
}

// Classifier — детерминированная функция тиринга плюс телеметрия по тирам.
type Classifier struct {
	cfg infra.ClassifierConfig

	// Принудительные переопределения по типу решения
	alwaysStructural map[string]struct{}
	alwaysCritical   map[string]struct{}

	mu       sync.Mutex
	counters map[Level]int64

	logger *zap.Logger
}

// Типы решений, всегда дающие верхние тиры независимо от скоринга.
var (
	defaultAlwaysStructural = []string{
		"kill_switch_activation",
		"global_strategy_change",
		"platform_migration",
	}
	defaultAlwaysCritical = []string{
		"emergency_stop",
		"account_suspension",
		"bulk_content_removal",
	}
)

func NewClassifier(cfg infra.ClassifierConfig, logger *zap.Logger) *Classifier {
	if cfg.MicroMaxRisk <= 0 {
		cfg.MicroMaxRisk = 0.20
	}
	if cfg.MicroMaxImpact <= 0 {
		cfg.MicroMaxImpact = 0.10
	}
	if cfg.StandardMaxRisk <= 0 {
		cfg.StandardMaxRisk = 0.50
	}
	if cfg.StandardMaxImpact <= 0 {
		cfg.StandardMaxImpact = 0.30
	}
	if cfg.CriticalMaxRisk <= 0 {
		cfg.CriticalMaxRisk = 0.75
	}

	c := &Classifier{
		cfg:              cfg,
		alwaysStructural: make(map[string]struct{}, len(defaultAlwaysStructural)),
		alwaysCritical:   make(map[string]struct{}, len(defaultAlwaysCritical)),
		counters:         make(map[Level]int64, 4),
		logger:           logger.Named("classifier"),
	}
	for _, t := range defaultAlwaysStructural {
		c.alwaysStructural[t] = struct{}{}
	}
	for _, t := range defaultAlwaysCritical {
		c.alwaysCritical[t] = struct{}{}
	}
	return c
}

// AlwaysCriticalTypes возвращает набор типов, форсирующих тир CRITICAL.
// Журнал использует его для фильтра критических решений.
func (c *Classifier) AlwaysCriticalTypes() map[string]struct{} {
	out := make(map[string]struct{}, len(c.alwaysCritical))
	for t := range c.alwaysCritical {
		out[t] = struct{}{}
	}
	return out
}

// Classify назначает тир решению. Детерминированная функция входа и порогов;
// ошибок не бывает.
func (c *Classifier) Classify(decisionType string, risk, impact float64, ctx map[string]interface{}) Result {
	accounts := domain.CtxInt(ctx, "accounts_affected", 1)
	irreversible := domain.CtxBool(ctx, "irreversible", false)
	financial := domain.CtxFloat(ctx, "financial_impact", 0)

	res := Result{}

	// Факторы риска копятся независимо от итогового тира — они для людей и аудита
	c.collectRiskFactors(&res, risk, impact, accounts, irreversible, financial)

	switch {
	// 1. Принудительные переопределения
	case c.isAlwaysStructural(decisionType):
		res.Level = LevelStructural
		res.Reasoning = append(res.Reasoning,
			fmt.Sprintf("decision type %q is always structural", decisionType))

	case c.isAlwaysCritical(decisionType):
		res.Level = LevelCritical
		res.Reasoning = append(res.Reasoning,
			fmt.Sprintf("decision type %q is always critical", decisionType))

	// 2. STRUCTURAL
	case risk > c.cfg.CriticalMaxRisk,
		impact > structuralImpactThreshold,
		accounts > structuralAccountsThreshold,
		irreversible && risk > structuralIrrevRiskThreshold,
		financial > structuralFinancialThreshold:
		res.Level = LevelStructural
		res.Reasoning = append(res.Reasoning, c.structuralReason(risk, impact, accounts, irreversible, financial))

	// 3. CRITICAL
	case risk > c.cfg.StandardMaxRisk,
		impact > c.cfg.StandardMaxImpact,
		accounts > criticalAccountsThreshold,
		irreversible,
		financial > criticalFinancialThreshold:
		res.Level = LevelCritical
		res.Reasoning = append(res.Reasoning, c.criticalReason(risk, impact, accounts, irreversible, financial))

	// 4. STANDARD
	case risk > c.cfg.MicroMaxRisk,
		impact > c.cfg.MicroMaxImpact,
		accounts > standardAccountsThreshold:
		res.Level = LevelStandard
		res.Reasoning = append(res.Reasoning,
			fmt.Sprintf("risk %.2f / impact %.2f above micro ceiling", risk, impact))

	// 5. Все остальное — MICRO
	default:
		res.Level = LevelMicro
		res.Reasoning = append(res.Reasoning, "risk and impact within micro ceiling")
	}

	c.applyObligations(&res)
	c.applyThresholds(&res)

	c.mu.Lock()
	c.counters[res.Level]++
	c.mu.Unlock()

	c.logger.Debug("decision classified",
		zap.String("decision_type", decisionType),
		zap.String("level", string(res.Level)),
		zap.Float64("risk", risk),
		zap.Float64("impact", impact),
	)

	return res
}

// applyObligations — монотонный набор обязательств по тиру.
// STRUCTURAL ⊇ CRITICAL ⊇ STANDARD ⊇ MICRO.
func (c *Classifier) applyObligations(res *Result) {
	switch res.Level {
	case LevelStructural:
		res.RequiresHumanApproval = true
		fallthrough
	case LevelCritical:
		res.RequiresSimulation = true
		res.RequiresLLMValidation = true
		fallthrough
	case LevelStandard:
		res.RequiresLedger = true
	case LevelMicro:
		// Никаких обязательств
	}
}

// applyThresholds проставляет потолки тира, под который решение попало.
func (c *Classifier) applyThresholds(res *Result) {
	switch res.Level {
	case LevelMicro:
		res.RiskThreshold = c.cfg.MicroMaxRisk
		res.ImpactThreshold = c.cfg.MicroMaxImpact
	case LevelStandard:
		res.RiskThreshold = c.cfg.StandardMaxRisk
		res.ImpactThreshold = c.cfg.StandardMaxImpact
	case LevelCritical:
		res.RiskThreshold = c.cfg.CriticalMaxRisk
		res.ImpactThreshold = structuralImpactThreshold
	case LevelStructural:
		res.RiskThreshold = 1.0
		res.ImpactThreshold = 1.0
	}
}

func (c *Classifier) collectRiskFactors(res *Result, risk, impact float64, accounts int, irreversible bool, financial float64) {
	if risk > c.cfg.StandardMaxRisk {
		res.RiskFactors = append(res.RiskFactors,
			fmt.Sprintf("estimated risk %.2f exceeds standard ceiling %.2f", risk, c.cfg.StandardMaxRisk))
	}
	if impact > c.cfg.StandardMaxImpact {
		res.RiskFactors = append(res.RiskFactors,
			fmt.Sprintf("estimated impact %.2f exceeds standard ceiling %.2f", impact, c.cfg.StandardMaxImpact))
	}
	if accounts > criticalAccountsThreshold {
		res.RiskFactors = append(res.RiskFactors,
			fmt.Sprintf("%d accounts affected", accounts))
	}
	if irreversible {
		res.RiskFactors = append(res.RiskFactors, "action is irreversible")
	}
	if financial > criticalFinancialThreshold {
		res.RiskFactors = append(res.RiskFactors,
			fmt.Sprintf("financial impact %.0f exceeds %.0f", financial, criticalFinancialThreshold))
	}
}

func (c *Classifier) structuralReason(risk, impact float64, accounts int, irreversible bool, financial float64) string {
	switch {
	case risk > c.cfg.CriticalMaxRisk:
		return fmt.Sprintf("risk %.2f above critical ceiling %.2f", risk, c.cfg.CriticalMaxRisk)
	case impact > structuralImpactThreshold:
		return fmt.Sprintf("impact %.2f above structural threshold %.2f", impact, structuralImpactThreshold)
	case accounts > structuralAccountsThreshold:
		return fmt.Sprintf("%d accounts affected (structural scale)", accounts)
	case irreversible && risk > structuralIrrevRiskThreshold:
		return fmt.Sprintf("irreversible with risk %.2f", risk)
	default:
		return fmt.Sprintf("financial impact %.0f above structural threshold", financial)
	}
}

func (c *Classifier) criticalReason(risk, impact float64, accounts int, irreversible bool, financial float64) string {
	switch {
	case risk > c.cfg.StandardMaxRisk:
		return fmt.Sprintf("risk %.2f above standard ceiling %.2f", risk, c.cfg.StandardMaxRisk)
	case impact > c.cfg.StandardMaxImpact:
		return fmt.Sprintf("impact %.2f above standard ceiling %.2f", impact, c.cfg.StandardMaxImpact)
	case accounts > criticalAccountsThreshold:
		return fmt.Sprintf("%d accounts affected", accounts)
	case irreversible:
		return "action is irreversible"
	default:
		return fmt.Sprintf("financial impact %.0f above critical threshold", financial)
	}
}

func (c *Classifier) isAlwaysStructural(decisionType string) bool {
	_, ok := c.alwaysStructural[decisionType]
	return ok
}

func (c *Classifier) isAlwaysCritical(decisionType string) bool {
	_, ok := c.alwaysCritical[decisionType]
	return ok
}

// TierCounts — телеметрия: сколько решений попало в каждый тир.
func (c *Classifier) TierCounts() map[Level]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Level]int64, len(c.counters))
	for k, v := range c.counters {
		out[k] = v
	}
	return out
}
