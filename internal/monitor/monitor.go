package monitor

/*
Файл monitor.go реализует монитор агрессивности — поведенческий "тахометр"
платформы. Он не знает, что именно делает автоматика; он смотрит только на
форму потока действий (скорость, механическую регулярность, однообразие,
разброс по аккаунтам, суточный объем) и превращает её в композитный балл.

Балл — выпуклая комбинация пяти компонент с фиксированными весами.
Уровни назначаются ступенчато по двум порогам; при DANGER включается
cooldown со ступенчатой длительностью.
*/

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/domain"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/infra"
)

// Level — уровень агрессивности по результатам оценки.
type Level string

const (
	LevelSafe    Level = "SAFE"
	LevelWarning Level = "WARNING"
	LevelDanger  Level = "DANGER"
)

// Веса компонент. Сумма строго 1.0 — глобальный балл остается в [0,1].
const (
	weightVelocity      = 0.25
	weightConcentration = 0.20
	weightRepetition    = 0.25
	weightMultiAccount  = 0.15
	weightVolume        = 0.15
)

// ComponentScores — пять компонент композитного балла, каждая в [0,1].
type ComponentScores struct {
	Velocity          float64 `json:"velocity"`
	Concentration     float64 `json:"concentration"`
	PatternRepetition float64 `json:"pattern_repetition"`
	MultiAccount      float64 `json:"multi_account"`
	Volume            float64 `json:"volume"`
}

// Score — результат одной оценки. Создается заново на каждый вызов Evaluate.
type Score struct {
	Timestamp           time.Time       `json:"timestamp"`
	GlobalScore         float64         `json:"global_score"`
	Level               Level           `json:"level"`
	Components          ComponentScores `json:"component_scores"`
	ShouldThrottle      bool            `json:"should_throttle"`
	ShouldBlockCritical bool            `json:"should_block_critical"`
	CooldownMinutes     int             `json:"cooldown_minutes"`
	Recommendations     []string        `json:"recommendations,omitempty"`
	Warnings            []string        `json:"warnings,omitempty"`
}

// Stats — служебные счетчики монитора.
type Stats struct {
	TotalEvaluations int64 `json:"total_evaluations"`
	ThrottleEvents   int64 `json:"throttle_events"`
	BlockEvents      int64 `json:"block_events"`
}

// Monitor владеет тремя окнами событий и состоянием cooldown.
// Все публичные методы потокобезопасны: состояние закрыто мьютексом,
// каждый инстанс моста держит собственный монитор (никаких синглтонов).
type Monitor struct {
	mu  sync.Mutex
	cfg infra.MonitorConfig

	winShort  *eventWindow
	winMedium *eventWindow
	winLong   *eventWindow

	current       *Score
	history       []Score
	cooldownUntil time.Time

	totalEvaluations int64
	throttleEvents   int64
	blockEvents      int64

	logger *zap.Logger
}

func NewMonitor(cfg infra.MonitorConfig, logger *zap.Logger) *Monitor {
	if cfg.SafeThreshold <= 0 {
		cfg.SafeThreshold = 0.70
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = 0.85
	}
	if cfg.BaselineActionsPerHour <= 0 {
		cfg.BaselineActionsPerHour = 20
	}
	if cfg.BaselineActiveAccounts <= 0 {
		cfg.BaselineActiveAccounts = 3
	}
	if cfg.WindowCapacity <= 0 {
		cfg.WindowCapacity = 10000
	}
	if cfg.ScoreHistoryCapacity <= 0 {
		cfg.ScoreHistoryCapacity = 1000
	}

	return &Monitor{
		cfg:       cfg,
		winShort:  newEventWindow(windowShort, cfg.WindowCapacity),
		winMedium: newEventWindow(windowMedium, cfg.WindowCapacity),
		winLong:   newEventWindow(windowLong, cfg.WindowCapacity),
		history:   make([]Score, 0, 128),
		logger:    logger.Named("aggressiveness"),
	}
}

// RecordAction фиксирует действие во всех трех окнах с текущим временем.
func (m *Monitor) RecordAction(actionType, accountID string) {
	m.RecordActionAt(actionType, accountID, time.Now())
}

// RecordActionAt — тот же append, но с явным временем (реплей, тесты).
// Чистый побочный эффект: только буферы монитора, никакого внешнего состояния.
func (m *Monitor) RecordActionAt(actionType, accountID string, ts time.Time) {
	ev := domain.ActionEvent{ActionType: actionType, AccountID: accountID, Timestamp: ts}

	m.mu.Lock()
	m.winShort.add(ev)
	m.winMedium.add(ev)
	m.winLong.add(ev)
	m.mu.Unlock()
}

// Evaluate считает композитный балл по текущему содержимому окон.
// Пустые окна деградируют в нули, а не в ошибки.
func (m *Monitor) Evaluate() Score {
	return m.EvaluateAt(time.Now())
}

// EvaluateAt — оценка на заданный момент времени.
func (m *Monitor) EvaluateAt(now time.Time) Score {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Возрастная чистка всех окон в начале каждого цикла
	m.winShort.prune(now)
	m.winMedium.prune(now)
	m.winLong.prune(now)

	comps := ComponentScores{
		Velocity:          m.velocityScore(),
		Concentration:     m.concentrationScore(),
		PatternRepetition: m.repetitionScore(),
		MultiAccount:      m.multiAccountScore(),
		Volume:            m.volumeScore(),
	}

	global := weightVelocity*comps.Velocity +
		weightConcentration*comps.Concentration +
		weightRepetition*comps.PatternRepetition +
		weightMultiAccount*comps.MultiAccount +
		weightVolume*comps.Volume
	global = clamp01(global)

	score := Score{
		Timestamp:   now,
		GlobalScore: global,
		Components:  comps,
		Level:       m.levelFor(global),
	}

	switch score.Level {
	case LevelWarning:
		score.ShouldThrottle = true
		score.Recommendations = append(score.Recommendations,
			"increase spacing between automated actions",
			"randomize action timing to break mechanical patterns",
		)
		score.Warnings = append(score.Warnings,
			fmt.Sprintf("aggressiveness %.2f crossed warning threshold %.2f", global, m.cfg.SafeThreshold))
		m.throttleEvents++

	case LevelDanger:
		score.ShouldThrottle = true
		score.ShouldBlockCritical = true
		score.CooldownMinutes = cooldownMinutesFor(global)
		m.cooldownUntil = now.Add(time.Duration(score.CooldownMinutes) * time.Minute)
		score.Warnings = append(score.Warnings,
			fmt.Sprintf("aggressiveness %.2f crossed danger threshold %.2f", global, m.cfg.WarningThreshold))
		score.Recommendations = append(score.Recommendations,
			fmt.Sprintf("pause automated activity for %d minutes", score.CooldownMinutes))
		m.throttleEvents++
		m.blockEvents++

		m.logger.Warn("danger level reached, cooldown engaged",
			zap.Float64("score", global),
			zap.Int("cooldown_minutes", score.CooldownMinutes),
		)
	}

	m.totalEvaluations++
	m.current = &score
	m.history = append(m.history, score)
	if len(m.history) > m.cfg.ScoreHistoryCapacity {
		m.history = m.history[len(m.history)-m.cfg.ScoreHistoryCapacity:]
	}

	return score
}

// levelFor — ступенчатая функция уровня. Пороги включают верхний тир:
// ровно 0.70 — уже WARNING, ровно 0.85 — уже DANGER.
func (m *Monitor) levelFor(global float64) Level {
	switch {
	case global >= m.cfg.WarningThreshold:
		return LevelDanger
	case global >= m.cfg.SafeThreshold:
		return LevelWarning
	default:
		return LevelSafe
	}
}

// cooldownMinutesFor — ступенчатая длительность паузы по баллу.
func cooldownMinutesFor(global float64) int {
	switch {
	case global < 0.85:
		return 0
	case global < 0.90:
		return 15
	case global < 0.95:
		return 30
	default:
		return 60
	}
}

// velocityScore: отношение счетчика 5-минутного окна к базовой скорости.
func (m *Monitor) velocityScore() float64 {
	baseline := m.cfg.BaselineActionsPerHour / 12 // ожидание за 5 минут
	if baseline <= 0 {
		return 0
	}
	ratio := float64(m.winShort.count()) / baseline
	return scaleRatio(ratio)
}

// concentrationScore: коэффициент вариации интервалов за час, инвертированный.
// Механически ровный тайминг (низкий CV) дает ВЫСОКИЙ балл.
func (m *Monitor) concentrationScore() float64 {
	intervals := m.winMedium.intervals()
	if len(intervals) < 2 {
		return 0
	}

	mean, stdev := meanStdev(intervals)
	if mean <= 0 {
		// Статистическое вырождение (все события в один момент) — нейтральный балл
		return 0.5
	}

	cv := stdev / mean
	return math.Max(0, 1-math.Min(cv/2, 1))
}

// repetitionScore: упрощенная энтропийная мера разнообразия типов действий,
// инвертированная — низкое разнообразие дает высокий балл.
func (m *Monitor) repetitionScore() float64 {
	freq := m.winMedium.typeFrequencies()
	total := m.winMedium.count()
	if total < 2 {
		return 0
	}
	if len(freq) == 1 {
		// Один-единственный тип действия — максимальная повторяемость
		return 1
	}

	entropy := 0.0
	for _, n := range freq {
		p := float64(n) / float64(total)
		entropy -= p * math.Log2(p)
	}
	maxEntropy := math.Log2(float64(len(freq)))
	if maxEntropy <= 0 {
		return 0.5
	}
	return clamp01(1 - entropy/maxEntropy)
}

// multiAccountScore: разброс активности по аккаунтам против базового уровня.
func (m *Monitor) multiAccountScore() float64 {
	if m.cfg.BaselineActiveAccounts <= 0 {
		return 0
	}
	if m.winMedium.count() == 0 {
		return 0
	}
	ratio := float64(m.winMedium.distinctAccounts()) / m.cfg.BaselineActiveAccounts
	return scaleRatio(ratio)
}

// volumeScore: суточный объем против базовой суточной нормы.
func (m *Monitor) volumeScore() float64 {
	baseline := m.cfg.BaselineActionsPerHour * 24
	if baseline <= 0 {
		return 0
	}
	ratio := float64(m.winLong.count()) / baseline
	return scaleRatio(ratio)
}

// InCooldown сообщает, активна ли принудительная пауза.
func (m *Monitor) InCooldown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.cooldownUntil.IsZero() && time.Now().Before(m.cooldownUntil)
}

// CooldownUntil возвращает момент окончания паузы (нулевое время — паузы нет).
func (m *Monitor) CooldownUntil() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cooldownUntil
}

// ApplyExternalCooldown принимает cooldown, транслированный другим инстансом.
// Никогда не укорачивает уже действующую паузу.
func (m *Monitor) ApplyExternalCooldown(until time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if until.After(m.cooldownUntil) {
		m.cooldownUntil = until
	}
}

// CanExecute решает, пропускать ли действие данной критичности.
// micro проходит всегда вне cooldown; critical/structural блокируются
// флагом ShouldBlockCritical; standard — только на уровне DANGER.
func (m *Monitor) CanExecute(criticality string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cooldownUntil.IsZero() && time.Now().Before(m.cooldownUntil) {
		return false
	}
	if m.current == nil {
		return true
	}

	switch criticality {
	case "critical", "structural":
		return !m.current.ShouldBlockCritical
	case "standard":
		return m.current.Level != LevelDanger
	default: // micro
		return true
	}
}

// CurrentScore возвращает копию последней оценки (nil, если оценок еще не было).
func (m *Monitor) CurrentScore() *Score {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	cp := *m.current
	return &cp
}

// Trend возвращает последние n оценок из ограниченной истории.
func (m *Monitor) Trend(n int) []Score {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.history) {
		n = len(m.history)
	}
	out := make([]Score, n)
	copy(out, m.history[len(m.history)-n:])
	return out
}

// Stats — снимок служебных счетчиков.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		TotalEvaluations: m.totalEvaluations,
		ThrottleEvents:   m.throttleEvents,
		BlockEvents:      m.blockEvents,
	}
}

// scaleRatio — общее масштабирование компонент "отношение к базе":
// тройное превышение базы считается потолком, и даже он не дает 1.0.
func scaleRatio(ratio float64) float64 {
	return math.Min(ratio/3, 1) * 0.9
}

func meanStdev(values []float64) (mean, stdev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
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
