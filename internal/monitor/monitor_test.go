package monitor

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/infra"
)

func newTestMonitor() *Monitor {
	return NewMonitor(infra.MonitorConfig{}, zap.NewNop())
}

func TestEvaluateEmptyMonitor(t *testing.T) {
	m := newTestMonitor()

	score := m.Evaluate()

	assert.Equal(t, 0.0, score.GlobalScore)
	assert.Equal(t, LevelSafe, score.Level)
	assert.Equal(t, 0.0, score.Components.Velocity)
	assert.Equal(t, 0.0, score.Components.Concentration)
	assert.Equal(t, 0.0, score.Components.PatternRepetition)
	assert.Equal(t, 0.0, score.Components.MultiAccount)
	assert.Equal(t, 0.0, score.Components.Volume)
	assert.False(t, score.ShouldThrottle)
	assert.False(t, score.ShouldBlockCritical)
	assert.Equal(t, 0, score.CooldownMinutes)
}

func TestLevelThresholdsInclusive(t *testing.T) {
	m := newTestMonitor()

	assert.Equal(t, LevelSafe, m.levelFor(0.69))
	assert.Equal(t, LevelWarning, m.levelFor(0.70))
	assert.Equal(t, LevelWarning, m.levelFor(0.84))
	assert.Equal(t, LevelDanger, m.levelFor(0.85))
	assert.Equal(t, LevelDanger, m.levelFor(1.0))
}

func TestCooldownMinutesSteps(t *testing.T) {
	assert.Equal(t, 0, cooldownMinutesFor(0.84))
	assert.Equal(t, 15, cooldownMinutesFor(0.85))
	assert.Equal(t, 15, cooldownMinutesFor(0.89))
	assert.Equal(t, 30, cooldownMinutesFor(0.90))
	assert.Equal(t, 30, cooldownMinutesFor(0.94))
	assert.Equal(t, 60, cooldownMinutesFor(0.95))
	assert.Equal(t, 60, cooldownMinutesFor(1.0))
}

func TestScaleRatioCeiling(t *testing.T) {
	assert.InDelta(t, 0.3, scaleRatio(1), 1e-9)
	assert.InDelta(t, 0.9, scaleRatio(3), 1e-9)
	// Превышение потолка не дает больше 0.9
	assert.InDelta(t, 0.9, scaleRatio(30), 1e-9)
	assert.Equal(t, 0.0, scaleRatio(0))
}

// Механически ровный поток одного типа действий с одного аккаунта
// обязан поднять балл заметно выше нуля.
func TestMechanicalBurstRaisesScore(t *testing.T) {
	m := newTestMonitor()
	now := time.Now()

	// 120 одинаковых действий строго каждые 2 секунды
	for i := 0; i < 120; i++ {
		m.RecordActionAt("post_content", "acc-1", now.Add(time.Duration(-240+i*2)*time.Second))
	}

	score := m.EvaluateAt(now)

	assert.Greater(t, score.GlobalScore, 0.4)
	// Идеально ровный тайминг: CV ~ 0 => концентрация ~ 1
	assert.Greater(t, score.Components.Concentration, 0.9)
	// Единственный тип действия — максимальная повторяемость
	assert.Equal(t, 1.0, score.Components.PatternRepetition)
}

func TestDiverseSlowActivityStaysSafe(t *testing.T) {
	m := newTestMonitor()
	now := time.Now()

	types := []string{"post_content", "schedule_post", "publish_story", "follow_campaign"}
	for i := 0; i < 8; i++ {
		// Неровные интервалы и разные типы
		offset := time.Duration(-50+i*i) * time.Minute
		m.RecordActionAt(types[i%len(types)], fmt.Sprintf("acc-%d", i%2), now.Add(offset))
	}

	score := m.EvaluateAt(now)
	assert.Equal(t, LevelSafe, score.Level)
}

func TestDangerEngagesCooldown(t *testing.T) {
	m := newTestMonitor()
	now := time.Now()

	// Экстремальный залп: много аккаунтов, один тип, ровный тайминг, большой объем
	for i := 0; i < 600; i++ {
		acc := fmt.Sprintf("acc-%d", i%30)
		m.RecordActionAt("post_content", acc, now.Add(time.Duration(-i)*300*time.Millisecond))
	}

	score := m.EvaluateAt(now)

	require.Equal(t, LevelDanger, score.Level)
	assert.True(t, score.ShouldThrottle)
	assert.True(t, score.ShouldBlockCritical)
	assert.Greater(t, score.CooldownMinutes, 0)
	assert.True(t, m.InCooldown())

	// Во время паузы не проходит даже micro
	assert.False(t, m.CanExecute("micro"))
	assert.False(t, m.CanExecute("critical"))
}

func TestExternalCooldownNeverShortens(t *testing.T) {
	m := newTestMonitor()

	far := time.Now().Add(40 * time.Minute)
	near := time.Now().Add(5 * time.Minute)

	m.ApplyExternalCooldown(far)
	assert.Equal(t, far, m.CooldownUntil())

	// Более ранний сигнал не укорачивает действующую паузу
	m.ApplyExternalCooldown(near)
	assert.Equal(t, far, m.CooldownUntil())
}

func TestCanExecuteWithoutEvaluations(t *testing.T) {
	m := newTestMonitor()

	// До первой оценки и вне cooldown все проходит
	assert.True(t, m.CanExecute("micro"))
	assert.True(t, m.CanExecute("standard"))
	assert.True(t, m.CanExecute("critical"))
	assert.True(t, m.CanExecute("structural"))
}

func TestTrendAndStats(t *testing.T) {
	m := newTestMonitor()
	now := time.Now()

	for i := 0; i < 5; i++ {
		m.EvaluateAt(now.Add(time.Duration(i) * time.Minute))
	}

	trend := m.Trend(3)
	require.Len(t, trend, 3)
	// Последние оценки, в хронологическом порядке
	assert.True(t, trend[0].Timestamp.Before(trend[2].Timestamp))

	all := m.Trend(0)
	assert.Len(t, all, 5)

	stats := m.Stats()
	assert.Equal(t, int64(5), stats.TotalEvaluations)
}

func TestWindowPruneDropsOldEvents(t *testing.T) {
	m := newTestMonitor()
	now := time.Now()

	// События старше суток обязаны выпасть из всех окон
	for i := 0; i < 50; i++ {
		m.RecordActionAt("post_content", "acc-1", now.Add(-25*time.Hour))
	}

	score := m.EvaluateAt(now)
	assert.Equal(t, 0.0, score.GlobalScore)
}
