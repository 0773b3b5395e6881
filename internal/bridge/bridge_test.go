package bridge

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/classifier"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/domain"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/infra"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/ledger"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/monitor"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/simulation"
)

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()

	led, err := ledger.NewLedger(infra.LedgerConfig{
		StoragePath: filepath.Join(t.TempDir(), "decisions.jsonl"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })

	return NewBridge(
		infra.GovernorConfig{},
		monitor.NewMonitor(infra.MonitorConfig{}, zap.NewNop()),
		classifier.NewClassifier(infra.ClassifierConfig{}, zap.NewNop()),
		simulation.NewEngine(zap.NewNop()),
		led,
		NewMetrics(nil),
		zap.NewNop(),
	)
}

func TestMicroDecisionApprovedWithoutLedger(t *testing.T) {
	b := newTestBridge(t)

	eval, err := b.EvaluateDecision(context.Background(), domain.EvaluationRequest{
		DecisionType: "post_content",
		Actor:        "scheduler",
		Context: map[string]interface{}{
			"estimated_risk":   0.1,
			"estimated_impact": 0.05,
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApproved, eval.Outcome)
	assert.True(t, eval.Approved)
	assert.Equal(t, "MICRO", eval.ClassificationLevel)
	// MICRO не оставляет следа в журнале
	assert.Empty(t, eval.DecisionID)
	assert.Equal(t, int64(0), b.Ledger().TotalDecisions())
}

func TestStandardDecisionWritesLedger(t *testing.T) {
	b := newTestBridge(t)

	eval, err := b.EvaluateDecision(context.Background(), domain.EvaluationRequest{
		DecisionType: "schedule_post",
		Actor:        "scheduler",
		Chosen:       "evening slot",
		Reasoning:    []string{"peak audience hours"},
		Context: map[string]interface{}{
			"estimated_risk":   0.3,
			"estimated_impact": 0.2,
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApproved, eval.Outcome)
	assert.True(t, eval.Approved)
	assert.Equal(t, "STANDARD", eval.ClassificationLevel)
	require.NotEmpty(t, eval.DecisionID)

	rec := b.Ledger().GetDecision(eval.DecisionID)
	require.NotNil(t, rec)
	assert.Equal(t, "scheduler", rec.Actor)
	assert.Equal(t, "evening slot", rec.Chosen)
	assert.Contains(t, rec.Reasoning, "peak audience hours")
	assert.Equal(t, ledger.StatusPending, rec.ExecutionStatus)
}

// CRITICAL тир с чистой симуляцией: действие одобрено, но уходит на
// advisory-рецензию. Мягкий шлюз не блокирует исполнение.
func TestCriticalCleanSimulationRequiresLLM(t *testing.T) {
	b := newTestBridge(t)

	eval, err := b.EvaluateDecision(context.Background(), domain.EvaluationRequest{
		DecisionType: "content_boost",
		Actor:        "optimizer",
		Context: map[string]interface{}{
			"estimated_risk":   0.6, // CRITICAL по риску
			"estimated_impact": 0.2,
			"account_age_days": 365.0,
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRequiresLLM, eval.Outcome)
	assert.True(t, eval.Approved)
	assert.Equal(t, "CRITICAL", eval.ClassificationLevel)
	assert.NotEmpty(t, eval.DecisionID)
	// Оценка симуляции перекрывает входной риск
	assert.Less(t, eval.RiskScore, 0.6)
}

func TestDirtySimulationRejects(t *testing.T) {
	b := newTestBridge(t)

	eval, err := b.EvaluateDecision(context.Background(), domain.EvaluationRequest{
		DecisionType: "content_boost",
		Actor:        "optimizer",
		Context: map[string]interface{}{
			"estimated_risk":   0.6,
			"account_age_days": 365.0,
			// Сильные сигналы shadowban дают безусловный HOLD
			"reach_drop_pct":  60.0,
			"engagement_rate": 0.005,
			"shadowban_signals": []string{
				"stories_not_shown", "search_delisting",
			},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, eval.Outcome)
	assert.False(t, eval.Approved)
	assert.NotEmpty(t, eval.Blockers)
	// Отклоненное решение все равно журналируется
	assert.NotEmpty(t, eval.DecisionID)
}

func TestStructuralRequiresHuman(t *testing.T) {
	b := newTestBridge(t)

	eval, err := b.EvaluateDecision(context.Background(), domain.EvaluationRequest{
		DecisionType: "kill_switch_activation",
		Actor:        "operator",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRequiresHuman, eval.Outcome)
	assert.False(t, eval.Approved)
	assert.Equal(t, "STRUCTURAL", eval.ClassificationLevel)
	assert.NotEmpty(t, eval.DecisionID)
	assert.Contains(t, eval.Narrative, "human approval")
}

func TestThrottledSkipsLedger(t *testing.T) {
	b := newTestBridge(t)

	// Внешний cooldown переводит монитор в режим паузы
	b.Monitor().ApplyExternalCooldown(time.Now().Add(10 * time.Minute))

	eval, err := b.EvaluateDecision(context.Background(), domain.EvaluationRequest{
		DecisionType: "post_content",
		Actor:        "scheduler",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeThrottled, eval.Outcome)
	assert.False(t, eval.Approved)
	// Короткое замыкание: ни классификации, ни записи в журнал
	assert.Empty(t, eval.ClassificationLevel)
	assert.Empty(t, eval.DecisionID)
	assert.Equal(t, int64(0), b.Ledger().TotalDecisions())
	assert.Contains(t, eval.Narrative, "throttled")
}

func TestEvaluationTimeReported(t *testing.T) {
	b := newTestBridge(t)

	eval, err := b.EvaluateDecision(context.Background(), domain.EvaluationRequest{
		DecisionType: "budget_shift",
		Actor:        "optimizer",
	})

	require.NoError(t, err)
	assert.Greater(t, eval.EvaluationTimeMs, 0.0)

	// Время проставляется и на пути раннего выхода
	b.Monitor().ApplyExternalCooldown(time.Now().Add(10 * time.Minute))
	eval, err = b.EvaluateDecision(context.Background(), domain.EvaluationRequest{
		DecisionType: "post_content",
		Actor:        "scheduler",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeThrottled, eval.Outcome)
	assert.Greater(t, eval.EvaluationTimeMs, 0.0)
}

func TestRecordExecutionLifecycle(t *testing.T) {
	b := newTestBridge(t)

	eval, err := b.EvaluateDecision(context.Background(), domain.EvaluationRequest{
		DecisionType: "schedule_post",
		Actor:        "scheduler",
		Context:      map[string]interface{}{"estimated_risk": 0.3},
	})
	require.NoError(t, err)
	require.NotEmpty(t, eval.DecisionID)

	assert.True(t, b.RecordExecution(eval.DecisionID, true, nil))
	rec := b.Ledger().GetDecision(eval.DecisionID)
	require.NotNil(t, rec)
	assert.Equal(t, ledger.StatusExecuted, rec.ExecutionStatus)

	// Обратимое решение можно откатить после исполнения
	assert.True(t, b.ReverseDecision(eval.DecisionID, "campaign cancelled"))

	assert.False(t, b.RecordExecution("DEC-20260101-9999", true, nil))
}

func TestRecordExecutionFailureReason(t *testing.T) {
	b := newTestBridge(t)

	eval, err := b.EvaluateDecision(context.Background(), domain.EvaluationRequest{
		DecisionType: "schedule_post",
		Actor:        "scheduler",
		Context:      map[string]interface{}{"estimated_risk": 0.3},
	})
	require.NoError(t, err)

	assert.True(t, b.RecordExecution(eval.DecisionID, false, map[string]interface{}{
		"error": "platform api timeout",
	}))

	rec := b.Ledger().GetDecision(eval.DecisionID)
	require.NotNil(t, rec)
	assert.Equal(t, ledger.StatusFailed, rec.ExecutionStatus)
	assert.Contains(t, rec.Notes, "platform api timeout")
}

type captureValidator struct {
	mu       sync.Mutex
	received []simulation.ReviewRequest
	done     chan struct{}
}

func (c *captureValidator) SubmitReview(ctx context.Context, req simulation.ReviewRequest) error {
	c.mu.Lock()
	c.received = append(c.received, req)
	c.mu.Unlock()
	close(c.done)
	return nil
}

func TestAdvisoryReviewSubmitted(t *testing.T) {
	b := newTestBridge(t)
	cv := &captureValidator{done: make(chan struct{})}
	b.SetValidator(cv)

	eval, err := b.EvaluateDecision(context.Background(), domain.EvaluationRequest{
		DecisionType: "content_boost",
		Actor:        "optimizer",
		Context: map[string]interface{}{
			"estimated_risk":   0.6,
			"account_age_days": 365.0,
		},
	})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeRequiresLLM, eval.Outcome)

	select {
	case <-cv.done:
	case <-time.After(2 * time.Second):
		t.Fatal("advisory review was not submitted")
	}

	cv.mu.Lock()
	defer cv.mu.Unlock()
	require.Len(t, cv.received, 1)
	assert.Equal(t, eval.DecisionID, cv.received[0].DecisionID)
	assert.Equal(t, "content_boost", cv.received[0].DecisionType)
}

func TestStatsAggregation(t *testing.T) {
	b := newTestBridge(t)

	// Одобренное
	_, err := b.EvaluateDecision(context.Background(), domain.EvaluationRequest{
		DecisionType: "post_content",
		Actor:        "scheduler",
		Context:      map[string]interface{}{"estimated_risk": 0.1, "estimated_impact": 0.05},
	})
	require.NoError(t, err)

	// Отклоненное симуляцией
	_, err = b.EvaluateDecision(context.Background(), domain.EvaluationRequest{
		DecisionType: "content_boost",
		Actor:        "optimizer",
		Context: map[string]interface{}{
			"estimated_risk":    0.6,
			"account_age_days":  365.0,
			"reach_drop_pct":    60.0,
			"engagement_rate":   0.005,
			"shadowban_signals": []string{"stories_not_shown", "search_delisting"},
		},
	})
	require.NoError(t, err)

	stats := b.Stats()
	assert.Equal(t, int64(2), stats.TotalEvaluations)
	assert.Equal(t, int64(1), stats.Approvals)
	assert.Equal(t, int64(1), stats.Rejections)
	assert.InDelta(t, 0.5, stats.BlockRate, 1e-9)
}
