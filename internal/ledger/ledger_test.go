package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/infra"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger(infra.LedgerConfig{
		StoragePath: filepath.Join(t.TempDir(), "decisions.jsonl"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestSequentialDecisionIDs(t *testing.T) {
	l := newTestLedger(t)
	day := time.Now().Format("20060102")

	id1, err := l.RecordDecision(&Record{Actor: "scheduler", DecisionType: "content_boost", Chosen: "boost"})
	require.NoError(t, err)
	id2, err := l.RecordDecision(&Record{Actor: "scheduler", DecisionType: "content_boost", Chosen: "boost"})
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("DEC-%s-0001", day), id1)
	assert.Equal(t, fmt.Sprintf("DEC-%s-0002", day), id2)
}

func TestRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decisions.jsonl")

	l, err := NewLedger(infra.LedgerConfig{StoragePath: path}, zap.NewNop())
	require.NoError(t, err)

	original := &Record{
		Actor:                  "campaign-manager",
		DecisionType:           "budget_shift",
		Inputs:                 []string{"q3_report"},
		Context:                map[string]interface{}{"amount": 120.5},
		AlternativesConsidered: []string{"hold", "shift"},
		Chosen:                 "shift",
		Reasoning:              []string{"better roi on video"},
		Confidence:             0.82,
		RiskScore:              0.31,
		Tags:                   []string{"finance"},
		Reversible:             true,
	}
	id, err := l.RecordDecision(original)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	// Перечитываем журнал с диска заново
	l2, err := NewLedger(infra.LedgerConfig{StoragePath: path}, zap.NewNop())
	require.NoError(t, err)
	defer l2.Close()

	got := l2.GetDecision(id)
	require.NotNil(t, got)
	assert.Equal(t, original.Actor, got.Actor)
	assert.Equal(t, original.DecisionType, got.DecisionType)
	assert.Equal(t, original.Chosen, got.Chosen)
	assert.Equal(t, original.Reasoning, got.Reasoning)
	assert.Equal(t, original.Confidence, got.Confidence)
	assert.Equal(t, StatusPending, got.ExecutionStatus)
	assert.True(t, got.VerifyFingerprint())

	// Последовательность продолжается, а не начинается заново
	assert.Equal(t, int64(1), l2.TotalDecisions())
	id2, err := l2.RecordDecision(&Record{Actor: "campaign-manager", DecisionType: "budget_shift", Chosen: "hold"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(id2, "-0002"))
}

func TestMalformedLinesSkippedOnReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decisions.jsonl")

	l, err := NewLedger(infra.LedgerConfig{StoragePath: path}, zap.NewNop())
	require.NoError(t, err)
	id, err := l.RecordDecision(&Record{Actor: "a", DecisionType: "t", Chosen: "x"})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	// Портим журнал мусорной строкой
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json at all\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	l2, err := NewLedger(infra.LedgerConfig{StoragePath: path}, zap.NewNop())
	require.NoError(t, err)
	defer l2.Close()

	assert.NotNil(t, l2.GetDecision(id))
	assert.Equal(t, int64(1), l2.TotalDecisions())
}

func TestMarkExecutedIdempotent(t *testing.T) {
	l := newTestLedger(t)

	id, err := l.RecordDecision(&Record{Actor: "a", DecisionType: "t", Chosen: "x"})
	require.NoError(t, err)

	assert.True(t, l.MarkExecuted(id))
	// Повторный вызов — no-op, но успешный
	assert.True(t, l.MarkExecuted(id))
	// Из executed в failed хода нет
	assert.False(t, l.MarkFailed(id, "late failure"))

	got := l.GetDecision(id)
	require.NotNil(t, got)
	assert.Equal(t, StatusExecuted, got.ExecutionStatus)
}

func TestTransitionUnknownID(t *testing.T) {
	l := newTestLedger(t)
	assert.False(t, l.MarkExecuted("DEC-20260101-9999"))
}

func TestReversalRules(t *testing.T) {
	l := newTestLedger(t)

	// Необратимую запись откатить нельзя
	rigid, err := l.RecordDecision(&Record{Actor: "a", DecisionType: "t", Chosen: "x", Reversible: false})
	require.NoError(t, err)
	assert.False(t, l.MarkReversed(rigid, "change of mind"))

	// Обратимую можно из pending и из executed
	soft, err := l.RecordDecision(&Record{Actor: "a", DecisionType: "t", Chosen: "x", Reversible: true})
	require.NoError(t, err)
	require.True(t, l.MarkExecuted(soft))
	assert.True(t, l.MarkReversed(soft, "rollback requested"))

	got := l.GetDecision(soft)
	require.NotNil(t, got)
	assert.Equal(t, StatusReversed, got.ExecutionStatus)
	assert.Contains(t, got.Notes, "rollback requested")

	// Из failed откат невозможен даже для обратимых
	failed, err := l.RecordDecision(&Record{Actor: "a", DecisionType: "t", Chosen: "x", Reversible: true})
	require.NoError(t, err)
	require.True(t, l.MarkFailed(failed, "network error"))
	assert.False(t, l.MarkReversed(failed, "too late"))
}

func TestRecentFilters(t *testing.T) {
	l := newTestLedger(t)

	for i := 0; i < 5; i++ {
		_, err := l.RecordDecision(&Record{Actor: "alpha", DecisionType: "content_boost", Chosen: "go"})
		require.NoError(t, err)
	}
	_, err := l.RecordDecision(&Record{Actor: "beta", DecisionType: "budget_shift", Chosen: "hold"})
	require.NoError(t, err)

	recent := l.Recent(3)
	require.Len(t, recent, 3)
	// Свежие первыми
	assert.Equal(t, "beta", recent[0].Actor)

	assert.Len(t, l.RecentByType("content_boost", 0), 5)
	assert.Len(t, l.RecentByActor("beta", 0), 1)

	byType, byActor := l.Counts()
	assert.Equal(t, int64(5), byType["content_boost"])
	assert.Equal(t, int64(1), byActor["beta"])
}

func TestCriticalDecisionsFilter(t *testing.T) {
	l := newTestLedger(t)
	l.SetCriticalTypes(map[string]struct{}{"emergency_stop": {}})

	_, err := l.RecordDecision(&Record{Actor: "a", DecisionType: "content_boost", Chosen: "x", RiskScore: 0.2})
	require.NoError(t, err)
	_, err = l.RecordDecision(&Record{Actor: "a", DecisionType: "emergency_stop", Chosen: "stop", RiskScore: 0.1})
	require.NoError(t, err)
	_, err = l.RecordDecision(&Record{Actor: "a", DecisionType: "bulk_rollout", Chosen: "go", RiskScore: 0.9})
	require.NoError(t, err)

	crit := l.CriticalDecisions(24)
	require.Len(t, crit, 2)
	// По типу и по риску, обычное решение отфильтровано
	types := []string{crit[0].DecisionType, crit[1].DecisionType}
	assert.Contains(t, types, "emergency_stop")
	assert.Contains(t, types, "bulk_rollout")
}

func TestExportCSV(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.RecordDecision(&Record{
		Actor: "a", DecisionType: "t", Chosen: "x",
		Confidence: 0.9, RiskScore: 0.3, ValidatedBy: "rules",
	})
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, l.WriteCSV(&sb, l.Recent(0)))

	rows, err := csv.NewReader(strings.NewReader(sb.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{
		"decision_id", "timestamp", "actor", "decision_type", "chosen",
		"confidence", "risk_score", "validated_by", "execution_status", "hash",
	}, rows[0])
	assert.Equal(t, "a", rows[1][2])
	assert.Equal(t, "0.9000", rows[1][5])
	assert.Equal(t, "pending", rows[1][8])
}

func TestFingerprintDetectsTampering(t *testing.T) {
	l := newTestLedger(t)

	id, err := l.RecordDecision(&Record{Actor: "a", DecisionType: "t", Chosen: "x"})
	require.NoError(t, err)

	rec := l.GetDecision(id)
	require.NotNil(t, rec)
	require.True(t, rec.VerifyFingerprint())

	rec.Actor = "someone-else"
	assert.False(t, rec.VerifyFingerprint())
}
