package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/infra"
)

func newTestClassifier() *Classifier {
	return NewClassifier(infra.ClassifierConfig{}, zap.NewNop())
}

func TestMicroDecision(t *testing.T) {
	c := newTestClassifier()

	res := c.Classify("content_boost", 0.1, 0.05, nil)

	assert.Equal(t, LevelMicro, res.Level)
	assert.False(t, res.RequiresLedger)
	assert.False(t, res.RequiresSimulation)
	assert.False(t, res.RequiresLLMValidation)
	assert.False(t, res.RequiresHumanApproval)
}

func TestStandardDecision(t *testing.T) {
	c := newTestClassifier()

	res := c.Classify("schedule_change", 0.3, 0.2, nil)

	assert.Equal(t, LevelStandard, res.Level)
	assert.True(t, res.RequiresLedger)
	assert.False(t, res.RequiresSimulation)
	assert.False(t, res.RequiresHumanApproval)
}

func TestCriticalByAccountsAffected(t *testing.T) {
	c := newTestClassifier()

	res := c.Classify("account_activation", 0.6, 0.4, map[string]interface{}{
		"accounts_affected": 10,
	})

	assert.Equal(t, LevelCritical, res.Level)
	assert.True(t, res.RequiresLedger)
	assert.True(t, res.RequiresSimulation)
	assert.True(t, res.RequiresLLMValidation)
	assert.False(t, res.RequiresHumanApproval)
}

func TestStructuralByScale(t *testing.T) {
	c := newTestClassifier()

	res := c.Classify("bulk_rollout", 0.4, 0.3, map[string]interface{}{
		"accounts_affected": 80,
	})

	assert.Equal(t, LevelStructural, res.Level)
	assert.True(t, res.RequiresLedger)
	assert.True(t, res.RequiresSimulation)
	assert.True(t, res.RequiresLLMValidation)
	assert.True(t, res.RequiresHumanApproval)
}

func TestIrreversibleEscalates(t *testing.T) {
	c := newTestClassifier()

	// Необратимое с умеренным риском — CRITICAL
	res := c.Classify("content_purge", 0.3, 0.1, map[string]interface{}{
		"irreversible": true,
	})
	assert.Equal(t, LevelCritical, res.Level)

	// Необратимое с риском выше 0.5 — STRUCTURAL
	res = c.Classify("content_purge", 0.6, 0.1, map[string]interface{}{
		"irreversible": true,
	})
	assert.Equal(t, LevelStructural, res.Level)
}

func TestFinancialThresholds(t *testing.T) {
	c := newTestClassifier()

	res := c.Classify("budget_shift", 0.1, 0.05, map[string]interface{}{
		"financial_impact": 600.0,
	})
	assert.Equal(t, LevelCritical, res.Level)

	res = c.Classify("budget_shift", 0.1, 0.05, map[string]interface{}{
		"financial_impact": 6000.0,
	})
	assert.Equal(t, LevelStructural, res.Level)
}

// Принудительные переопределения бьют любой скоринг.
func TestForcedOverrides(t *testing.T) {
	c := newTestClassifier()

	res := c.Classify("emergency_stop", 0.05, 0.01, nil)
	assert.Equal(t, LevelCritical, res.Level)

	res = c.Classify("kill_switch_activation", 0.05, 0.01, nil)
	assert.Equal(t, LevelStructural, res.Level)
	assert.True(t, res.RequiresHumanApproval)
}

// Обязательства монотонно растут с тиром: более высокий тир включает
// все обязательства более низких.
func TestObligationsAreMonotone(t *testing.T) {
	c := newTestClassifier()

	obligations := func(r Result) [4]bool {
		return [4]bool{r.RequiresLedger, r.RequiresSimulation, r.RequiresLLMValidation, r.RequiresHumanApproval}
	}

	micro := obligations(c.Classify("a", 0.05, 0.05, nil))
	standard := obligations(c.Classify("b", 0.3, 0.2, nil))
	critical := obligations(c.Classify("c", 0.6, 0.4, nil))
	structural := obligations(c.Classify("d", 0.9, 0.8, nil))

	ladder := [][4]bool{micro, standard, critical, structural}
	for i := 1; i < len(ladder); i++ {
		for j := 0; j < 4; j++ {
			if ladder[i-1][j] {
				assert.True(t, ladder[i][j], "obligation %d lost between tiers %d and %d", j, i-1, i)
			}
		}
	}
}

func TestRiskFactorsIndependentOfTier(t *testing.T) {
	c := newTestClassifier()

	// Тип форсирует CRITICAL, но факторы набираются из фактического контекста
	res := c.Classify("account_suspension", 0.9, 0.8, map[string]interface{}{
		"accounts_affected": 12,
		"irreversible":      true,
		"financial_impact":  900.0,
	})

	assert.Equal(t, LevelCritical, res.Level)
	assert.Len(t, res.RiskFactors, 5)
}

func TestCriticalityMapping(t *testing.T) {
	assert.Equal(t, "micro", LevelMicro.Criticality())
	assert.Equal(t, "standard", LevelStandard.Criticality())
	assert.Equal(t, "critical", LevelCritical.Criticality())
	assert.Equal(t, "structural", LevelStructural.Criticality())
}

func TestTierCounts(t *testing.T) {
	c := newTestClassifier()

	c.Classify("a", 0.05, 0.05, nil)
	c.Classify("b", 0.05, 0.05, nil)
	c.Classify("c", 0.9, 0.8, nil)

	counts := c.TierCounts()
	assert.Equal(t, int64(2), counts[LevelMicro])
	assert.Equal(t, int64(1), counts[LevelStructural])
}
