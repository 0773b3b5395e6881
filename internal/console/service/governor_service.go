package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/bridge"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/domain"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/ledger"
	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/monitor"
)

// ArchiveProvider описывает требования сервиса к полноисторийному архиву.
// Реализуется Postgres-репозиторием; nil означает, что архив не подключен.
type ArchiveProvider interface {
	FetchDecisions(ctx context.Context, actor, decisionType string, from, to time.Time, limit int) ([]ledger.Record, error)
}

// GovernorService — фасад конвейера для HTTP-консоли.
type GovernorService struct {
	bridge  *bridge.Bridge
	archive ArchiveProvider
	logger  *zap.Logger
}

func NewGovernorService(b *bridge.Bridge, archive ArchiveProvider, logger *zap.Logger) *GovernorService {
	return &GovernorService{
		bridge:  b,
		archive: archive,
		logger:  logger.Named("governor-service"),
	}
}

// Evaluate прогоняет решение через конвейер.
func (s *GovernorService) Evaluate(ctx context.Context, req domain.EvaluationRequest) (domain.GovernanceEvaluation, error) {
	if req.DecisionType == "" || req.Actor == "" {
		return domain.GovernanceEvaluation{}, fmt.Errorf("decision_type and actor are required")
	}
	return s.bridge.EvaluateDecision(ctx, req)
}

// ReportExecution фиксирует итог исполнения. false — запись не найдена
// или переход недопустим.
func (s *GovernorService) ReportExecution(decisionID string, report domain.ExecutionReport) bool {
	return s.bridge.RecordExecution(decisionID, report.Success, report.Result)
}

// Reverse откатывает решение.
func (s *GovernorService) Reverse(decisionID, reason string) bool {
	return s.bridge.ReverseDecision(decisionID, reason)
}

// GetDecision — точечный поиск по журналу (кэш + файл).
func (s *GovernorService) GetDecision(id string) *ledger.Record {
	return s.bridge.Ledger().GetDecision(id)
}

// RecentDecisions — кэш-выборка с необязательными фильтрами.
// Видит только последние записи; полная история — через Archive.
func (s *GovernorService) RecentDecisions(decisionType, actor string, limit int) []ledger.Record {
	led := s.bridge.Ledger()
	switch {
	case decisionType != "":
		return led.RecentByType(decisionType, limit)
	case actor != "":
		return led.RecentByActor(actor, limit)
	default:
		return led.Recent(limit)
	}
}

// CriticalDecisions — критические решения за последние hours часов.
func (s *GovernorService) CriticalDecisions(hours int) []ledger.Record {
	if hours <= 0 {
		hours = 24
	}
	return s.bridge.Ledger().CriticalDecisions(hours)
}

// ArchiveDecisions — полноисторийная выборка из Postgres-зеркала.
func (s *GovernorService) ArchiveDecisions(ctx context.Context, actor, decisionType string, from, to time.Time, limit int) ([]ledger.Record, error) {
	if s.archive == nil {
		return nil, fmt.Errorf("decision archive is not configured")
	}
	return s.archive.FetchDecisions(ctx, actor, decisionType, from, to, limit)
}

// ExportCSV пишет кэш журнала в writer (HTTP-ответ).
func (s *GovernorService) ExportCSV(w io.Writer) error {
	led := s.bridge.Ledger()
	rows := led.Recent(0)
	// Recent отдает свежие первыми; CSV удобнее в хронологии
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return led.WriteCSV(w, rows)
}

// Aggressiveness — текущий балл и тренд для дашборда.
func (s *GovernorService) Aggressiveness(trendN int) (current *monitor.Score, trend []domain.TrendPoint) {
	mon := s.bridge.Monitor()
	current = mon.CurrentScore()

	for _, sc := range mon.Trend(trendN) {
		trend = append(trend, domain.TrendPoint{
			Timestamp: sc.Timestamp.Format(time.RFC3339),
			Score:     sc.GlobalScore,
			Level:     string(sc.Level),
		})
	}
	return current, trend
}

// Stats — сводка моста для дашборда.
func (s *GovernorService) Stats() domain.GovernorStats {
	return s.bridge.Stats()
}
