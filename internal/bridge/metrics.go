package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла полная оценка решения
	EvaluationDuration *prometheus.HistogramVec

	// Traffic: общее кол-во оценок по типам и вердиктам
	EvaluationsTotal *prometheus.CounterVec

	// Текущий балл агрессивности (0-1)
	AggressivenessScore prometheus.Gauge

	// Срабатывания троттлинга
	ThrottlesTotal prometheus.Counter

	// Записи в журнал решений
	LedgerWritesTotal prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		EvaluationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "governor_evaluation_duration_seconds",
			Help:    "Histogram of decision evaluation latencies.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"outcome"}),

		EvaluationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "governor_evaluations_total",
			Help: "Total number of evaluated decisions.",
		}, []string{"decision_type", "outcome"}),

		AggressivenessScore: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "governor_aggressiveness_score",
			Help: "Most recent global aggressiveness score.",
		}),

		ThrottlesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "governor_throttles_total",
			Help: "Total number of throttled evaluations.",
		}),

		LedgerWritesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "governor_ledger_writes_total",
			Help: "Total number of decision records written.",
		}),
	}
}
