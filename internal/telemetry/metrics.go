package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/conveyr/internal/domain"
)

// Metrics — prometheus-коллекторы Conveyr.
//
// Регистрируются в default registry через promauto; сервер и агент
// отдают их стандартным promhttp.Handler.
type Metrics struct {
	// RunsTotal — количество завершённых runs по финальному статусу.
	RunsTotal *prometheus.CounterVec

	// StageOutcomes — количество stages по финальному состоянию.
	StageOutcomes *prometheus.CounterVec

	// StageDuration — длительность выполнения stages в секундах.
	StageDuration *prometheus.HistogramVec

	// ActiveRuns — количество runs в обработке прямо сейчас.
	ActiveRuns prometheus.Gauge
}

// NewMetrics создаёт и регистрирует коллекторы.
// Вызывается один раз на процесс.
func NewMetrics() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conveyr",
			Name:      "runs_total",
			Help:      "Completed runs by final status.",
		}, []string{"status"}),

		StageOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conveyr",
			Name:      "stage_outcomes_total",
			Help:      "Finished stages by outcome.",
		}, []string{"outcome"}),

		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "conveyr",
			Name:      "stage_duration_seconds",
			Help:      "Stage execution duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),

		ActiveRuns: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "conveyr",
			Name:      "active_runs",
			Help:      "Runs currently being dispatched.",
		}),
	}
}

// ObserveRun фиксирует завершение run.
func (m *Metrics) ObserveRun(status domain.RunStatus) {
	m.RunsTotal.WithLabelValues(string(status)).Inc()
}

// ObserveStage фиксирует терминальный результат stage.
func (m *Metrics) ObserveStage(result *domain.StageResult) {
	m.StageOutcomes.WithLabelValues(string(result.Outcome)).Inc()
	if d := result.Duration(); d > 0 {
		m.StageDuration.WithLabelValues(result.Stage).Observe(d.Seconds())
	}
}
