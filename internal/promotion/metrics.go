package promotion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики промоушенов.
var (
	// runsTotal — завершённые запуски по исходу (committed, partial, declined, noop, busy, error).
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cc_promotion_runs_total",
			Help: "Количество запусков промоушена по исходу",
		},
		[]string{"outcome"},
	)

	// phaseFailuresTotal — неудачные вызовы Record Store по фазам.
	phaseFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cc_promotion_phase_failures_total",
			Help: "Количество неудачных вызовов Record Store в фазах промоушена",
		},
		[]string{"phase"},
	)

	// runDuration — длительность разрушающей и созидательной фаз вместе с обновлением.
	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cc_promotion_duration_seconds",
			Help:    "Длительность выполнения промоушена в секундах",
			Buckets: prometheus.DefBuckets,
		},
	)

	// recoveredTotal — промоушены, доведённые до конца после рестарта.
	recoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cc_promotion_recovered_total",
			Help: "Количество прерванных промоушенов, восстановленных по журналу намерений",
		},
	)
)
