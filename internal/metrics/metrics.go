package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// syncRunsTotal counts sync runs by mode (incremental, full) and outcome
	// (succeeded, partial, failed)
	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chimera",
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Total sync runs by mode and outcome",
	}, []string{"mode", "outcome"})

	syncItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chimera",
		Subsystem: "sync",
		Name:      "items_total",
		Help:      "Items processed by sync runs, by result",
	}, []string{"result"})

	syncDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chimera",
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Sync run duration",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"mode"})

	// queryStageSeconds measures each retrieval stage.
	// Labels: stage (intent, recall, confidence, assemble)
	queryStageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chimera",
		Subsystem: "query",
		Name:      "stage_seconds",
		Help:      "Retrieval pipeline stage latency",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stage"})

	// queryOutcomesTotal counts queries by outcome (ok, empty, degraded, error)
	queryOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chimera",
		Subsystem: "query",
		Name:      "outcomes_total",
		Help:      "Queries by outcome",
	}, []string{"outcome"})
)

// RecordSyncRun records the outcome of one sync run
func RecordSyncRun(mode, outcome string, upserted, failed, deleted int, d time.Duration) {
	syncRunsTotal.WithLabelValues(mode, outcome).Inc()
	syncItemsTotal.WithLabelValues("upserted").Add(float64(upserted))
	syncItemsTotal.WithLabelValues("failed").Add(float64(failed))
	syncItemsTotal.WithLabelValues("deleted").Add(float64(deleted))
	syncDurationSeconds.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveStage records the latency of one pipeline stage
func ObserveStage(stage string, d time.Duration) {
	queryStageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordQuery counts a finished query
func RecordQuery(outcome string) {
	queryOutcomesTotal.WithLabelValues(outcome).Inc()
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
