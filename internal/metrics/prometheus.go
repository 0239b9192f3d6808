package metrics

import (
	"time"

	"github.com/kritsadaskt/ananta-custom-diamond/internal/diamonds"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeInserted = "inserted"
	outcomeUpdated  = "updated"
	outcomeError    = "error"

	RequestStatusSuccess = "success"
	RequestStatusError   = "error"
)

// SyncMetrics exports catalog sync and read counters.
type SyncMetrics struct {
	syncRuns        *prometheus.CounterVec
	syncRows        *prometheus.CounterVec
	syncDuration    prometheus.Histogram
	lastSyncSeconds prometheus.Gauge
	catalogRequests *prometheus.CounterVec
}

func NewSyncMetrics(registerer prometheus.Registerer) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &SyncMetrics{
		syncRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ananta_diamond_sync_runs_total",
				Help: "Total number of catalog sync runs by terminal status",
			},
			[]string{"status"},
		),
		syncRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ananta_diamond_sync_rows_total",
				Help: "Total number of feed elements processed by outcome",
			},
			[]string{"outcome"},
		),
		syncDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ananta_diamond_sync_duration_seconds",
				Help:    "Duration of catalog sync runs in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		lastSyncSeconds: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ananta_diamond_last_completed_sync_timestamp_seconds",
				Help: "Unix time of the last completed catalog sync",
			},
		),
		catalogRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ananta_diamond_catalog_requests_total",
				Help: "Total number of catalog read requests by status",
			},
			[]string{"status"},
		),
	}
}

func (m *SyncMetrics) ObserveSync(run diamonds.SyncRun, duration time.Duration) {
	m.syncRuns.WithLabelValues(string(run.Status)).Inc()
	m.syncRows.WithLabelValues(outcomeInserted).Add(float64(run.Inserted))
	m.syncRows.WithLabelValues(outcomeUpdated).Add(float64(run.Updated))
	m.syncRows.WithLabelValues(outcomeError).Add(float64(run.Errors))
	m.syncDuration.Observe(duration.Seconds())
	if run.Status == diamonds.SyncStatusCompleted {
		m.lastSyncSeconds.Set(float64(run.FinishedAtSeconds))
	}
}

func (m *SyncMetrics) ObserveCatalogRequest(err error) {
	status := RequestStatusSuccess
	if err != nil {
		status = RequestStatusError
	}
	m.catalogRequests.WithLabelValues(status).Inc()
}

var _ diamonds.SyncObserver = (*SyncMetrics)(nil)
