package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Deliveries counts telemetry delivery attempts by outcome
	// (delivered, failed, redelivered, redelivery_failed).
	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deeplearn_outbox_deliveries_total",
			Help: "Telemetry delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Persisted counts events written to the retry slot.
	Persisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deeplearn_outbox_persisted_total",
			Help: "Undelivered telemetry events written to the retry slot",
		},
	)

	// Submissions counts accepted answer submissions by session tag and correctness.
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deeplearn_submissions_total",
			Help: "Accepted answer submissions",
		},
		[]string{"session_tag", "correct"},
	)

	// LiveSessions is the number of sessions held by the API.
	LiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "deeplearn_live_sessions",
			Help: "Sessions currently held in memory by the API",
		},
	)

	// Ingested counts events received by the collector by result (stored, duplicate, rejected, throttled).
	Ingested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deeplearn_collector_events_total",
			Help: "Telemetry events received by the collector",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(Deliveries, Persisted, Submissions, LiveSessions, Ingested)
	})
}

// Handler returns the Prometheus metrics handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
