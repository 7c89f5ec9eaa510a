// Package gwmetrics holds the gateway's Prometheus registry: adapter
// lifecycle counters, distributor gauges, and session frame counters.
package gwmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the gateway exposes on /metrics.
type Registry struct {
	AdapterEvents *prometheus.CounterVec

	DistributorSubscribers      prometheus.Gauge
	DistributorTrackedInstruments prometheus.Gauge
	DistributorSnapshots        *prometheus.CounterVec

	SessionFramesSent   *prometheus.CounterVec
	SessionFramesDropped *prometheus.CounterVec
	SessionsActive      prometheus.Gauge
}

// New builds and registers a fresh Registry. Each process constructs
// exactly one; tests that need isolation use prometheus.NewRegistry
// indirectly via NewWithRegisterer.
func New() *Registry {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer builds a Registry against an explicit registerer, so
// unit tests can avoid colliding with the process-global default
// registry across test runs.
func NewWithRegisterer(reg prometheus.Registerer) *Registry {
	r := &Registry{
		AdapterEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qamdgateway_adapter_events_total",
				Help: "Total upstream adapter lifecycle events by broker and event kind.",
			},
			[]string{"broker", "event"},
		),
		DistributorSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "qamdgateway_distributor_subscribers",
				Help: "Currently registered WebSocket client count.",
			},
		),
		DistributorTrackedInstruments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "qamdgateway_distributor_tracked_instruments",
				Help: "Number of instruments with at least one subscriber.",
			},
		),
		DistributorSnapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qamdgateway_distributor_snapshots_total",
				Help: "Total snapshots processed by source broker.",
			},
			[]string{"broker"},
		),
		SessionFramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qamdgateway_session_frames_sent_total",
				Help: "Total outbound frames sent by dialect.",
			},
			[]string{"dialect"},
		),
		SessionFramesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qamdgateway_session_frames_dropped_total",
				Help: "Total outbound frames dropped due to a full outbox.",
			},
			[]string{"reason"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "qamdgateway_sessions_active",
				Help: "Currently open WebSocket sessions.",
			},
		),
	}

	reg.MustRegister(
		r.AdapterEvents,
		r.DistributorSubscribers,
		r.DistributorTrackedInstruments,
		r.DistributorSnapshots,
		r.SessionFramesSent,
		r.SessionFramesDropped,
		r.SessionsActive,
	)

	return r
}

// Handler returns the HTTP handler serving the default process
// registry; it is independent of which Registerer a given Registry was
// built with, matching promhttp.Handler's own process-global scope.
func Handler() http.Handler {
	return promhttp.Handler()
}
