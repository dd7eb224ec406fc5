// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters and gauges the order lifecycle core reports.
type Metrics struct {
	Transitions     *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
	FanoutDropped   prometheus.Counter
	SessionsActive  prometheus.Gauge
}

// New registers and returns the service metrics. reg may be
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickbite",
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Accepted order status transitions.",
		}, []string{"from", "to"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quickbite",
			Subsystem: "realtime",
			Name:      "events_published_total",
			Help:      "Realtime events published, by type.",
		}, []string{"type"}),
		FanoutDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quickbite",
			Subsystem: "realtime",
			Name:      "fanout_dropped_total",
			Help:      "Event pushes dropped because a session buffer was full.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quickbite",
			Subsystem: "realtime",
			Name:      "sessions_active",
			Help:      "Currently connected WebSocket sessions.",
		}),
	}
	reg.MustRegister(m.Transitions, m.EventsPublished, m.FanoutDropped, m.SessionsActive)
	return m
}

// Handler returns the /metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
