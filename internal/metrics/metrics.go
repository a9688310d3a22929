// Registers:
//
//	feedflow_events_decoded_total
//	feedflow_events_skipped_total
//	feedflow_events_published_total
//	feedflow_reconnects_total
//	feedflow_connected_clients
//	go_* and process_* system metrics
//
// Exposes them through Handler for the dashboard /metrics endpoint
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once             sync.Once
	eventsDecoded    *prometheus.CounterVec
	eventsSkipped    *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	reconnects       prometheus.Counter
	connectedClients prometheus.Gauge
)

func Init() {
	once.Do(func() {
		eventsDecoded = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedflow_events_decoded_total",
				Help: "Number of upstream frames decoded into events",
			},
			[]string{"symbol"},
		)

		eventsSkipped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedflow_events_skipped_total",
				Help: "Number of upstream frames skipped as not decodable",
			},
			[]string{"reason"},
		)

		eventsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedflow_events_published_total",
				Help: "Number of events broadcast to downstream clients",
			},
			[]string{"symbol"},
		)

		reconnects = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "feedflow_reconnects_total",
				Help: "Number of upstream websocket reconnect attempts",
			},
		)

		connectedClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "feedflow_connected_clients",
				Help: "Number of currently connected downstream clients",
			},
		)

		_ = prometheus.Register(eventsDecoded)
		_ = prometheus.Register(eventsSkipped)
		_ = prometheus.Register(eventsPublished)
		_ = prometheus.Register(reconnects)
		_ = prometheus.Register(connectedClients)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler returns the Prometheus scrape handler for the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncrementDecoded increases the decoded event counter for a given symbol.
func IncrementDecoded(symbol string) {
	if eventsDecoded != nil {
		eventsDecoded.WithLabelValues(symbol).Inc()
	}
}

// IncrementSkipped increases the skipped frame counter for a given reason.
func IncrementSkipped(reason string) {
	if eventsSkipped != nil {
		eventsSkipped.WithLabelValues(reason).Inc()
	}
}

// IncrementPublished increases the published event counter for a given symbol.
func IncrementPublished(symbol string) {
	if eventsPublished != nil {
		eventsPublished.WithLabelValues(symbol).Inc()
	}
}

// IncrementReconnect increases the upstream reconnect counter.
func IncrementReconnect() {
	if reconnects != nil {
		reconnects.Inc()
	}
}

// SetConnectedClients records the current downstream client count.
func SetConnectedClients(n int) {
	if connectedClients != nil {
		connectedClients.Set(float64(n))
	}
}
