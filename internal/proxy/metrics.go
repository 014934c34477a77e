package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	kindHTTP    = "http"
	kindConnect = "connect"

	directionUpstream   = "upstream"
	directionDownstream = "downstream"
)

type metrics struct {
	requests          *prometheus.CounterVec
	blocked           *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	errors            *prometheus.CounterVec
	activeConnections prometheus.Gauge
	relayedBytes      *prometheus.CounterVec
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	factory := promauto.With(registerer)
	return &metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portcullis",
			Name:      "requests_total",
			Help:      "Parsed client requests by kind.",
		}, []string{"kind"}),
		blocked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portcullis",
			Name:      "blocked_requests_total",
			Help:      "Requests refused because the host is blocked.",
		}, []string{"kind"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portcullis",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portcullis",
			Name:      "errors_total",
			Help:      "Connections that ended in an error, by type.",
		}, []string{"type"}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "portcullis",
			Name:      "active_connections",
			Help:      "Client connections currently being handled.",
		}),
		relayedBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portcullis",
			Name:      "relayed_bytes_total",
			Help:      "Bytes relayed between clients and origins, by direction.",
		}, []string{"direction"}),
	}
}
