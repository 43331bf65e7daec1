// Package esixmetrics exposes esix's Prometheus counters (SPEC_FULL.md §0,
// the prometheus/client_golang dependency). It is grounded on the
// teacher's internal/prometheus Server, generalized from DNS-query counters
// to frame/datagram/segment counters and a registry-backed HTTP handler.
package esixmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds esix's counters, all registered against one private
// registry so that multiple Core instances in a process (e.g. in tests)
// don't collide on metric names.
type Metrics struct {
	registry *prometheus.Registry

	FramesReceived     prometheus.Counter
	FramesDropped      *prometheus.CounterVec
	DatagramsReceived  *prometheus.CounterVec
	DatagramsDropped   *prometheus.CounterVec
	ICMPv6Sent         *prometheus.CounterVec
	NeighborCacheSize  prometheus.Gauge
	TCPRetransmits     prometheus.Counter
	TCPAborts          prometheus.Counter
}

// New creates and registers esix's metric set under namespace.
func New(namespace string) (m *Metrics) {
	registry := prometheus.NewRegistry()

	m = &Metrics{
		registry: registry,
		FramesReceived: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ethernet",
			Name:      "frames_received_total",
			Help:      "Total number of Ethernet frames taken off the ingress queue.",
		}),
		FramesDropped: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ethernet",
			Name:      "frames_dropped_total",
			Help:      "Total number of frames dropped, by reason.",
		}, []string{"reason"}),
		DatagramsReceived: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipv6",
			Name:      "datagrams_received_total",
			Help:      "Total number of IPv6 datagrams accepted, by next header.",
		}, []string{"next_header"}),
		DatagramsDropped: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipv6",
			Name:      "datagrams_dropped_total",
			Help:      "Total number of IPv6 datagrams dropped, by reason.",
		}, []string{"reason"}),
		ICMPv6Sent: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "icmpv6",
			Name:      "messages_sent_total",
			Help:      "Total number of ICMPv6 messages sent, by type.",
		}, []string{"type"}),
		NeighborCacheSize: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "icmpv6",
			Name:      "neighbor_cache_size",
			Help:      "Current number of neighbor-cache entries.",
		}),
		TCPRetransmits: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "retransmits_total",
			Help:      "Total number of segment retransmissions.",
		}),
		TCPAborts: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "aborts_total",
			Help:      "Total number of connections aborted after exhausting retransmission.",
		}),
	}

	return m
}

// Handler returns the HTTP handler serving this Metrics' registry in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
