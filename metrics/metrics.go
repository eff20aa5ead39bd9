// Package metrics exposes this transport's Prometheus instrumentation,
// grounded on the prometheus/client_golang usage found in the retrieval
// pack's sockstats repo: a small set of package-level collectors
// registered against a caller-supplied registry rather than the global
// default, so a server embedding this transport controls its own
// /metrics endpoint.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups every metric this transport exports. Construct one
// with New and register it with a prometheus.Registerer. The segment,
// retransmit and duplicate-ACK counters take each connection's totals
// when that connection closes.
type Collectors struct {
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	SegmentsSent      prometheus.Counter
	SegmentsReceived  prometheus.Counter
	SegmentsDropped   *prometheus.CounterVec
	Retransmits       prometheus.Counter
	DupAckEvents      prometheus.Counter
}

// New constructs a Collectors and registers every metric with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rudp",
			Name:      "connections_active",
			Help:      "Number of connection control blocks currently tracked by the demultiplexer.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rudp",
			Name:      "connections_total",
			Help:      "Total connections accepted since startup.",
		}),
		SegmentsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rudp",
			Name:      "segments_sent_total",
			Help:      "Total segments transmitted.",
		}),
		SegmentsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rudp",
			Name:      "segments_received_total",
			Help:      "Total valid segments received.",
		}),
		SegmentsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rudp",
			Name:      "segments_dropped_total",
			Help:      "Total inbound datagrams dropped before reaching a CCB, by reason.",
		}, []string{"reason"}),
		Retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rudp",
			Name:      "retransmits_total",
			Help:      "Total segment retransmissions, timeout and fast-retransmit combined.",
		}),
		DupAckEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rudp",
			Name:      "dup_ack_events_total",
			Help:      "Total duplicate-ACK observations across all connections.",
		}),
	}
	reg.MustRegister(
		c.ConnectionsActive,
		c.ConnectionsTotal,
		c.SegmentsSent,
		c.SegmentsReceived,
		c.SegmentsDropped,
		c.Retransmits,
		c.DupAckEvents,
	)
	return c
}
