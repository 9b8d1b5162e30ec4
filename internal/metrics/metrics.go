// Package metrics exposes monitor counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "influence_monitor"

// Metrics holds every collector registered by the monitor.
type Metrics struct {
	registry *prometheus.Registry

	Transactions   prometheus.Counter
	Findings       *prometheus.CounterVec // kind, severity
	PhaseFailures  *prometheus.CounterVec // phase, kind
	SinkFailures   prometheus.Counter
	ProcessedBlock prometheus.Gauge
	HeadBlock      prometheus.Gauge
	Proposals      prometheus.Gauge
	Votes          prometheus.Gauge
	Reconnects     prometheus.Counter
}

// New registers the monitor metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Governance transactions processed.",
		}),
		Findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Findings emitted by kind and severity.",
		}, []string{"kind", "severity"}),
		PhaseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_failures_total",
			Help:      "Failed processing phases by phase and error kind.",
		}, []string{"phase", "kind"}),
		SinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Failed finding deliveries.",
		}),
		ProcessedBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processed_block",
			Help:      "Last fully processed block.",
		}),
		HeadBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "head_block",
			Help:      "Latest block reported by the node.",
		}),
		Proposals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_proposals",
			Help:      "Proposals held in the store.",
		}),
		Votes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_votes",
			Help:      "Votes held in the store.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "head_reconnects_total",
			Help:      "Reconnects of the head subscription.",
		}),
	}
	m.registry.MustRegister(
		m.Transactions,
		m.Findings,
		m.PhaseFailures,
		m.SinkFailures,
		m.ProcessedBlock,
		m.HeadBlock,
		m.Proposals,
		m.Votes,
		m.Reconnects,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry holding the monitor metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
