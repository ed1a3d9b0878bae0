// File: metrics/metrics.go
// Package metrics exposes reactor/connection-pool/master state via
// prometheus/client_golang (SPEC_FULL.md §4.13), the pack's metrics
// dependency. Each WorkerMetrics owns its own registry and exposition
// handler, since per-process state (accept_disabled, connection slot
// usage) is meaningless aggregated blindly across workers with different
// loads. Neither the master nor the worker entry point creates one or
// serves its handler.
//
// Author: reactorcore contributors
// License: Apache-2.0
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics is the set of gauges/counters one worker process
// publishes.
type WorkerMetrics struct {
	reg *prometheus.Registry

	ConnectionsActive prometheus.Gauge
	ConnectionsFree   prometheus.Gauge
	AcceptDisabled    prometheus.Gauge
	AcceptTotal       prometheus.Counter
	BytesRead         prometheus.Counter
	BytesWritten      prometheus.Counter
	ReactorIterations prometheus.Counter
}

// NewWorkerMetrics builds and registers a fresh metric set labeled with
// the worker's slot index.
func NewWorkerMetrics(slot int) *WorkerMetrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"worker_slot": strconv.Itoa(slot)}

	m := &WorkerMetrics{
		reg: reg,
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reactorcore", Subsystem: "conn", Name: "active",
			Help: "Connections currently acquired from the fixed pool.", ConstLabels: labels,
		}),
		ConnectionsFree: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reactorcore", Subsystem: "conn", Name: "free",
			Help: "Connection slots currently free.", ConstLabels: labels,
		}),
		AcceptDisabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reactorcore", Subsystem: "reactor", Name: "accept_disabled",
			Help: "Current accept_disabled load-shedding counter.", ConstLabels: labels,
		}),
		AcceptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactorcore", Subsystem: "reactor", Name: "accept_total",
			Help: "Total connections accepted.", ConstLabels: labels,
		}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactorcore", Subsystem: "conn", Name: "bytes_read_total",
			Help: "Total bytes read across all connections.", ConstLabels: labels,
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactorcore", Subsystem: "conn", Name: "bytes_written_total",
			Help: "Total bytes written across all connections.", ConstLabels: labels,
		}),
		ReactorIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reactorcore", Subsystem: "reactor", Name: "iterations_total",
			Help: "Total reactor main-loop iterations.", ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		m.ConnectionsActive, m.ConnectionsFree, m.AcceptDisabled,
		m.AcceptTotal, m.BytesRead, m.BytesWritten, m.ReactorIterations,
	)
	return m
}

// Handler returns an http.Handler exposing this worker's metrics in the
// Prometheus exposition format.
func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
