// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package httptransport

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kraklabs/changesd/internal/streamreader"
)

// Metrics holds the counters and gauges exposed at /metrics.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	lockConflicts    prometheus.Counter
	activeStreams    prometheus.GaugeFunc
	backpressureGaug prometheus.GaugeFunc
}

// NewMetrics registers a fresh set of collectors against a private registry
// so tests can construct independent instances without a global-registry
// "duplicate metrics collector registration" panic.
func NewMetrics(monitor *streamreader.Monitor) *Metrics {
	reg := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "changesd_http_requests_total",
		Help: "Total HTTP requests handled, by path and status.",
	}, []string{"path", "status"})

	lockConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "changesd_lock_conflicts_total",
		Help: "Total ELOCKED responses returned to clients.",
	})

	activeStreams := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "changesd_active_streams",
		Help: "Number of artifact streams currently open.",
	}, func() float64 {
		if monitor == nil {
			return 0
		}
		return float64(monitor.ActiveCount())
	})

	backpressure := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "changesd_backpressure_level",
		Help: "Current memory-pressure level: 0=normal, 1=warning, 2=critical.",
	}, func() float64 {
		if monitor == nil {
			return 0
		}
		return float64(monitor.Level())
	})

	reg.MustRegister(requestsTotal, lockConflicts, activeStreams, backpressure)

	return &Metrics{
		registry:         reg,
		requestsTotal:    requestsTotal,
		lockConflicts:    lockConflicts,
		activeStreams:    activeStreams,
		backpressureGaug: backpressure,
	}
}

func (m *Metrics) observeRequest(path string, status int) {
	m.requestsTotal.WithLabelValues(path, httpStatusLabel(status)).Inc()
}

func (m *Metrics) observeError(code string) {
	if code == "ELOCKED" {
		m.lockConflicts.Inc()
	}
}

func httpStatusLabel(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "other"
	}
}
