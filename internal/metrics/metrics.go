// Package metrics exposes run and scan counters on a per-instance prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scan outcomes.
const (
	ScanCompleted = "completed"
	ScanAborted   = "aborted"
	ScanRejected  = "rejected"
)

type Metrics struct {
	registry *prometheus.Registry

	runs           *prometheus.CounterVec
	scans          *prometheus.CounterVec
	scanSpots      prometheus.Counter
	historyRecords prometheus.Gauge
	oracleDuration prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tuner_runs_total",
			Help: "Simulation runs by outcome",
		}, []string{"outcome"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tuner_scans_total",
			Help: "Parameter scans by outcome",
		}, []string{"outcome"}),
		scanSpots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tuner_scan_spots_total",
			Help: "Scan spots generated by accepted scans",
		}),
		historyRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tuner_history_records",
			Help: "Records currently held in the run history",
		}),
		oracleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tuner_oracle_duration_seconds",
			Help:    "Wall time of one oracle evaluation",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
	reg.MustRegister(
		m.runs, m.scans, m.scanSpots, m.historyRecords, m.oracleDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Run(ok bool) {
	if ok {
		m.runs.WithLabelValues("ok").Inc()
		return
	}
	m.runs.WithLabelValues("failed").Inc()
}

func (m *Metrics) Scan(outcome string, spots int) {
	m.scans.WithLabelValues(outcome).Inc()
	if spots > 0 {
		m.scanSpots.Add(float64(spots))
	}
}

func (m *Metrics) HistorySize(n int) { m.historyRecords.Set(float64(n)) }

func (m *Metrics) ObserveOracle(seconds float64) { m.oracleDuration.Observe(seconds) }

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
