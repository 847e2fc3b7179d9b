// Package metrics collects per-run counters for the check pipeline and
// exports them once the run is over: to a node_exporter textfile, to a
// Pushgateway, or both. A single pass has no scrape window, so nothing is
// served over HTTP.
package metrics

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/hazz-dev/pingbot/internal/checker"
	"github.com/hazz-dev/pingbot/internal/version"
)

// RunMetrics holds the collectors for one pipeline run.
type RunMetrics struct {
	reg *prometheus.Registry

	checksTotal      *prometheus.CounterVec
	unsupportedTotal prometheus.Counter
	panicsTotal      prometheus.Counter
	deliveriesTotal  *prometheus.CounterVec
	probeDuration    *prometheus.HistogramVec
	serviceUp        *prometheus.GaugeVec
	buildInfo        *prometheus.GaugeVec
}

// New returns a fresh registry with all run collectors registered.
func New() *RunMetrics {
	reg := prometheus.NewRegistry()

	m := &RunMetrics{
		reg: reg,
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pingbot_checks_total",
			Help: "Completed service checks by type and outcome",
		}, []string{"type", "status"}),
		unsupportedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pingbot_unsupported_total",
			Help: "Enabled services skipped because their type has no prober",
		}),
		panicsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pingbot_checker_panics_total",
			Help: "Checkers that panicked and produced no status",
		}),
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pingbot_deliveries_total",
			Help: "Sink delivery attempts by result",
		}, []string{"result"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pingbot_probe_duration_seconds",
			Help:    "Probe latency by service type",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"type"}),
		serviceUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pingbot_service_up",
			Help: "Whether the service was reachable in the last run (1) or not (0)",
		}, []string{"service"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pingbot_build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"version", "commit"}),
	}
	reg.MustRegister(
		m.checksTotal,
		m.unsupportedTotal,
		m.panicsTotal,
		m.deliveriesTotal,
		m.probeDuration,
		m.serviceUp,
		m.buildInfo,
	)
	m.buildInfo.WithLabelValues(version.Version, version.Commit).Set(1)
	return m
}

// Registry exposes the underlying registry (for tests and custom exporters).
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.reg
}

// ObserveStatus records one completed check.
func (m *RunMetrics) ObserveStatus(st checker.Status) {
	typ := string(st.Service.Type)
	m.checksTotal.WithLabelValues(typ, st.Word()).Inc()
	m.probeDuration.WithLabelValues(typ).Observe(st.Latency.Seconds())
	up := 0.0
	if st.Up {
		up = 1
	}
	m.serviceUp.WithLabelValues(st.Service.Name).Set(up)
}

// ObserveUnsupported records a service skipped for an unsupported type.
func (m *RunMetrics) ObserveUnsupported() {
	m.unsupportedTotal.Inc()
}

// ObservePanic records a checker that panicked.
func (m *RunMetrics) ObservePanic() {
	m.panicsTotal.Inc()
}

// ObserveDelivery records one sink delivery attempt.
func (m *RunMetrics) ObserveDelivery(ok bool) {
	m.deliveriesTotal.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

// WriteTextfile writes all metrics in the text exposition format to path,
// atomically, for the node_exporter textfile collector.
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("writing metrics textfile %q: %w", path, err)
	}
	return nil
}

// Push sends all metrics to the Pushgateway at url under job.
func (m *RunMetrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %q: %w", url, err)
	}
	return nil
}
