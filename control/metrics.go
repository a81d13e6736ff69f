// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Reactor metrics: a Prometheus collector fed by the loop's Recorder hook.
// Counters are shared by every loop of the process and labeled by backend.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	BackendLabel = "backend"
	KindLabel    = "kind"
	ResultLabel  = "result"
)

// Metrics implements reactor.Recorder and prometheus.Collector.
type Metrics struct {
	Ticks         *prometheus.CounterVec
	Dispatched    *prometheus.CounterVec
	Batch         *prometheus.HistogramVec
	Registrations *prometheus.CounterVec
	Timers        prometheus.Counter
	Tasks         prometheus.Counter
}

// NewMetrics creates the collector. namespace prefixes every metric name.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loop_ticks_total",
				Help:      "Number of wait-dispatch cycles run.",
			},
			[]string{BackendLabel},
		),
		Dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loop_dispatched_total",
				Help:      "Number of handler invocations by notification kind.",
			},
			[]string{BackendLabel, KindLabel},
		),
		Batch: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "loop_dispatch_batch",
				Help:      "Handler invocations per cycle.",
				Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
			},
			[]string{BackendLabel},
		),
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loop_registrations_total",
				Help:      "Kernel registration calls by result.",
			},
			[]string{BackendLabel, ResultLabel},
		),
		Timers: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loop_timers_fired_total",
				Help:      "Number of expired timer entries dispatched.",
			},
		),
		Tasks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loop_deferred_total",
				Help:      "Number of deferred tasks run.",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Ticks, m.Dispatched, m.Batch, m.Registrations, m.Timers, m.Tasks}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// Tick records one loop cycle.
func (m *Metrics) Tick(backend string, ready, completions int) {
	m.Ticks.With(prometheus.Labels{BackendLabel: backend}).Inc()
	if ready > 0 {
		m.Dispatched.With(prometheus.Labels{BackendLabel: backend, KindLabel: "ready"}).Add(float64(ready))
	}
	if completions > 0 {
		m.Dispatched.With(prometheus.Labels{BackendLabel: backend, KindLabel: "completion"}).Add(float64(completions))
	}
	m.Batch.With(prometheus.Labels{BackendLabel: backend}).Observe(float64(ready + completions))
}

// Registration records one kernel registration call.
func (m *Metrics) Registration(backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Registrations.With(prometheus.Labels{BackendLabel: backend, ResultLabel: result}).Inc()
}

// TimersFired records n expired timers.
func (m *Metrics) TimersFired(n int) {
	m.Timers.Add(float64(n))
}

// Deferred records n deferred tasks run.
func (m *Metrics) Deferred(n int) {
	m.Tasks.Add(float64(n))
}
