package runner

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/specialistvlad/buildbatch/internal/unit"
)

// Metrics are the Prometheus collectors of the runner. A nil *Metrics
// records nothing.
type Metrics struct {
	units           *prom.CounterVec
	compileDuration *prom.HistogramVec
	artifacts       *prom.CounterVec
	inFlight        prom.Gauge
}

// NewMetrics creates the runner collectors and registers them with reg.
func NewMetrics(reg prom.Registerer) *Metrics {
	m := &Metrics{
		units: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildbatch",
			Name:      "units_total",
			Help:      "Units processed by the runner, by result",
		}, []string{"result"}),
		compileDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "buildbatch",
			Name:      "unit_compile_duration_seconds",
			Help:      "Duration of individual unit compilations",
			Buckets:   prom.DefBuckets,
		}, []string{"mode"}),
		artifacts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildbatch",
			Name:      "artifacts_copied_total",
			Help:      "Root artifacts copied out of the deps directory, by destination",
		}, []string{"destination"}),
		inFlight: prom.NewGauge(prom.GaugeOpts{
			Namespace: "buildbatch",
			Name:      "units_in_flight",
			Help:      "Units currently being compiled",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.units, m.compileDuration, m.artifacts, m.inFlight)
	}
	return m
}

func (m *Metrics) result(result string) {
	if m == nil {
		return
	}
	m.units.WithLabelValues(result).Inc()
}

func (m *Metrics) observeCompile(mode unit.Mode, d time.Duration) {
	if m == nil {
		return
	}
	m.compileDuration.WithLabelValues(string(mode)).Observe(d.Seconds())
}

func (m *Metrics) copied(destination string) {
	if m == nil {
		return
	}
	m.artifacts.WithLabelValues(destination).Inc()
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) finished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}
