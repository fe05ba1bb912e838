package relay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report relay activity.
type Metrics struct {
	turnsTotal     *prometheus.CounterVec
	fragmentsTotal prometheus.Counter
	turnDuration   *prometheus.HistogramVec
	activeTurns    prometheus.Gauge
}

// MustNewMetrics registers the relay collectors with reg. Registration errors
// panic, mirroring promauto.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		turnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chat",
				Subsystem: "relay",
				Name:      "turns_total",
				Help:      "Relayed turns by outcome.",
			},
			[]string{"outcome"},
		),
		fragmentsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "chat",
				Subsystem: "relay",
				Name:      "fragments_total",
				Help:      "Reply fragments forwarded to clients.",
			},
		),
		turnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "chat",
				Subsystem: "relay",
				Name:      "turn_duration_seconds",
				Help:      "Time from start event to terminal event.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
			},
			[]string{"outcome"},
		),
		activeTurns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "chat",
				Subsystem: "relay",
				Name:      "active_turns",
				Help:      "Turns currently streaming.",
			},
		),
	}

	reg.MustRegister(m.turnsTotal, m.fragmentsTotal, m.turnDuration, m.activeTurns)
	return m
}

func (m *Metrics) turnStarted() {
	if m == nil {
		return
	}
	m.activeTurns.Inc()
}

func (m *Metrics) turnFinished(outcome Outcome, duration time.Duration) {
	if m == nil {
		return
	}
	m.activeTurns.Dec()
	m.turnsTotal.WithLabelValues(string(outcome)).Inc()
	m.turnDuration.WithLabelValues(string(outcome)).Observe(duration.Seconds())
}

func (m *Metrics) fragment() {
	if m == nil {
		return
	}
	m.fragmentsTotal.Inc()
}
