package metrics

import "github.com/prometheus/client_golang/prometheus"

// ViewMetrics exposes counters/gauges for live collection views.
type ViewMetrics struct {
	eventsTotal    *prometheus.CounterVec
	malformedTotal prometheus.Counter
	fetchFailures  prometheus.Counter
	replayDepth    prometheus.Histogram
	snapshotSize   *prometheus.GaugeVec
}

func NewViewMetrics(reg prometheus.Registerer) *ViewMetrics {
	m := &ViewMetrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "liveview",
			Name:      "events_total",
			Help:      "Change events processed, by kind and outcome",
		}, []string{"kind", "outcome"}),
		malformedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "liveview",
			Name:      "malformed_events_total",
			Help:      "Change events dropped for missing a primary key",
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "liveview",
			Name:      "fetch_failures_total",
			Help:      "Initial bulk fetches that ended in error",
		}),
		replayDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicflow",
			Subsystem: "liveview",
			Name:      "replay_depth",
			Help:      "Events buffered during the initial fetch and replayed",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		snapshotSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "clinicflow",
			Subsystem: "liveview",
			Name:      "snapshot_size",
			Help:      "Rows currently held by a view",
		}, []string{"table"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.eventsTotal, m.malformedTotal, m.fetchFailures, m.replayDepth, m.snapshotSize)
	return m
}

func (m *ViewMetrics) ObserveEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *ViewMetrics) ObserveMalformed() {
	if m == nil {
		return
	}
	m.malformedTotal.Inc()
}

func (m *ViewMetrics) ObserveFetchFailure() {
	if m == nil {
		return
	}
	m.fetchFailures.Inc()
}

func (m *ViewMetrics) ObserveReplayDepth(n int) {
	if m == nil {
		return
	}
	m.replayDepth.Observe(float64(n))
}

func (m *ViewMetrics) ObserveSnapshotSize(table string, n int) {
	if m == nil {
		return
	}
	m.snapshotSize.WithLabelValues(table).Set(float64(n))
}
