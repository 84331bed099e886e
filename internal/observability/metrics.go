package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects SDK-level metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Experiment resolution outcomes (selected, not found, error)
//   - Telemetry flush attempts and batch sizes
//   - CDN fetch latency by resource kind
//
// Host apps embedding the SDK register these on their own registry; tests
// and the CLI use a private one.
type Metrics struct {
	// ResolutionCounter tracks resolution outcomes.
	// Labels: kind (EMBED|POPUP|TOOLTIP|CONFIG), outcome (selected|not_found|error)
	ResolutionCounter *prometheus.CounterVec

	// FlushCounter counts telemetry flush attempts.
	// Labels: status (success|error)
	FlushCounter *prometheus.CounterVec

	// FlushBatchSize observes events per posted batch.
	// Buckets: 1, 5, 10, 25, 50, 100, 300
	FlushBatchSize prometheus.Histogram

	// FetchDuration measures CDN fetch latency in seconds.
	// Labels: resource (catalog|component), status (success|error)
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s
	FetchDuration *prometheus.HistogramVec
}

// NewMetrics creates the SDK metrics and registers them on reg. A nil
// registry leaves the metrics unregistered, which is what the no-op
// configuration uses.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResolutionCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nubrick_resolutions_total",
				Help: "Experiment resolution outcomes by kind.",
			},
			[]string{"kind", "outcome"},
		),
		FlushCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nubrick_telemetry_flushes_total",
				Help: "Telemetry batch flush attempts by status.",
			},
			[]string{"status"},
		),
		FlushBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nubrick_telemetry_batch_size",
				Help:    "Events per posted telemetry batch.",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 300},
			},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nubrick_fetch_duration_seconds",
				Help:    "CDN fetch latency by resource kind.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"resource", "status"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.ResolutionCounter, m.FlushCounter, m.FlushBatchSize, m.FetchDuration)
	}
	return m
}
