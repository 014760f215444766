// Package metrics exposes Prometheus collectors for the bundler's
// submission pipeline, mounted at /admin/metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups every metric the orchestrator and scheduler update.
type Collectors struct {
	Registry *prometheus.Registry

	BundlesSubmitted   prometheus.Counter
	BundlesRejected    prometheus.Counter
	RelayAcceptances   *prometheus.CounterVec
	RelayRejections    *prometheus.CounterVec
	SubmitLatency      prometheus.Histogram
	DailySpendingWei   prometheus.Gauge
	RelayHealthLatency *prometheus.GaugeVec
}

// New registers and returns the full set of collectors under namespace.
func New(namespace string) *Collectors {
	registry := prometheus.NewRegistry()

	c := &Collectors{
		Registry: registry,
		BundlesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundles_submitted_total",
			Help:      "Total bundles that received at least one relay acceptance.",
		}),
		BundlesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundles_rejected_total",
			Help:      "Total bundles fanned out to relays that no relay accepted; requests rejected before the fan-out are not counted.",
		}),
		RelayAcceptances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_acceptances_total",
			Help:      "Accepted eth_sendBundle responses per relay.",
		}, []string{"relay"}),
		RelayRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_rejections_total",
			Help:      "Rejected or failed eth_sendBundle responses per relay.",
		}, []string{"relay"}),
		SubmitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_duration_seconds",
			Help:      "End-to-end latency of the bundle submission pipeline.",
			Buckets:   prometheus.DefBuckets,
		}),
		DailySpendingWei: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daily_spending_wei",
			Help:      "Current UTC-day cumulative payment spending, in wei.",
		}),
		RelayHealthLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_health_latency_seconds",
			Help:      "Latency of the most recent relay health check.",
		}, []string{"relay"}),
	}

	registry.MustRegister(
		c.BundlesSubmitted,
		c.BundlesRejected,
		c.RelayAcceptances,
		c.RelayRejections,
		c.SubmitLatency,
		c.DailySpendingWei,
		c.RelayHealthLatency,
	)
	return c
}
