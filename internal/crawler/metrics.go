package crawler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"linkchaser/pkg/types"
)

// Metrics exposes traversal counters. A nil *Metrics records nothing.
type Metrics struct {
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	hops          prometheus.Counter
	outcomes      *prometheus.CounterVec
}

// NewMetrics registers the traversal collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkchaser_fetches_total",
			Help: "Documents fetched, by fetch mode",
		}, []string{"mode"}),
		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkchaser_fetch_duration_seconds",
			Help:    "Latency of document fetches",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"mode"}),
		hops: factory.NewCounter(prometheus.CounterOpts{
			Name: "linkchaser_hops_total",
			Help: "Documents emitted by traversals",
		}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkchaser_traversals_total",
			Help: "Finished traversals, by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observeFetch(mode types.Mode, latency time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(mode.String()).Inc()
	m.fetchDuration.WithLabelValues(mode.String()).Observe(latency.Seconds())
}

func (m *Metrics) observeHop() {
	if m == nil {
		return
	}
	m.hops.Inc()
}

func (m *Metrics) observeOutcome(kind types.OutcomeKind) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(kind.String()).Inc()
}
