// Package metrics provides Prometheus metrics for the clover service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Ramsey-B/clover/pkg/models"
)

const namespace = "clover"

// Metrics records engine and cache activity. It satisfies matching.Recorder.
type Metrics struct {
	ResolutionsTotal   *prometheus.CounterVec
	ResolutionDuration *prometheus.HistogramVec
	BatchSize          *prometheus.HistogramVec
	MatchesTotal       *prometheus.CounterVec
	DecisionsTotal     *prometheus.CounterVec
	CacheLookupsTotal  *prometheus.CounterVec
	ReferenceLoads     *prometheus.HistogramVec
}

// New registers every collector with reg. Passing prometheus.DefaultRegisterer
// exposes them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ResolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resolver",
				Name:      "resolutions_total",
				Help:      "Total number of batch resolutions by policy",
			},
			[]string{"policy"},
		),
		ResolutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "resolver",
				Name:      "resolution_duration_seconds",
				Help:      "Duration of batch resolutions in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
			},
			[]string{"policy"},
		),
		BatchSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "resolver",
				Name:      "records",
				Help:      "Number of records per resolution by role",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"policy", "role"},
		),
		MatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resolver",
				Name:      "matches_total",
				Help:      "Total number of reported matches by kind",
			},
			[]string{"policy", "kind"},
		),
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "classifier",
				Name:      "decisions_total",
				Help:      "Total number of classified matches by decision",
			},
			[]string{"policy", "decision"},
		),
		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Total number of preview cache lookups by result",
			},
			[]string{"result"},
		),
		ReferenceLoads: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "reference",
				Name:      "load_duration_seconds",
				Help:      "Duration of reference population loads in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"entity_type"},
		),
	}
}

// ObserveResolution records one completed batch resolution
func (m *Metrics) ObserveResolution(policy string, candidates, references int, result *models.BatchResolutionResult, elapsed time.Duration) {
	m.ResolutionsTotal.WithLabelValues(policy).Inc()
	m.ResolutionDuration.WithLabelValues(policy).Observe(elapsed.Seconds())
	m.BatchSize.WithLabelValues(policy, "candidate").Observe(float64(candidates))
	m.BatchSize.WithLabelValues(policy, "reference").Observe(float64(references))
	if result == nil {
		return
	}
	m.MatchesTotal.WithLabelValues(policy, "cross").Add(float64(len(result.CrossMatches)))
	m.MatchesTotal.WithLabelValues(policy, "intra_batch").Add(float64(len(result.IntraBatchMatches)))
}

// ObserveDecision records one classified cross match
func (m *Metrics) ObserveDecision(policy string, decision models.Decision) {
	m.DecisionsTotal.WithLabelValues(policy, string(decision)).Inc()
}

// ObserveCacheLookup records a preview cache hit or miss
func (m *Metrics) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveReferenceLoad records how long loading a reference population took
func (m *Metrics) ObserveReferenceLoad(entityType string, elapsed time.Duration) {
	m.ReferenceLoads.WithLabelValues(entityType).Observe(elapsed.Seconds())
}
