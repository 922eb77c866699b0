package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity module.
type Metrics struct {
	// Resolution outcomes: new_primary, new_secondary, merged, no_change.
	Resolutions *prometheus.CounterVec

	// Contacts created by precedence.
	ContactsCreated *prometheus.CounterVec

	// Primaries demoted during multi-primary merges.
	PrimariesDemoted prometheus.Counter

	// Dangling linked_id edges skipped during traversal.
	DanglingLinks prometheus.Counter

	// End-to-end resolution latency.
	ResolveLatency prometheus.Histogram
}

// New creates a new Metrics instance with all identity module metrics registered.
func New() *Metrics {
	return &Metrics{
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "unify_identity_resolutions_total",
			Help: "Total identity resolutions by outcome",
		}, []string{"outcome"}),

		ContactsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "unify_identity_contacts_created_total",
			Help: "Total contacts created by link precedence",
		}, []string{"precedence"}),

		PrimariesDemoted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "unify_identity_primaries_demoted_total",
			Help: "Total primary contacts demoted to secondary during merges",
		}),

		DanglingLinks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "unify_identity_dangling_links_total",
			Help: "Total dangling linked_id references skipped during traversal",
		}),

		ResolveLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "unify_identity_resolve_duration_seconds",
			Help:    "Duration of full identity resolutions including store round-trips",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementResolution records a resolution outcome.
func (m *Metrics) IncrementResolution(outcome string) {
	if m != nil {
		m.Resolutions.WithLabelValues(outcome).Inc()
	}
}

// IncrementContactCreated records a contact creation.
func (m *Metrics) IncrementContactCreated(precedence string) {
	if m != nil {
		m.ContactsCreated.WithLabelValues(precedence).Inc()
	}
}

// IncrementPrimariesDemoted records one demotion.
func (m *Metrics) IncrementPrimariesDemoted() {
	if m != nil {
		m.PrimariesDemoted.Inc()
	}
}

// IncrementDanglingLinks records one skipped edge.
func (m *Metrics) IncrementDanglingLinks() {
	if m != nil {
		m.DanglingLinks.Inc()
	}
}

// ObserveResolveLatency records the total resolution duration.
func (m *Metrics) ObserveResolveLatency(d time.Duration) {
	if m != nil {
		m.ResolveLatency.Observe(d.Seconds())
	}
}
