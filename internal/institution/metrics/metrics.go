package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the institution directory.
type Metrics struct {
	Onboarded    prometheus.Counter
	TagUpdates   prometheus.Counter
	Deactivated  prometheus.Counter
	StatsQueries *prometheus.CounterVec
}

// New creates a new Metrics instance with all directory metrics registered.
func New() *Metrics {
	return &Metrics{
		Onboarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowledger_institutions_onboarded_total",
			Help: "Total number of institutions onboarded",
		}),
		TagUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowledger_institution_tag_updates_total",
			Help: "Total number of tag set replacements",
		}),
		Deactivated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowledger_institutions_deactivated_total",
			Help: "Total number of institutions soft-deactivated",
		}),
		StatsQueries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flowledger_institution_stats_queries_total",
			Help: "Directory stats queries served, by dimension and source",
		}, []string{"dimension", "source"}),
	}
}
