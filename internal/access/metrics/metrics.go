package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the access-control module.
type Metrics struct {
	ReporterUpdates prometheus.Counter
	FeeUpdates      prometheus.Counter
	HaltToggles     prometheus.Counter
}

// New creates a new Metrics instance with all access metrics registered.
func New() *Metrics {
	return &Metrics{
		ReporterUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowledger_reporter_updates_total",
			Help: "Total number of reporter set membership changes",
		}),
		FeeUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowledger_fee_updates_total",
			Help: "Total number of snapshot fee changes",
		}),
		HaltToggles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowledger_halt_toggles_total",
			Help: "Total number of halt flag toggles",
		}),
	}
}
