package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the snapshot ledger. The fee-forward
// failure counter is the only signal for swallowed forwarding errors, so
// alerts hang off it.
type Metrics struct {
	SnapshotsRecorded  prometheus.Counter
	WindowRebases      prometheus.Counter
	FeeForwards        prometheus.Counter
	FeeForwardFailures prometheus.Counter
	RecordDuration     prometheus.Histogram
}

// New creates a new Metrics instance with all ledger metrics registered.
func New() *Metrics {
	return &Metrics{
		SnapshotsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowledger_snapshots_recorded_total",
			Help: "Total number of trend snapshots recorded",
		}),
		WindowRebases: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowledger_window_rebases_total",
			Help: "Total number of rolling-window rebases",
		}),
		FeeForwards: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowledger_fee_forwards_total",
			Help: "Total number of successful fee forwards",
		}),
		FeeForwardFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flowledger_fee_forward_failures_total",
			Help: "Total number of swallowed fee-forward failures",
		}),
		RecordDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowledger_record_duration_seconds",
			Help:    "Latency of snapshot recording",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
