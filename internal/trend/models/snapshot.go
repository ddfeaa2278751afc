package models

import (
	dErrors "flowledger/pkg/domain-errors"
	"flowledger/pkg/domain"
)

const (
	// MaxSnapshotsPerInstitution caps each ledger permanently; there is no
	// eviction or rotation once a ledger fills.
	MaxSnapshotsPerInstitution = 8192
	// MaxBatchSize is the hard ceiling on paginated reads. Larger limits
	// are clamped silently, not rejected.
	MaxBatchSize = 96
	// WindowLength is the analysis window in seconds (30 days).
	WindowLength = 30 * 24 * 60 * 60
)

// ZeroLabel is the reserved label hash rejected on every recording.
var ZeroLabel = domain.Label{}

// Snapshot is one timestamped observation of flow, sentiment, and notional
// data for an institution. Identified by (institution id, index); the index
// is the append position, 0-based and dense. Immutable once written.
type Snapshot struct {
	Institution       domain.InstitutionID `json:"institution"`
	Index             uint32               `json:"index"`
	Timestamp         uint64               `json:"timestamp"`
	NetFlowBps        int64                `json:"net_flow_bps"`
	NotionalUsdScaled uint64               `json:"notional_usd_scaled"`
	SentimentScore    int64                `json:"sentiment_score"`
	HorizonDays       uint32               `json:"horizon_days"`
	LabelHash         domain.Label         `json:"label_hash"`
}

// Validate checks the reporter-supplied fields.
func (s *Snapshot) Validate() error {
	if s.LabelHash == ZeroLabel {
		return dErrors.New(dErrors.CodeInvalidLabel, "label hash must be nonzero")
	}
	return nil
}

// Aggregates is the derived per-institution record. Created lazily on the
// first snapshot, never destroyed.
//
// The rolling fields implement a soft window: the counters accumulate on
// every recording regardless of whether the timestamp falls inside
// [RollingWindowStart, now], and nothing ever prunes them. RebaseWindow
// moves only the start pointer. The name suggests sliding-window semantics
// the counters do not provide; integrators depend on the cumulative
// behavior, so it is preserved exactly.
type Aggregates struct {
	Institution          domain.InstitutionID `json:"institution"`
	CumulativeNetFlowBps int64                `json:"cumulative_net_flow_bps"`
	TotalSnapshots       uint32               `json:"total_snapshots"`
	LastSnapshotIndex    uint32               `json:"last_snapshot_index"`
	LastTimestamp        uint64               `json:"last_timestamp"`
	RollingWindowStart   uint64               `json:"rolling_window_start"`
	RollingSnapshotCount uint32               `json:"rolling_snapshot_count"`
	RollingNetFlowBps    int64                `json:"rolling_net_flow_bps"`
}

// ApplyRecord folds one appended snapshot into the aggregates. Signed
// accumulation wraps per Go int64 arithmetic on overflow.
func (a *Aggregates) ApplyRecord(s *Snapshot) {
	a.CumulativeNetFlowBps += s.NetFlowBps
	a.TotalSnapshots++
	a.LastSnapshotIndex = s.Index
	a.LastTimestamp = s.Timestamp

	// window bootstrap happens at most once, on the first-ever snapshot
	if a.RollingWindowStart == 0 {
		if s.Timestamp > WindowLength {
			a.RollingWindowStart = s.Timestamp - WindowLength
		}
		// else: floored at 0, which reads as "not initialized" and will
		// bootstrap again on the next snapshot; timestamps that close to
		// the epoch do not occur with a real clock
	}

	a.RollingSnapshotCount++
	a.RollingNetFlowBps += s.NetFlowBps
}

// ApplyRebase overwrites the window start pointer. The rolling counters
// are untouched: rebasing is a one-way marker, not a window reset.
func (a *Aggregates) ApplyRebase(newStart uint64) {
	a.RollingWindowStart = newStart
}
