package handler

import (
	"flowledger/internal/trend/models"
	"flowledger/internal/trend/service"
)

// SnapshotResponse is the HTTP representation of one ledger entry.
type SnapshotResponse struct {
	Institution       uint64 `json:"institution"`
	Index             uint32 `json:"index"`
	Timestamp         uint64 `json:"timestamp"`
	NetFlowBps        int64  `json:"net_flow_bps"`
	NotionalUsdScaled uint64 `json:"notional_usd_scaled"`
	SentimentScore    int64  `json:"sentiment_score"`
	HorizonDays       uint32 `json:"horizon_days"`
	LabelHash         string `json:"label_hash"`
}

func fromSnapshot(snap *models.Snapshot) *SnapshotResponse {
	return &SnapshotResponse{
		Institution:       uint64(snap.Institution),
		Index:             snap.Index,
		Timestamp:         snap.Timestamp,
		NetFlowBps:        snap.NetFlowBps,
		NotionalUsdScaled: snap.NotionalUsdScaled,
		SentimentScore:    snap.SentimentScore,
		HorizonDays:       snap.HorizonDays,
		LabelHash:         snap.LabelHash.Hex(),
	}
}

func fromSnapshots(snaps []models.Snapshot) []SnapshotResponse {
	out := make([]SnapshotResponse, len(snaps))
	for i := range snaps {
		out[i] = *fromSnapshot(&snaps[i])
	}
	return out
}

// AggregatesResponse mirrors the derived per-institution record.
type AggregatesResponse struct {
	Institution          uint64 `json:"institution"`
	CumulativeNetFlowBps int64  `json:"cumulative_net_flow_bps"`
	TotalSnapshots       uint32 `json:"total_snapshots"`
	LastSnapshotIndex    uint32 `json:"last_snapshot_index"`
	LastTimestamp        uint64 `json:"last_timestamp"`
	RollingWindowStart   uint64 `json:"rolling_window_start"`
	RollingSnapshotCount uint32 `json:"rolling_snapshot_count"`
	RollingNetFlowBps    int64  `json:"rolling_net_flow_bps"`
}

func fromAggregates(agg *models.Aggregates) *AggregatesResponse {
	return &AggregatesResponse{
		Institution:          uint64(agg.Institution),
		CumulativeNetFlowBps: agg.CumulativeNetFlowBps,
		TotalSnapshots:       agg.TotalSnapshots,
		LastSnapshotIndex:    agg.LastSnapshotIndex,
		LastTimestamp:        agg.LastTimestamp,
		RollingWindowStart:   agg.RollingWindowStart,
		RollingSnapshotCount: agg.RollingSnapshotCount,
		RollingNetFlowBps:    agg.RollingNetFlowBps,
	}
}

// WindowHealthResponse projects the rolling counters with decimal ratios.
type WindowHealthResponse struct {
	WindowStart    uint64 `json:"window_start"`
	SnapshotCount  uint32 `json:"snapshot_count"`
	NetFlowBps     int64  `json:"net_flow_bps"`
	NetFlowPercent string `json:"net_flow_percent"`
	AvgNetFlowBps  string `json:"avg_net_flow_bps"`
}

func fromWindowHealth(health *service.WindowHealth) *WindowHealthResponse {
	return &WindowHealthResponse{
		WindowStart:    health.WindowStart,
		SnapshotCount:  health.SnapshotCount,
		NetFlowBps:     health.NetFlowBps,
		NetFlowPercent: health.NetFlowPercent.String(),
		AvgNetFlowBps:  health.AvgNetFlowBps.String(),
	}
}

// CountResponse carries the ledger length.
type CountResponse struct {
	Count uint32 `json:"count"`
}
