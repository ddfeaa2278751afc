package handler

import (
	"math/big"

	dErrors "flowledger/pkg/domain-errors"
	"flowledger/pkg/domain"
)

// RecordRequest is the HTTP request body for POST /institutions/{id}/snapshots.
// attached_value_wei is a decimal string because wei amounts exceed JSON's
// safe integer range.
type RecordRequest struct {
	NetFlowBps        int64  `json:"net_flow_bps"`
	NotionalUsdScaled uint64 `json:"notional_usd_scaled"`
	SentimentScore    int64  `json:"sentiment_score"`
	HorizonDays       uint32 `json:"horizon_days"`
	LabelHash         string `json:"label_hash"`
	AttachedValueWei  string `json:"attached_value_wei"`

	parsedLabel domain.Label
	parsedValue *big.Int
}

// Validate parses the wire encodings. The nonzero-label rule belongs to
// the service so its precondition ordering stays authoritative.
func (r *RecordRequest) Validate() error {
	label, ok := domain.ParseLabel(r.LabelHash)
	if !ok {
		return dErrors.New(dErrors.CodeBadRequest, "label_hash must be a 0x-prefixed 32-byte hex label")
	}
	r.parsedLabel = label

	r.parsedValue = new(big.Int)
	if r.AttachedValueWei != "" {
		value, ok := new(big.Int).SetString(r.AttachedValueWei, 10)
		if !ok || value.Sign() < 0 {
			return dErrors.New(dErrors.CodeBadRequest, "attached_value_wei must be a non-negative decimal string")
		}
		r.parsedValue = value
	}
	return nil
}

// RebaseRequest is the HTTP request body for PUT /institutions/{id}/window.
type RebaseRequest struct {
	NewWindowStart uint64 `json:"new_window_start"`
}
