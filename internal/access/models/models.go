// Package models holds the access-control state shared by stores.
package models

import "math/big"

// MaxSnapshotFeeWei is the hard ceiling on the snapshot fee: 0.5 native
// units. Governance cannot set a fee above it.
var MaxSnapshotFeeWei = big.NewInt(500_000_000_000_000_000)

// Reporter is one entry of the dynamic reporter set.
type Reporter struct {
	Active bool
}

// State is the mutable global configuration: the halt flag and the
// per-snapshot fee. Role addresses are not here; they are fixed at
// construction and never stored.
type State struct {
	Halted         bool
	SnapshotFeeWei *big.Int
}

// Clone returns a deep copy so stores can hand out state without aliasing
// their internal big.Int.
func (s State) Clone() State {
	out := State{Halted: s.Halted}
	if s.SnapshotFeeWei != nil {
		out.SnapshotFeeWei = new(big.Int).Set(s.SnapshotFeeWei)
	} else {
		out.SnapshotFeeWei = big.NewInt(0)
	}
	return out
}
