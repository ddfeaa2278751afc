// Package fees holds the payment-channel collaborator boundary.
//
// The ledger's obligation is a single forwarding attempt per snapshot
// recording, carrying the full attached value to the fee sink. Forwarding
// failure is deliberately silent: it never fails the recording and emits
// no event. Success is observable through the fee.forwarded event.
package fees

import (
	"context"
	"math/big"

	"flowledger/pkg/domain"
)

// Forwarder pushes attached value to the fee sink.
type Forwarder interface {
	Forward(ctx context.Context, to domain.Address, amountWei *big.Int) error
}

// Noop discards forwards. Used when no payment channel is configured.
type Noop struct{}

func (Noop) Forward(context.Context, domain.Address, *big.Int) error { return nil }
