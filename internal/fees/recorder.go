package fees

import (
	"context"
	"math/big"
	"sync"

	"flowledger/pkg/domain"
)

// Transfer is one recorded forwarding attempt.
type Transfer struct {
	To     domain.Address
	Amount *big.Int
}

// Recorder keeps forwarded transfers in memory. Test double and local-dev
// stand-in for a real payment channel.
type Recorder struct {
	mu        sync.Mutex
	transfers []Transfer
	failWith  error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes every subsequent Forward return err. Tests use this to
// verify that forwarding failure is swallowed by the caller.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = err
}

func (r *Recorder) Forward(_ context.Context, to domain.Address, amountWei *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.transfers = append(r.transfers, Transfer{To: to, Amount: new(big.Int).Set(amountWei)})
	return nil
}

// Transfers returns a copy of the recorded transfers.
func (r *Recorder) Transfers() []Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transfer, len(r.transfers))
	copy(out, r.transfers)
	return out
}
