package audit

import (
	"context"

	"flowledger/pkg/domain"
)

// Inbox decouples emitters from persistence: Append enqueues the event and
// a Worker drains the channel into the backing store. Reads go straight to
// the backing store, so freshly enqueued events may not be visible until
// the worker catches up.
type Inbox struct {
	backing Store
	ch      chan Event
}

func NewInbox(backing Store, buffer int) *Inbox {
	return &Inbox{backing: backing, ch: make(chan Event, buffer)}
}

func (i *Inbox) Append(ctx context.Context, event Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case i.ch <- event:
		return nil
	}
}

func (i *Inbox) ListByInstitution(ctx context.Context, id domain.InstitutionID) ([]Event, error) {
	return i.backing.ListByInstitution(ctx, id)
}

// Events is the worker's feed.
func (i *Inbox) Events() <-chan Event {
	return i.ch
}
