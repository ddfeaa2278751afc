package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"flowledger/pkg/domain"
)

// Store is an append-only event sink.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByInstitution(ctx context.Context, id domain.InstitutionID) ([]Event, error)
}

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.store.Append(ctx, event)
}

func (p *Publisher) List(ctx context.Context, id domain.InstitutionID) ([]Event, error) {
	return p.store.ListByInstitution(ctx, id)
}
