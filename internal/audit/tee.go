package audit

import (
	"context"
	"log/slog"

	"flowledger/pkg/domain"
)

// Sink is a write-only event destination (broker, log shipper).
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Tee appends to a primary store and mirrors to best-effort sinks. Sink
// failures are logged, never surfaced: notification fan-out must not fail
// the mutation that emitted the event.
type Tee struct {
	primary Store
	sinks   []Sink
	logger  *slog.Logger
}

func NewTee(primary Store, logger *slog.Logger, sinks ...Sink) *Tee {
	return &Tee{primary: primary, sinks: sinks, logger: logger}
}

func (t *Tee) Append(ctx context.Context, event Event) error {
	if err := t.primary.Append(ctx, event); err != nil {
		return err
	}
	for _, sink := range t.sinks {
		if err := sink.Append(ctx, event); err != nil && t.logger != nil {
			t.logger.WarnContext(ctx, "audit sink append failed",
				"action", string(event.Action),
				"error", err,
			)
		}
	}
	return nil
}

func (t *Tee) ListByInstitution(ctx context.Context, id domain.InstitutionID) ([]Event, error) {
	return t.primary.ListByInstitution(ctx, id)
}
