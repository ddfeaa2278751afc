// Package service implements access control: role resolution, the dynamic
// reporter set, the global halt flag, and the snapshot fee.
//
// Role addresses (governance, sentinel, oracle, fee sink) are fixed at
// construction. The halt flag gates only snapshot recording; onboarding
// and tag updates run while halted. That asymmetry is load-bearing for
// existing integrators and is preserved deliberately.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	accessmetrics "flowledger/internal/access/metrics"
	"flowledger/internal/access/models"
	"flowledger/internal/audit"
	"flowledger/internal/platform/config"
	"flowledger/internal/platform/serial"
	"flowledger/pkg/attrs"
	dErrors "flowledger/pkg/domain-errors"
	"flowledger/pkg/domain"
	"flowledger/pkg/platform/sentinel"
	"flowledger/pkg/requestcontext"
)

// ReporterStore owns reporter-set membership.
type ReporterStore interface {
	// SetActive flips membership. Activating an already-active reporter
	// returns sentinel.ErrAlreadyUsed; deactivating an absent one is a no-op.
	SetActive(ctx context.Context, addr domain.Address, active bool) error
	IsActive(ctx context.Context, addr domain.Address) (bool, error)
}

// StateStore owns the halt flag and the snapshot fee.
type StateStore interface {
	Get(ctx context.Context) (models.State, error)
	SetHalted(ctx context.Context, halted bool) error
	SetSnapshotFee(ctx context.Context, feeWei *big.Int) error
}

// AuditPublisher fans out emitted notifications.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the access-control module facade.
type Service struct {
	roles     config.Roles
	reporters ReporterStore
	state     StateStore
	gate      *serial.Gate

	logger    *slog.Logger
	publisher AuditPublisher
	metrics   *accessmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithMetrics(m *accessmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(roles config.Roles, reporters ReporterStore, state StateStore, gate *serial.Gate, opts ...Option) *Service {
	s := &Service{roles: roles, reporters: reporters, state: state, gate: gate}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FeeSink returns the immutable fee-sink address.
func (s *Service) FeeSink() domain.Address { return s.roles.FeeSink }

// RequireGovernance fails unless the caller is the governance address.
func (s *Service) RequireGovernance(ctx context.Context) error {
	if requestcontext.Caller(ctx) != s.roles.Governance {
		return dErrors.New(dErrors.CodeNotGovernance, "caller is not governance")
	}
	return nil
}

// RequireSentinel fails unless the caller is the sentinel address.
func (s *Service) RequireSentinel(ctx context.Context) error {
	if requestcontext.Caller(ctx) != s.roles.Sentinel {
		return dErrors.New(dErrors.CodeNotSentinel, "caller is not the sentinel")
	}
	return nil
}

// RequireGovernanceOrSentinel admits either privileged role. Used by
// window rebasing, which both may co-authorize.
func (s *Service) RequireGovernanceOrSentinel(ctx context.Context) error {
	caller := requestcontext.Caller(ctx)
	if caller != s.roles.Governance && caller != s.roles.Sentinel {
		return dErrors.New(dErrors.CodeNotSentinel, "caller is neither governance nor the sentinel")
	}
	return nil
}

// IsReporter reports whether addr may submit snapshots: the fixed oracle
// address always may, everyone else through the dynamic set.
func (s *Service) IsReporter(ctx context.Context, addr domain.Address) (bool, error) {
	if addr == s.roles.Oracle {
		return true, nil
	}
	active, err := s.reporters.IsActive(ctx, addr)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check reporter membership")
	}
	return active, nil
}

// RequireReporter fails unless the caller is an authorized reporter.
func (s *Service) RequireReporter(ctx context.Context) error {
	ok, err := s.IsReporter(ctx, requestcontext.Caller(ctx))
	if err != nil {
		return err
	}
	if !ok {
		return dErrors.New(dErrors.CodeNotReporter, "caller is not an authorized reporter")
	}
	return nil
}

// RequireNotHalted fails with Halted while the pause flag is set.
func (s *Service) RequireNotHalted(ctx context.Context) error {
	state, err := s.state.Get(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read global state")
	}
	if state.Halted {
		return dErrors.New(dErrors.CodeHalted, "system is halted")
	}
	return nil
}

// SnapshotFee returns the currently configured per-snapshot fee.
func (s *Service) SnapshotFee(ctx context.Context) (*big.Int, error) {
	state, err := s.state.Get(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read global state")
	}
	return state.SnapshotFeeWei, nil
}

// Halted is the read projection of the pause flag.
func (s *Service) Halted(ctx context.Context) (bool, error) {
	state, err := s.state.Get(ctx)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read global state")
	}
	return state.Halted, nil
}

// SetReporter flips reporter-set membership. Governance only. Activating
// an already-active reporter fails with AlreadyReporter: duplicate grants
// are treated as operator mistakes, not idempotent writes.
func (s *Service) SetReporter(ctx context.Context, addr domain.Address, active bool) error {
	return s.gate.Do(ctx, func(ctx context.Context) error {
		if err := s.RequireGovernance(ctx); err != nil {
			return err
		}
		if addr == domain.ZeroAddress {
			return dErrors.New(dErrors.CodeZeroAddress, "reporter address must not be zero")
		}
		if err := s.reporters.SetActive(ctx, addr, active); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeAlreadyReporter, "reporter is already active")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update reporter set")
		}

		s.emit(ctx, audit.ActionReporterUpdated,
			"reporter", addr.Hex(),
			"active", boolString(active),
		)
		if s.metrics != nil {
			s.metrics.ReporterUpdates.Inc()
		}
		return nil
	})
}

// SetSnapshotFee replaces the global fee. Governance only, capped.
func (s *Service) SetSnapshotFee(ctx context.Context, feeWei *big.Int) error {
	return s.gate.Do(ctx, func(ctx context.Context) error {
		if err := s.RequireGovernance(ctx); err != nil {
			return err
		}
		if feeWei == nil || feeWei.Sign() < 0 {
			return dErrors.New(dErrors.CodeBadRequest, "fee must be a non-negative wei amount")
		}
		if feeWei.Cmp(models.MaxSnapshotFeeWei) > 0 {
			return dErrors.New(dErrors.CodeFeeTooHigh, "fee exceeds the 0.5 unit ceiling")
		}

		state, err := s.state.Get(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read global state")
		}
		oldFee := state.SnapshotFeeWei

		if err := s.state.SetSnapshotFee(ctx, feeWei); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update snapshot fee")
		}

		s.emit(ctx, audit.ActionFeeUpdated,
			"old_fee_wei", oldFee.String(),
			"new_fee_wei", feeWei.String(),
		)
		if s.metrics != nil {
			s.metrics.FeeUpdates.Inc()
		}
		return nil
	})
}

// ToggleHalt sets the pause flag unconditionally. Sentinel only.
func (s *Service) ToggleHalt(ctx context.Context, halted bool) error {
	return s.gate.Do(ctx, func(ctx context.Context) error {
		if err := s.RequireSentinel(ctx); err != nil {
			return err
		}
		if err := s.state.SetHalted(ctx, halted); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to toggle halt flag")
		}

		s.emit(ctx, audit.ActionHaltToggled, "halted", boolString(halted))
		if s.metrics != nil {
			s.metrics.HaltToggles.Inc()
		}
		return nil
	})
}

// emit logs and publishes one notification. attributes is a key-value
// list in slog argument order; the reporter key, when present, becomes
// the event subject.
func (s *Service) emit(ctx context.Context, action audit.Action, attributes ...any) {
	if s.logger != nil {
		args := append(attributes,
			"caller", requestcontext.Caller(ctx).Hex(),
			"request_id", requestcontext.RequestID(ctx),
		)
		s.logger.InfoContext(ctx, string(action), args...)
	}
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Emit(ctx, audit.Event{
		Timestamp: requestcontext.Now(ctx),
		Action:    action,
		Caller:    requestcontext.Caller(ctx).Hex(),
		Subject:   attrs.ExtractString(attributes, "reporter"),
		Attrs:     attrs.ToMap(attributes),
	})
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
