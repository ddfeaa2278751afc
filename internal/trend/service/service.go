// Package service implements the snapshot ledger and its aggregate engine:
// gated recording, explicit window rebasing, and the read projections.
//
// Recording preconditions run in a fixed order, first failure wins:
// halted, reporter authorization, institution existence, fee coverage,
// label validity, ledger capacity. Integrators branch on the resulting
// codes, so the order is part of the contract.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"flowledger/internal/audit"
	"flowledger/internal/fees"
	"flowledger/internal/platform/serial"
	trendmetrics "flowledger/internal/trend/metrics"
	"flowledger/internal/trend/models"
	"flowledger/pkg/attrs"
	dErrors "flowledger/pkg/domain-errors"
	"flowledger/pkg/domain"
	"flowledger/pkg/platform/sentinel"
	"flowledger/pkg/requestcontext"
)

// Ledger is the snapshot persistence contract. Append folds the snapshot
// into the institution's aggregates in the same commit.
type Ledger interface {
	Append(ctx context.Context, snap *models.Snapshot) (*models.Snapshot, *models.Aggregates, error)
	Count(ctx context.Context, id domain.InstitutionID) (uint32, error)
	ByIndex(ctx context.Context, id domain.InstitutionID, index uint32) (*models.Snapshot, error)
	Range(ctx context.Context, id domain.InstitutionID, from, to uint32) ([]models.Snapshot, error)
	Aggregates(ctx context.Context, id domain.InstitutionID) (*models.Aggregates, error)
	Rebase(ctx context.Context, id domain.InstitutionID, newStart uint64) (uint64, error)
}

// AccessControl is the slice of the access module recording needs.
type AccessControl interface {
	RequireNotHalted(ctx context.Context) error
	RequireReporter(ctx context.Context) error
	RequireGovernanceOrSentinel(ctx context.Context) error
	SnapshotFee(ctx context.Context) (*big.Int, error)
	FeeSink() domain.Address
}

// InstitutionDirectory answers the active-existence predicate.
type InstitutionDirectory interface {
	Exists(ctx context.Context, id domain.InstitutionID) (bool, error)
}

// AuditPublisher fans out emitted notifications.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// RecordRequest carries the reporter-supplied snapshot fields plus the
// attached payment.
type RecordRequest struct {
	Institution       domain.InstitutionID
	NetFlowBps        int64
	NotionalUsdScaled uint64
	SentimentScore    int64
	HorizonDays       uint32
	LabelHash         domain.Label
	AttachedValueWei  *big.Int
}

// WindowHealth is the rolling-window projection. The counters are
// cumulative since bootstrap (the window never self-prunes), so the
// averages here describe all recorded history, not the last 30 days.
type WindowHealth struct {
	WindowStart    uint64
	SnapshotCount  uint32
	NetFlowBps     int64
	NetFlowPercent decimal.Decimal
	AvgNetFlowBps  decimal.Decimal
}

// Service is the trend-ledger module facade.
type Service struct {
	ledger       Ledger
	access       AccessControl
	institutions InstitutionDirectory
	forwarder    fees.Forwarder
	gate         *serial.Gate

	logger    *slog.Logger
	publisher AuditPublisher
	metrics   *trendmetrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithMetrics(m *trendmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(ledger Ledger, access AccessControl, institutions InstitutionDirectory, forwarder fees.Forwarder, gate *serial.Gate, opts ...Option) *Service {
	s := &Service{
		ledger:       ledger,
		access:       access,
		institutions: institutions,
		forwarder:    forwarder,
		gate:         gate,
		tracer:       otel.Tracer("flowledger/trend"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends a snapshot at the next dense index and folds it into the
// institution's aggregates. Reporter only; blocked while halted. The
// attached value must cover the configured fee; it is then forwarded to
// the fee sink in full, best-effort. A failed forward never fails the
// recording.
func (s *Service) Record(ctx context.Context, req RecordRequest) (*models.Snapshot, error) {
	var recorded *models.Snapshot
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		ctx, span := s.tracer.Start(ctx, "trend.record")
		defer span.End()

		start := time.Now()

		if err := s.access.RequireNotHalted(ctx); err != nil {
			return err
		}
		if err := s.access.RequireReporter(ctx); err != nil {
			return err
		}
		active, err := s.institutions.Exists(ctx, req.Institution)
		if err != nil {
			return err
		}
		if !active {
			return dErrors.New(dErrors.CodeInstitutionNotFound, "institution does not exist or is deactivated")
		}

		fee, err := s.access.SnapshotFee(ctx)
		if err != nil {
			return err
		}
		attached := req.AttachedValueWei
		if attached == nil {
			attached = new(big.Int)
		}
		if fee.Sign() > 0 && attached.Cmp(fee) < 0 {
			return dErrors.New(dErrors.CodeFeeRequired, "attached value does not cover the snapshot fee")
		}

		snap := &models.Snapshot{
			Institution:       req.Institution,
			Timestamp:         uint64(requestcontext.Now(ctx).Unix()),
			NetFlowBps:        req.NetFlowBps,
			NotionalUsdScaled: req.NotionalUsdScaled,
			SentimentScore:    req.SentimentScore,
			HorizonDays:       req.HorizonDays,
			LabelHash:         req.LabelHash,
		}
		if err := snap.Validate(); err != nil {
			return err
		}

		recorded, _, err = s.ledger.Append(ctx, snap)
		if err != nil {
			if errors.Is(err, sentinel.ErrCapacity) {
				return dErrors.Newf(dErrors.CodeMaxSnapshots, "ledger is full at %d snapshots", models.MaxSnapshotsPerInstitution)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append snapshot")
		}
		span.SetAttributes(
			attribute.Int64("institution.id", int64(req.Institution)),
			attribute.Int64("snapshot.index", int64(recorded.Index)),
		)

		if fee.Sign() > 0 && attached.Sign() > 0 {
			s.forwardFee(ctx, req.Institution, attached)
		}

		s.emit(ctx, audit.ActionSnapshotRecorded, req.Institution,
			"index", strconv.FormatUint(uint64(recorded.Index), 10),
			"timestamp", strconv.FormatUint(recorded.Timestamp, 10),
			"net_flow_bps", strconv.FormatInt(recorded.NetFlowBps, 10),
			"notional_usd_scaled", strconv.FormatUint(recorded.NotionalUsdScaled, 10),
			"sentiment_score", strconv.FormatInt(recorded.SentimentScore, 10),
			"horizon_days", strconv.FormatUint(uint64(recorded.HorizonDays), 10),
			"label_hash", recorded.LabelHash.Hex(),
			"reporter_client", requestcontext.UserAgent(ctx),
		)
		if s.metrics != nil {
			s.metrics.SnapshotsRecorded.Inc()
			s.metrics.RecordDuration.Observe(time.Since(start).Seconds())
		}
		return nil
	})
	return recorded, err
}

// forwardFee attempts the one per-recording transfer to the fee sink. A
// failure is swallowed: the only traces are the warning log and the
// failure counter, and no fee.forwarded event is emitted.
func (s *Service) forwardFee(ctx context.Context, id domain.InstitutionID, amountWei *big.Int) {
	sink := s.access.FeeSink()
	if err := s.forwarder.Forward(ctx, sink, amountWei); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "fee forward failed",
				"institution_id", uint64(id),
				"amount_wei", amountWei.String(),
				"error", err,
			)
		}
		if s.metrics != nil {
			s.metrics.FeeForwardFailures.Inc()
		}
		return
	}
	s.emit(ctx, audit.ActionFeeForwarded, id,
		"sink", sink.Hex(),
		"amount_wei", amountWei.String(),
	)
	if s.metrics != nil {
		s.metrics.FeeForwards.Inc()
	}
}

// RebaseWindow overwrites the rolling-window start pointer. Governance or
// sentinel; the institution must be active. The rolling counters are not
// reset, so this is a one-way marker move.
func (s *Service) RebaseWindow(ctx context.Context, id domain.InstitutionID, newStart uint64) error {
	return s.gate.Do(ctx, func(ctx context.Context) error {
		if err := s.access.RequireGovernanceOrSentinel(ctx); err != nil {
			return err
		}
		active, err := s.institutions.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !active {
			return dErrors.New(dErrors.CodeInstitutionNotFound, "institution does not exist or is deactivated")
		}

		old, err := s.ledger.Rebase(ctx, id, newStart)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to rebase window")
		}

		s.emit(ctx, audit.ActionWindowRebased, id,
			"old_window_start", strconv.FormatUint(old, 10),
			"new_window_start", strconv.FormatUint(newStart, 10),
		)
		if s.metrics != nil {
			s.metrics.WindowRebases.Inc()
		}
		return nil
	})
}

// Latest returns the most recent snapshot.
func (s *Service) Latest(ctx context.Context, id domain.InstitutionID) (*models.Snapshot, error) {
	count, err := s.ledger.Count(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count snapshots")
	}
	if count == 0 {
		return nil, dErrors.New(dErrors.CodeIndexOutOfRange, "no snapshots recorded")
	}
	return s.ByIndex(ctx, id, count-1)
}

// ByIndex returns one snapshot by its dense index. Historical reads stay
// available after the institution is deactivated.
func (s *Service) ByIndex(ctx context.Context, id domain.InstitutionID, index uint32) (*models.Snapshot, error) {
	snap, err := s.ledger.ByIndex(ctx, id, index)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeIndexOutOfRange, "index %d is past the end of the ledger", index)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load snapshot")
	}
	return snap, nil
}

// Count returns the ledger length.
func (s *Service) Count(ctx context.Context, id domain.InstitutionID) (uint32, error) {
	count, err := s.ledger.Count(ctx, id)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count snapshots")
	}
	return count, nil
}

// Range returns the half-open slice [from, to); from <= to <= length.
func (s *Service) Range(ctx context.Context, id domain.InstitutionID, from, to uint32) ([]models.Snapshot, error) {
	count, err := s.ledger.Count(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count snapshots")
	}
	if from > to || to > count {
		return nil, dErrors.New(dErrors.CodeIndexOutOfRange, "range bounds must satisfy from <= to <= length")
	}
	out, err := s.ledger.Range(ctx, id, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load snapshot range")
	}
	return out, nil
}

// Batch returns up to limit snapshots starting at offset. The limit is
// silently clamped to MaxBatchSize; an offset past the end yields an
// empty page, not an error.
func (s *Service) Batch(ctx context.Context, id domain.InstitutionID, offset uint32, limit uint32) ([]models.Snapshot, error) {
	if limit > models.MaxBatchSize {
		limit = models.MaxBatchSize
	}
	count, err := s.ledger.Count(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count snapshots")
	}
	if offset >= count || limit == 0 {
		return []models.Snapshot{}, nil
	}
	to := offset + limit
	if to > count {
		to = count
	}
	out, err := s.ledger.Range(ctx, id, offset, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load snapshot batch")
	}
	return out, nil
}

// Aggregates returns the derived record. Before the first snapshot or
// rebase the record simply does not exist yet and reads as all zeroes.
func (s *Service) Aggregates(ctx context.Context, id domain.InstitutionID) (*models.Aggregates, error) {
	agg, err := s.ledger.Aggregates(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.Aggregates{Institution: id}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load aggregates")
	}
	return agg, nil
}

// WindowHealth projects the rolling counters with derived ratios. Net flow
// percent is basis points over 10000; the average is per recorded
// snapshot since bootstrap.
func (s *Service) WindowHealth(ctx context.Context, id domain.InstitutionID) (*WindowHealth, error) {
	agg, err := s.Aggregates(ctx, id)
	if err != nil {
		return nil, err
	}

	health := &WindowHealth{
		WindowStart:    agg.RollingWindowStart,
		SnapshotCount:  agg.RollingSnapshotCount,
		NetFlowBps:     agg.RollingNetFlowBps,
		NetFlowPercent: decimal.NewFromInt(agg.RollingNetFlowBps).Div(decimal.NewFromInt(10000)),
		AvgNetFlowBps:  decimal.Zero,
	}
	if agg.RollingSnapshotCount > 0 {
		health.AvgNetFlowBps = decimal.NewFromInt(agg.RollingNetFlowBps).
			DivRound(decimal.NewFromInt(int64(agg.RollingSnapshotCount)), 4)
	}
	return health, nil
}

// emit logs and publishes one notification. attributes is a key-value
// list in slog argument order.
func (s *Service) emit(ctx context.Context, action audit.Action, id domain.InstitutionID, attributes ...any) {
	if s.logger != nil {
		args := append(attributes,
			"institution_id", uint64(id),
			"caller", requestcontext.Caller(ctx).Hex(),
			"request_id", requestcontext.RequestID(ctx),
		)
		s.logger.InfoContext(ctx, string(action), args...)
	}
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Emit(ctx, audit.Event{
		Timestamp:   requestcontext.Now(ctx),
		Action:      action,
		Caller:      requestcontext.Caller(ctx).Hex(),
		Subject:     id.String(),
		Institution: id,
		Attrs:       attrs.ToMap(attributes),
	})
}
