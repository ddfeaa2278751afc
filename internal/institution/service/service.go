// Package service implements the institution directory: onboarding,
// controller bindings, tag management, soft deactivation, and read
// projections over the registry.
package service

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/sha3"

	"flowledger/internal/audit"
	instmetrics "flowledger/internal/institution/metrics"
	"flowledger/internal/institution/models"
	"flowledger/internal/institution/statscache"
	"flowledger/internal/platform/serial"
	"flowledger/pkg/attrs"
	dErrors "flowledger/pkg/domain-errors"
	"flowledger/pkg/domain"
	"flowledger/pkg/platform/sentinel"
	"flowledger/pkg/requestcontext"
)

// samplingDomain separates directory sampling digests from any other
// Keccak usage sharing a seed.
var samplingDomain = []byte("flowledger.directory.sample.v1")

// Directory is the registry persistence contract.
type Directory interface {
	Create(ctx context.Context, inst *models.Institution) (domain.InstitutionID, error)
	Get(ctx context.Context, id domain.InstitutionID) (*models.Institution, error)
	ByController(ctx context.Context, controller domain.Address) (domain.InstitutionID, error)
	Execute(ctx context.Context, id domain.InstitutionID, validate func(*models.Institution) error, apply func(*models.Institution)) (*models.Institution, error)
	List(ctx context.Context) ([]*models.Institution, error)
	Count(ctx context.Context) (int, error)
}

// Authorizer is the slice of access control the directory needs.
type Authorizer interface {
	RequireGovernance(ctx context.Context) error
}

// AuditPublisher fans out emitted notifications.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the institution-directory module facade.
type Service struct {
	directory Directory
	access    Authorizer
	gate      *serial.Gate

	logger    *slog.Logger
	publisher AuditPublisher
	metrics   *instmetrics.Metrics
	stats     *statscache.Cache
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithMetrics(m *instmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithStatsCache(c *statscache.Cache) Option {
	return func(s *Service) { s.stats = c }
}

func New(directory Directory, access Authorizer, gate *serial.Gate, opts ...Option) *Service {
	s := &Service{
		directory: directory,
		access:    access,
		gate:      gate,
		tracer:    otel.Tracer("flowledger/institution"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Onboard registers a new institution and binds its controller. Governance
// only. Re-onboarding with a controller that is already bound silently
// repoints the reverse lookup; the older institution keeps its forward
// binding but can no longer be resolved from the address.
func (s *Service) Onboard(
	ctx context.Context,
	controller domain.Address,
	regionCode uint32,
	riskTier uint8,
	primaryTag domain.Label,
	tags []domain.Label,
) (domain.InstitutionID, error) {
	var id domain.InstitutionID
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		ctx, span := s.tracer.Start(ctx, "institution.onboard")
		defer span.End()

		if err := s.access.RequireGovernance(ctx); err != nil {
			return err
		}

		inst, err := models.NewInstitution(controller, regionCode, riskTier, primaryTag, tags, requestcontext.Now(ctx))
		if err != nil {
			return err
		}

		count, err := s.directory.Count(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count institutions")
		}
		if count >= models.MaxInstitutions {
			return dErrors.Newf(dErrors.CodeMaxInstitutions, "directory is full at %d institutions", models.MaxInstitutions)
		}
		if err := models.ValidateTags(tags); err != nil {
			return err
		}

		id, err = s.directory.Create(ctx, inst)
		if err != nil {
			if errors.Is(err, sentinel.ErrCapacity) {
				return dErrors.Newf(dErrors.CodeMaxInstitutions, "directory is full at %d institutions", models.MaxInstitutions)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create institution")
		}
		span.SetAttributes(attribute.Int64("institution.id", int64(id)))

		s.emit(ctx, audit.ActionInstitutionOnboarded, id,
			"controller", controller.Hex(),
			"region_code", formatUint(uint64(regionCode)),
			"risk_tier", formatUint(uint64(riskTier)),
		)
		if s.metrics != nil {
			s.metrics.Onboarded.Inc()
		}
		s.invalidateStats(ctx)
		return nil
	})
	return id, err
}

// SetTags replaces the primary tag and the full tag set. Governance only;
// the institution must be active.
func (s *Service) SetTags(ctx context.Context, id domain.InstitutionID, primaryTag domain.Label, tags []domain.Label) error {
	return s.gate.Do(ctx, func(ctx context.Context) error {
		if err := s.access.RequireGovernance(ctx); err != nil {
			return err
		}
		_, err := s.directory.Execute(ctx, id,
			func(inst *models.Institution) error {
				if !inst.Active {
					return sentinel.ErrNotFound
				}
				return models.ValidateTags(tags)
			},
			func(inst *models.Institution) {
				inst.ApplyTags(primaryTag, tags)
			},
		)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeInstitutionNotFound, "institution does not exist or is deactivated")
			}
			var coded *dErrors.DomainError
			if errors.As(err, &coded) {
				return err
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update tags")
		}

		s.emit(ctx, audit.ActionInstitutionTagsUpdated, id,
			"tag_count", formatUint(uint64(len(tags))),
		)
		if s.metrics != nil {
			s.metrics.TagUpdates.Inc()
		}
		return nil
	})
}

// Deactivate permanently soft-deactivates an institution. Governance only.
// Deactivating an already-deactivated institution fails with
// InstitutionNotFound because existence for mutations means active.
func (s *Service) Deactivate(ctx context.Context, id domain.InstitutionID) error {
	return s.gate.Do(ctx, func(ctx context.Context) error {
		if err := s.access.RequireGovernance(ctx); err != nil {
			return err
		}
		_, err := s.directory.Execute(ctx, id,
			func(inst *models.Institution) error {
				if !inst.Active {
					return sentinel.ErrNotFound
				}
				return nil
			},
			func(inst *models.Institution) {
				inst.ApplyDeactivation()
			},
		)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeInstitutionNotFound, "institution does not exist or is deactivated")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate institution")
		}

		s.emit(ctx, audit.ActionInstitutionDeactivated, id)
		if s.metrics != nil {
			s.metrics.Deactivated.Inc()
		}
		s.invalidateStats(ctx)
		return nil
	})
}

// Get returns the stored record for id, active or not. Historical reads
// stay available after deactivation.
func (s *Service) Get(ctx context.Context, id domain.InstitutionID) (*models.Institution, error) {
	inst, err := s.directory.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInstitutionNotFound, "institution does not exist")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load institution")
	}
	return inst, nil
}

// Exists reports whether id names an active institution. This is the
// existence predicate every gated mutation uses.
func (s *Service) Exists(ctx context.Context, id domain.InstitutionID) (bool, error) {
	inst, err := s.directory.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load institution")
	}
	return inst.Active, nil
}

// ControllerOf resolves the forward binding id -> controller.
func (s *Service) ControllerOf(ctx context.Context, id domain.InstitutionID) (domain.Address, error) {
	inst, err := s.Get(ctx, id)
	if err != nil {
		return domain.ZeroAddress, err
	}
	return inst.Controller, nil
}

// InstitutionOf resolves the reverse binding controller -> id. A controller
// whose binding was repointed by a later onboarding resolves to the newer
// institution only.
func (s *Service) InstitutionOf(ctx context.Context, controller domain.Address) (domain.InstitutionID, error) {
	id, err := s.directory.ByController(ctx, controller)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, dErrors.New(dErrors.CodeInstitutionNotFound, "no institution bound to controller")
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve controller")
	}
	return id, nil
}

// RegionStats counts active institutions in a region. The scan is linear
// over the directory; results are memoized in the stats cache when one is
// configured.
func (s *Service) RegionStats(ctx context.Context, regionCode uint32) (uint64, error) {
	if s.stats.Enabled() {
		if count, ok := s.stats.GetRegion(ctx, regionCode); ok {
			s.countStatsQuery("region", "cache")
			return count, nil
		}
	}
	count, err := s.scan(ctx, func(inst *models.Institution) bool {
		return inst.RegionCode == regionCode
	})
	if err != nil {
		return 0, err
	}
	if s.stats.Enabled() {
		if err := s.stats.SetRegion(ctx, regionCode, count); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to cache region stats", "error", err)
		}
	}
	s.countStatsQuery("region", "scan")
	return count, nil
}

// TierStats counts active institutions in a risk tier.
func (s *Service) TierStats(ctx context.Context, riskTier uint8) (uint64, error) {
	if riskTier == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidRiskTier, "risk tier must be in 1..255")
	}
	if s.stats.Enabled() {
		if count, ok := s.stats.GetTier(ctx, riskTier); ok {
			s.countStatsQuery("tier", "cache")
			return count, nil
		}
	}
	count, err := s.scan(ctx, func(inst *models.Institution) bool {
		return inst.RiskTier == riskTier
	})
	if err != nil {
		return 0, err
	}
	if s.stats.Enabled() {
		if err := s.stats.SetTier(ctx, riskTier, count); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to cache tier stats", "error", err)
		}
	}
	s.countStatsQuery("tier", "scan")
	return count, nil
}

// Sample deterministically picks up to n distinct active institution ids
// from a caller-supplied seed. Selection hashes seed and a counter with
// Keccak-256 under a fixed domain separator. The output is reproducible
// from the seed and MUST NOT be used for security-sensitive selection.
func (s *Service) Sample(ctx context.Context, seed []byte, n int) ([]domain.InstitutionID, error) {
	if n <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "sample size must be positive")
	}
	all, err := s.directory.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list institutions")
	}
	active := make([]domain.InstitutionID, 0, len(all))
	for _, inst := range all {
		if inst.Active {
			active = append(active, inst.ID)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })
	if len(active) == 0 {
		return nil, nil
	}
	if n > len(active) {
		n = len(active)
	}

	picked := make([]domain.InstitutionID, 0, n)
	seen := make(map[domain.InstitutionID]struct{}, n)
	for counter := uint64(0); len(picked) < n; counter++ {
		hasher := sha3.NewLegacyKeccak256()
		hasher.Write(seed)
		hasher.Write(samplingDomain)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], counter)
		hasher.Write(buf[:])
		digest := hasher.Sum(nil)

		idx := binary.BigEndian.Uint64(digest[:8]) % uint64(len(active))
		id := active[idx]
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		picked = append(picked, id)
	}
	return picked, nil
}

// Count reports how many institutions have ever been onboarded, including
// deactivated ones.
func (s *Service) Count(ctx context.Context) (int, error) {
	count, err := s.directory.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count institutions")
	}
	return count, nil
}

func (s *Service) scan(ctx context.Context, match func(*models.Institution) bool) (uint64, error) {
	all, err := s.directory.List(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list institutions")
	}
	var count uint64
	for _, inst := range all {
		if inst.Active && match(inst) {
			count++
		}
	}
	return count, nil
}

func (s *Service) countStatsQuery(dimension, source string) {
	if s.metrics != nil {
		s.metrics.StatsQueries.WithLabelValues(dimension, source).Inc()
	}
}

func (s *Service) invalidateStats(ctx context.Context) {
	if !s.stats.Enabled() {
		return
	}
	if err := s.stats.Invalidate(ctx); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to invalidate stats cache", "error", err)
	}
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

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
