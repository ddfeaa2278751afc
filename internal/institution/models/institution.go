package models

import (
	"time"

	dErrors "flowledger/pkg/domain-errors"
	"flowledger/pkg/domain"
)

const (
	// MaxInstitutions caps the directory permanently; there is no eviction.
	MaxInstitutions = 4096
	// MaxTags bounds the ordered tag sequence per institution.
	MaxTags = 32
)

// Institution is the aggregate root for one tracked allocator.
//
// Invariants:
//   - ID is sequential from 1 and never reused, not even after deactivation
//   - RegionCode is nonzero
//   - RiskTier is in 1..255
//   - Tags holds at most MaxTags entries
//   - OnboardedAt is immutable after construction
//   - Deactivation is permanent: there is no transition back to active
//
// Existence for every gated operation means Active == true. A deactivated
// institution is indistinguishable from a never-created one to mutations,
// while its historical snapshots stay readable through the ledger's index
// lookups, which do not consult this flag.
type Institution struct {
	ID          domain.InstitutionID `json:"id"`
	Controller  domain.Address       `json:"controller"`
	Active      bool                 `json:"active"`
	OnboardedAt time.Time            `json:"onboarded_at"`
	RegionCode  uint32               `json:"region_code"`
	RiskTier    uint8                `json:"risk_tier"`
	PrimaryTag  domain.Label         `json:"primary_tag"`
	Tags        []domain.Label       `json:"tags"`
}

// NewInstitution validates and builds an institution record. The id is
// assigned by the directory store, not here. Tag length is validated
// separately (ValidateTags) because capacity exhaustion must surface
// before an oversized tag set does.
func NewInstitution(controller domain.Address, regionCode uint32, riskTier uint8, primaryTag domain.Label, tags []domain.Label, now time.Time) (*Institution, error) {
	if controller == domain.ZeroAddress {
		return nil, dErrors.New(dErrors.CodeZeroAddress, "controller must not be the zero address")
	}
	if regionCode == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidRegion, "region code must be nonzero")
	}
	if riskTier == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidRiskTier, "risk tier must be in 1..255")
	}
	return &Institution{
		Controller:  controller,
		Active:      true,
		OnboardedAt: now,
		RegionCode:  regionCode,
		RiskTier:    riskTier,
		PrimaryTag:  primaryTag,
		Tags:        append([]domain.Label(nil), tags...),
	}, nil
}

// ValidateTags checks a replacement tag set before ApplyTags.
func ValidateTags(tags []domain.Label) error {
	if len(tags) > MaxTags {
		return dErrors.Newf(dErrors.CodeArrayTooLong, "at most %d tags allowed", MaxTags)
	}
	return nil
}

// ApplyTags replaces the primary tag and the whole tag sequence. Old tags
// are discarded, not merged.
func (i *Institution) ApplyTags(primaryTag domain.Label, tags []domain.Label) {
	i.PrimaryTag = primaryTag
	i.Tags = append([]domain.Label(nil), tags...)
}

// ApplyDeactivation soft-deactivates the institution permanently.
func (i *Institution) ApplyDeactivation() {
	i.Active = false
}

// Clone returns a deep copy so stores never hand out aliased tag slices.
func (i *Institution) Clone() *Institution {
	out := *i
	out.Tags = append([]domain.Label(nil), i.Tags...)
	return &out
}
