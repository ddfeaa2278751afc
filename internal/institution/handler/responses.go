package handler

import (
	"time"

	"flowledger/internal/institution/models"
	"flowledger/pkg/domain"
)

// InstitutionResponse is the HTTP representation of a directory record.
type InstitutionResponse struct {
	ID          uint64    `json:"id"`
	Controller  string    `json:"controller"`
	Active      bool      `json:"active"`
	OnboardedAt time.Time `json:"onboarded_at"`
	RegionCode  uint32    `json:"region_code"`
	RiskTier    uint8     `json:"risk_tier"`
	PrimaryTag  string    `json:"primary_tag"`
	Tags        []string  `json:"tags"`
}

func fromInstitution(inst *models.Institution) *InstitutionResponse {
	tags := make([]string, len(inst.Tags))
	for i, tag := range inst.Tags {
		tags[i] = tag.Hex()
	}
	return &InstitutionResponse{
		ID:          uint64(inst.ID),
		Controller:  inst.Controller.Hex(),
		Active:      inst.Active,
		OnboardedAt: inst.OnboardedAt,
		RegionCode:  inst.RegionCode,
		RiskTier:    inst.RiskTier,
		PrimaryTag:  inst.PrimaryTag.Hex(),
		Tags:        tags,
	}
}

// OnboardResponse returns the freshly assigned id.
type OnboardResponse struct {
	ID uint64 `json:"id"`
}

// StatsResponse carries one directory count.
type StatsResponse struct {
	Count uint64 `json:"count"`
}

// SampleResponse carries the deterministic selection for a seed.
type SampleResponse struct {
	IDs []uint64 `json:"ids"`
}

func fromIDs(ids []domain.InstitutionID) *SampleResponse {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return &SampleResponse{IDs: out}
}
