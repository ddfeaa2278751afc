package handler

import (
	dErrors "flowledger/pkg/domain-errors"
	"flowledger/pkg/domain"
)

// OnboardRequest is the HTTP request body for POST /institutions.
type OnboardRequest struct {
	Controller string   `json:"controller"`
	RegionCode uint32   `json:"region_code"`
	RiskTier   uint8    `json:"risk_tier"`
	PrimaryTag string   `json:"primary_tag"`
	Tags       []string `json:"tags"`

	parsedController domain.Address
	parsedPrimaryTag domain.Label
	parsedTags       []domain.Label
}

// Validate parses the hex-encoded fields. Semantic rules (zero address,
// region, tier, cardinality) are enforced by the service so their error
// ordering stays in one place.
func (r *OnboardRequest) Validate() error {
	controller, ok := domain.ParseAddress(r.Controller)
	if !ok {
		return dErrors.New(dErrors.CodeBadRequest, "controller must be a 0x-prefixed 20-byte hex address")
	}
	r.parsedController = controller

	primary, ok := domain.ParseLabel(r.PrimaryTag)
	if !ok {
		return dErrors.New(dErrors.CodeBadRequest, "primary_tag must be a 0x-prefixed 32-byte hex label")
	}
	r.parsedPrimaryTag = primary

	tags, err := parseLabels(r.Tags)
	if err != nil {
		return err
	}
	r.parsedTags = tags
	return nil
}

// SetTagsRequest is the HTTP request body for PUT /institutions/{id}/tags.
type SetTagsRequest struct {
	PrimaryTag string   `json:"primary_tag"`
	Tags       []string `json:"tags"`

	parsedPrimaryTag domain.Label
	parsedTags       []domain.Label
}

func (r *SetTagsRequest) Validate() error {
	primary, ok := domain.ParseLabel(r.PrimaryTag)
	if !ok {
		return dErrors.New(dErrors.CodeBadRequest, "primary_tag must be a 0x-prefixed 32-byte hex label")
	}
	r.parsedPrimaryTag = primary

	tags, err := parseLabels(r.Tags)
	if err != nil {
		return err
	}
	r.parsedTags = tags
	return nil
}

// SampleRequest is the HTTP request body for POST /institutions/sample.
type SampleRequest struct {
	Seed string `json:"seed"`
	N    int    `json:"n"`
}

func (r *SampleRequest) Validate() error {
	if r.Seed == "" {
		return dErrors.New(dErrors.CodeBadRequest, "seed is required")
	}
	return nil
}

// parseLabels decodes hex labels without bounding cardinality; the
// service enforces the tag cap so its error ordering is authoritative.
func parseLabels(texts []string) ([]domain.Label, error) {
	out := make([]domain.Label, len(texts))
	for i, text := range texts {
		label, ok := domain.ParseLabel(text)
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeBadRequest, "tags[%d] must be a 0x-prefixed 32-byte hex label", i)
		}
		out[i] = label
	}
	return out, nil
}
