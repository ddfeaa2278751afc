package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"flowledger/internal/institution/models"
	"flowledger/internal/transport/http/shared"
	dErrors "flowledger/pkg/domain-errors"
	"flowledger/pkg/domain"
	"flowledger/pkg/requestcontext"
)

// Service defines the directory operations the handler exposes.
type Service interface {
	Onboard(ctx context.Context, controller domain.Address, regionCode uint32, riskTier uint8, primaryTag domain.Label, tags []domain.Label) (domain.InstitutionID, error)
	SetTags(ctx context.Context, id domain.InstitutionID, primaryTag domain.Label, tags []domain.Label) error
	Deactivate(ctx context.Context, id domain.InstitutionID) error
	Get(ctx context.Context, id domain.InstitutionID) (*models.Institution, error)
	InstitutionOf(ctx context.Context, controller domain.Address) (domain.InstitutionID, error)
	RegionStats(ctx context.Context, regionCode uint32) (uint64, error)
	TierStats(ctx context.Context, riskTier uint8) (uint64, error)
	Sample(ctx context.Context, seed []byte, n int) ([]domain.InstitutionID, error)
	Count(ctx context.Context) (int, error)
}

// Handler wires directory endpoints to the institution service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the write endpoints. These sit behind authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/institutions", h.HandleOnboard)
	r.Put("/institutions/{id}/tags", h.HandleSetTags)
	r.Delete("/institutions/{id}", h.HandleDeactivate)
}

// RegisterReads mounts the read projections, served without authentication.
func (h *Handler) RegisterReads(r chi.Router) {
	r.Get("/institutions/{id}", h.HandleGet)
	r.Get("/controllers/{address}", h.HandleByController)
	r.Get("/stats/regions/{code}", h.HandleRegionStats)
	r.Get("/stats/tiers/{tier}", h.HandleTierStats)
	r.Post("/institutions/sample", h.HandleSample)
}

// HandleOnboard handles POST /institutions.
func (h *Handler) HandleOnboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := shared.DecodeAndValidate[OnboardRequest](w, r)
	if !ok {
		return
	}

	id, err := h.service.Onboard(ctx, req.parsedController, req.RegionCode, req.RiskTier, req.parsedPrimaryTag, req.parsedTags)
	if err != nil {
		h.logger.ErrorContext(ctx, "onboarding failed",
			"request_id", requestcontext.RequestID(ctx),
			"controller", req.Controller,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, OnboardResponse{ID: uint64(id)})
}

// HandleSetTags handles PUT /institutions/{id}/tags.
func (h *Handler) HandleSetTags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := shared.DecodeAndValidate[SetTagsRequest](w, r)
	if !ok {
		return
	}

	if err := h.service.SetTags(ctx, id, req.parsedPrimaryTag, req.parsedTags); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeactivate handles DELETE /institutions/{id}.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(ctx, id); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGet handles GET /institutions/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inst, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, fromInstitution(inst))
}

// HandleByController handles GET /controllers/{address}.
func (h *Handler) HandleByController(w http.ResponseWriter, r *http.Request) {
	controller, ok := domain.ParseAddress(chi.URLParam(r, "address"))
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "address must be a 0x-prefixed 20-byte hex address"))
		return
	}
	id, err := h.service.InstitutionOf(r.Context(), controller)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, OnboardResponse{ID: uint64(id)})
}

// HandleRegionStats handles GET /stats/regions/{code}.
func (h *Handler) HandleRegionStats(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.ParseUint(chi.URLParam(r, "code"), 10, 32)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "region code must be a decimal uint32"))
		return
	}
	count, err := h.service.RegionStats(r.Context(), uint32(code))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, StatsResponse{Count: count})
}

// HandleTierStats handles GET /stats/tiers/{tier}.
func (h *Handler) HandleTierStats(w http.ResponseWriter, r *http.Request) {
	tier, err := strconv.ParseUint(chi.URLParam(r, "tier"), 10, 8)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "risk tier must be a decimal uint8"))
		return
	}
	count, err := h.service.TierStats(r.Context(), uint8(tier))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, StatsResponse{Count: count})
}

// HandleSample handles POST /institutions/sample.
func (h *Handler) HandleSample(w http.ResponseWriter, r *http.Request) {
	req, ok := shared.DecodeAndValidate[SampleRequest](w, r)
	if !ok {
		return
	}
	ids, err := h.service.Sample(r.Context(), []byte(req.Seed), req.N)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, fromIDs(ids))
}

func pathID(w http.ResponseWriter, r *http.Request) (domain.InstitutionID, bool) {
	id, err := domain.ParseInstitutionID(chi.URLParam(r, "id"))
	if err != nil || id.IsZero() {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "id must be a positive decimal institution id"))
		return 0, false
	}
	return id, true
}
