package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"flowledger/internal/transport/http/shared"
	dErrors "flowledger/pkg/domain-errors"
	"flowledger/pkg/domain"
	"flowledger/pkg/requestcontext"
)

// Service defines the access-control operations the handler exposes.
type Service interface {
	SetReporter(ctx context.Context, addr domain.Address, active bool) error
	SetSnapshotFee(ctx context.Context, feeWei *big.Int) error
	ToggleHalt(ctx context.Context, halted bool) error
	IsReporter(ctx context.Context, addr domain.Address) (bool, error)
	Halted(ctx context.Context) (bool, error)
	SnapshotFee(ctx context.Context) (*big.Int, error)
}

// Handler wires access-control endpoints to the access service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the write endpoints. These sit behind authentication.
func (h *Handler) Register(r chi.Router) {
	r.Put("/reporters/{address}", h.HandleSetReporter)
	r.Put("/fee", h.HandleSetFee)
	r.Put("/halt", h.HandleToggleHalt)
}

// RegisterReads mounts the read projections, served without authentication.
func (h *Handler) RegisterReads(r chi.Router) {
	r.Get("/reporters/{address}", h.HandleReporterMembership)
	r.Get("/state", h.HandleState)
}

// SetReporterRequest is the HTTP request body for PUT /reporters/{address}.
type SetReporterRequest struct {
	Active bool `json:"active"`
}

// SetFeeRequest is the HTTP request body for PUT /fee. The amount is a
// decimal string because wei values exceed JSON's safe integer range.
type SetFeeRequest struct {
	FeeWei string `json:"fee_wei"`

	parsedFee *big.Int
}

func (r *SetFeeRequest) Validate() error {
	fee, ok := new(big.Int).SetString(r.FeeWei, 10)
	if !ok || fee.Sign() < 0 {
		return dErrors.New(dErrors.CodeBadRequest, "fee_wei must be a non-negative decimal string")
	}
	r.parsedFee = fee
	return nil
}

// ToggleHaltRequest is the HTTP request body for PUT /halt.
type ToggleHaltRequest struct {
	Halted bool `json:"halted"`
}

// StateResponse is the global-state read projection.
type StateResponse struct {
	Halted         bool   `json:"halted"`
	SnapshotFeeWei string `json:"snapshot_fee_wei"`
}

// MembershipResponse reports whether an address may record snapshots.
type MembershipResponse struct {
	Address  string `json:"address"`
	Reporter bool   `json:"reporter"`
}

// HandleSetReporter handles PUT /reporters/{address}.
func (h *Handler) HandleSetReporter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	req, ok := shared.DecodeAndValidate[SetReporterRequest](w, r)
	if !ok {
		return
	}

	if err := h.service.SetReporter(ctx, addr, req.Active); err != nil {
		h.logger.ErrorContext(ctx, "reporter update failed",
			"request_id", requestcontext.RequestID(ctx),
			"reporter", addr.Hex(),
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetFee handles PUT /fee.
func (h *Handler) HandleSetFee(w http.ResponseWriter, r *http.Request) {
	req, ok := shared.DecodeAndValidate[SetFeeRequest](w, r)
	if !ok {
		return
	}
	if err := h.service.SetSnapshotFee(r.Context(), req.parsedFee); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleToggleHalt handles PUT /halt.
func (h *Handler) HandleToggleHalt(w http.ResponseWriter, r *http.Request) {
	req, ok := shared.DecodeAndValidate[ToggleHaltRequest](w, r)
	if !ok {
		return
	}
	if err := h.service.ToggleHalt(r.Context(), req.Halted); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReporterMembership handles GET /reporters/{address}.
func (h *Handler) HandleReporterMembership(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	active, err := h.service.IsReporter(r.Context(), addr)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, MembershipResponse{Address: addr.Hex(), Reporter: active})
}

// HandleState handles GET /state.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	halted, err := h.service.Halted(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	fee, err := h.service.SnapshotFee(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, StateResponse{Halted: halted, SnapshotFeeWei: fee.String()})
}

func pathAddress(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	addr, ok := domain.ParseAddress(chi.URLParam(r, "address"))
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "address must be a 0x-prefixed 20-byte hex address"))
		return domain.ZeroAddress, false
	}
	return addr, true
}
