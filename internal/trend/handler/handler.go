package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"flowledger/internal/trend/models"
	"flowledger/internal/trend/service"
	"flowledger/internal/transport/http/shared"
	dErrors "flowledger/pkg/domain-errors"
	"flowledger/pkg/domain"
	"flowledger/pkg/requestcontext"
)

// Service defines the ledger operations the handler exposes.
type Service interface {
	Record(ctx context.Context, req service.RecordRequest) (*models.Snapshot, error)
	RebaseWindow(ctx context.Context, id domain.InstitutionID, newStart uint64) error
	Latest(ctx context.Context, id domain.InstitutionID) (*models.Snapshot, error)
	ByIndex(ctx context.Context, id domain.InstitutionID, index uint32) (*models.Snapshot, error)
	Count(ctx context.Context, id domain.InstitutionID) (uint32, error)
	Range(ctx context.Context, id domain.InstitutionID, from, to uint32) ([]models.Snapshot, error)
	Batch(ctx context.Context, id domain.InstitutionID, offset, limit uint32) ([]models.Snapshot, error)
	Aggregates(ctx context.Context, id domain.InstitutionID) (*models.Aggregates, error)
	WindowHealth(ctx context.Context, id domain.InstitutionID) (*service.WindowHealth, error)
}

// Handler wires ledger endpoints to the trend service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the write endpoints. These sit behind authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/institutions/{id}/snapshots", h.HandleRecord)
	r.Put("/institutions/{id}/window", h.HandleRebase)
}

// RegisterReads mounts the read projections, served without authentication.
func (h *Handler) RegisterReads(r chi.Router) {
	r.Get("/institutions/{id}/snapshots", h.HandleBatch)
	r.Get("/institutions/{id}/snapshots/latest", h.HandleLatest)
	r.Get("/institutions/{id}/snapshots/count", h.HandleCount)
	r.Get("/institutions/{id}/snapshots/range", h.HandleRange)
	r.Get("/institutions/{id}/snapshots/{index}", h.HandleByIndex)
	r.Get("/institutions/{id}/aggregates", h.HandleAggregates)
	r.Get("/institutions/{id}/window", h.HandleWindowHealth)
}

// HandleRecord handles POST /institutions/{id}/snapshots.
func (h *Handler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := shared.DecodeAndValidate[RecordRequest](w, r)
	if !ok {
		return
	}

	snap, err := h.service.Record(ctx, service.RecordRequest{
		Institution:       id,
		NetFlowBps:        req.NetFlowBps,
		NotionalUsdScaled: req.NotionalUsdScaled,
		SentimentScore:    req.SentimentScore,
		HorizonDays:       req.HorizonDays,
		LabelHash:         req.parsedLabel,
		AttachedValueWei:  req.parsedValue,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "snapshot recording failed",
			"request_id", requestcontext.RequestID(ctx),
			"institution_id", uint64(id),
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, fromSnapshot(snap))
}

// HandleRebase handles PUT /institutions/{id}/window.
func (h *Handler) HandleRebase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := shared.DecodeAndValidate[RebaseRequest](w, r)
	if !ok {
		return
	}
	if err := h.service.RebaseWindow(r.Context(), id, req.NewWindowStart); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLatest handles GET /institutions/{id}/snapshots/latest.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	snap, err := h.service.Latest(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, fromSnapshot(snap))
}

// HandleByIndex handles GET /institutions/{id}/snapshots/{index}.
func (h *Handler) HandleByIndex(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 32)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "index must be a decimal uint32"))
		return
	}
	snap, err := h.service.ByIndex(r.Context(), id, uint32(index))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, fromSnapshot(snap))
}

// HandleCount handles GET /institutions/{id}/snapshots/count.
func (h *Handler) HandleCount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	count, err := h.service.Count(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, CountResponse{Count: count})
}

// HandleRange handles GET /institutions/{id}/snapshots/range?from=&to=.
func (h *Handler) HandleRange(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	from, ok := queryUint32(w, r, "from")
	if !ok {
		return
	}
	to, ok := queryUint32(w, r, "to")
	if !ok {
		return
	}
	snaps, err := h.service.Range(r.Context(), id, from, to)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, fromSnapshots(snaps))
}

// HandleBatch handles GET /institutions/{id}/snapshots?offset=&limit=.
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	offset := uint32(0)
	if r.URL.Query().Get("offset") != "" {
		offset, ok = queryUint32(w, r, "offset")
		if !ok {
			return
		}
	}
	limit := uint32(models.MaxBatchSize)
	if r.URL.Query().Get("limit") != "" {
		limit, ok = queryUint32(w, r, "limit")
		if !ok {
			return
		}
	}
	snaps, err := h.service.Batch(r.Context(), id, offset, limit)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, fromSnapshots(snaps))
}

// HandleAggregates handles GET /institutions/{id}/aggregates.
func (h *Handler) HandleAggregates(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	agg, err := h.service.Aggregates(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, fromAggregates(agg))
}

// HandleWindowHealth handles GET /institutions/{id}/window.
func (h *Handler) HandleWindowHealth(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	health, err := h.service.WindowHealth(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, fromWindowHealth(health))
}

func pathID(w http.ResponseWriter, r *http.Request) (domain.InstitutionID, bool) {
	id, err := domain.ParseInstitutionID(chi.URLParam(r, "id"))
	if err != nil || id.IsZero() {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "id must be a positive decimal institution id"))
		return 0, false
	}
	return id, true
}

func queryUint32(w http.ResponseWriter, r *http.Request, name string) (uint32, bool) {
	v, err := strconv.ParseUint(r.URL.Query().Get(name), 10, 32)
	if err != nil {
		shared.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "%s must be a decimal uint32", name))
		return 0, false
	}
	return uint32(v), true
}
