package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/middleware"
	"github.com/GregMSThompson/budget-backend/internal/models"
	"github.com/GregMSThompson/budget-backend/internal/response"
)

type stagingService interface {
	List(ctx context.Context, uid string) ([]models.StagedTransaction, error)
	Promote(ctx context.Context, uid, transactionID string, req dto.PromoteRequest) (*models.LedgerEntry, error)
	Discard(ctx context.Context, uid, transactionID string) error
}

type categorizeService interface {
	Categorize(ctx context.Context, uid string) (dto.CategorizeResult, error)
}

type stagedHandlers struct {
	ResponseHandler response.ResponseHandler
	StagingSvc      stagingService
	CategorizeSvc   categorizeService
}

func NewStagedHandlers(deps *Deps) *stagedHandlers {
	return &stagedHandlers{
		ResponseHandler: deps.ResponseHandler,
		StagingSvc:      deps.StagingSvc,
		CategorizeSvc:   deps.CategorizeSvc,
	}
}

func (h *stagedHandlers) StagedRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/categorize", h.Categorize)
	r.Post("/{id}/promote", h.Promote)
	r.Delete("/{id}", h.Discard)
	return r
}

func (h *stagedHandlers) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.StagingSvc.List(r.Context(), middleware.UID(r.Context()))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, rows)
}

func (h *stagedHandlers) Categorize(w http.ResponseWriter, r *http.Request) {
	result, err := h.CategorizeSvc.Categorize(r.Context(), middleware.UID(r.Context()))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, result)
}

func (h *stagedHandlers) Promote(w http.ResponseWriter, r *http.Request) {
	var body dto.PromoteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	entry, err := h.StagingSvc.Promote(r.Context(), uid, chi.URLParam(r, "id"), body)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusCreated, entry)
}

func (h *stagedHandlers) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.StagingSvc.Discard(r.Context(), middleware.UID(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}
