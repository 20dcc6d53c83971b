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

type ledgerService interface {
	List(ctx context.Context, uid string, q dto.LedgerQuery) ([]models.LedgerEntry, error)
	Create(ctx context.Context, uid string, req dto.LedgerEntryRequest) (*models.LedgerEntry, error)
	Delete(ctx context.Context, uid, entryID string) error
}

type ledgerHandlers struct {
	ResponseHandler response.ResponseHandler
	LedgerSvc       ledgerService
}

func NewLedgerHandlers(deps *Deps) *ledgerHandlers {
	return &ledgerHandlers{
		ResponseHandler: deps.ResponseHandler,
		LedgerSvc:       deps.LedgerSvc,
	}
}

func (h *ledgerHandlers) LedgerRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Delete("/{id}", h.Delete)
	return r
}

func (h *ledgerHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := dto.LedgerQuery{
		From: r.URL.Query().Get("from"),
		To:   r.URL.Query().Get("to"),
	}
	entries, err := h.LedgerSvc.List(r.Context(), middleware.UID(r.Context()), q)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, entries)
}

func (h *ledgerHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var body dto.LedgerEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	entry, err := h.LedgerSvc.Create(r.Context(), middleware.UID(r.Context()), body)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusCreated, entry)
}

func (h *ledgerHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.LedgerSvc.Delete(r.Context(), middleware.UID(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}
