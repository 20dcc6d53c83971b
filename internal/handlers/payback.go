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

type paybackService interface {
	List(ctx context.Context, uid string) ([]models.Payback, error)
	Create(ctx context.Context, uid string, req dto.PaybackRequest) (*models.Payback, error)
	Delete(ctx context.Context, uid, paybackID string) error
}

type paybackHandlers struct {
	ResponseHandler response.ResponseHandler
	PaybackSvc      paybackService
}

func NewPaybackHandlers(deps *Deps) *paybackHandlers {
	return &paybackHandlers{
		ResponseHandler: deps.ResponseHandler,
		PaybackSvc:      deps.PaybackSvc,
	}
}

func (h *paybackHandlers) PaybackRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Delete("/{id}", h.Delete)
	return r
}

func (h *paybackHandlers) List(w http.ResponseWriter, r *http.Request) {
	paybacks, err := h.PaybackSvc.List(r.Context(), middleware.UID(r.Context()))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, paybacks)
}

func (h *paybackHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var body dto.PaybackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	p, err := h.PaybackSvc.Create(r.Context(), middleware.UID(r.Context()), body)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusCreated, p)
}

func (h *paybackHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.PaybackSvc.Delete(r.Context(), middleware.UID(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}
