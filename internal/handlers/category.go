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

type categoryService interface {
	List(ctx context.Context, uid string) ([]models.BudgetCategory, error)
	Create(ctx context.Context, uid string, req dto.CategoryRequest) (*models.BudgetCategory, error)
	Update(ctx context.Context, uid, categoryID string, req dto.CategoryRequest) (*models.BudgetCategory, error)
	Delete(ctx context.Context, uid, categoryID string) error
	Detail(ctx context.Context, uid, categoryID string) (*dto.CategoryDetail, error)
}

type categoryHandlers struct {
	ResponseHandler response.ResponseHandler
	CategorySvc     categoryService
}

func NewCategoryHandlers(deps *Deps) *categoryHandlers {
	return &categoryHandlers{
		ResponseHandler: deps.ResponseHandler,
		CategorySvc:     deps.CategorySvc,
	}
}

func (h *categoryHandlers) CategoryRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Get("/detail", h.Detail)
	})
	return r
}

func (h *categoryHandlers) List(w http.ResponseWriter, r *http.Request) {
	cats, err := h.CategorySvc.List(r.Context(), middleware.UID(r.Context()))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, cats)
}

func (h *categoryHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var body dto.CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	c, err := h.CategorySvc.Create(r.Context(), middleware.UID(r.Context()), body)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusCreated, c)
}

func (h *categoryHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var body dto.CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	c, err := h.CategorySvc.Update(r.Context(), middleware.UID(r.Context()), chi.URLParam(r, "id"), body)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, c)
}

func (h *categoryHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.CategorySvc.Delete(r.Context(), middleware.UID(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}

func (h *categoryHandlers) Detail(w http.ResponseWriter, r *http.Request) {
	d, err := h.CategorySvc.Detail(r.Context(), middleware.UID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, d)
}
