package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/internal/middleware"
	"github.com/GregMSThompson/budget-backend/internal/response"
)

type assistantService interface {
	Query(ctx context.Context, uid string, req dto.AssistantQueryRequest) (dto.AssistantQueryResponse, error)
	Quota(ctx context.Context, uid string) (int, error)
}

type assistantHandlers struct {
	ResponseHandler response.ResponseHandler
	AssistantSvc    assistantService
}

func NewAssistantHandlers(deps *Deps) *assistantHandlers {
	return &assistantHandlers{
		ResponseHandler: deps.ResponseHandler,
		AssistantSvc:    deps.AssistantSvc,
	}
}

func (h *assistantHandlers) AssistantRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/query", h.Query)
	r.Get("/quota", h.Quota)
	return r
}

func (h *assistantHandlers) Query(w http.ResponseWriter, r *http.Request) {
	var body dto.AssistantQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	if body.Message == "" {
		h.ResponseHandler.HandleError(w, r, errs.NewValidationError("message is required"))
		return
	}
	if body.SessionID == "" {
		h.ResponseHandler.HandleError(w, r, errs.NewValidationError("sessionId is required"))
		return
	}

	resp, err := h.AssistantSvc.Query(r.Context(), middleware.UID(r.Context()), body)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, resp)
}

func (h *assistantHandlers) Quota(w http.ResponseWriter, r *http.Request) {
	left, err := h.AssistantSvc.Quota(r.Context(), middleware.UID(r.Context()))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, dto.QuotaResponse{ChatQuota: left})
}
