package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/middleware"
	"github.com/GregMSThompson/budget-backend/internal/response"
	"github.com/GregMSThompson/budget-backend/pkg/logger"
)

type linkService interface {
	CreateLinkToken(ctx context.Context, uid string) (string, error)
	Link(ctx context.Context, uid, publicToken, institution string) (*dto.LinkStatusResponse, error)
	Status(ctx context.Context, uid string) (*dto.LinkStatusResponse, error)
	Unlink(ctx context.Context, uid string) error
}

type syncService interface {
	SyncForUser(ctx context.Context, sessionUID, targetUID string) (dto.SyncResult, error)
}

type webhookService interface {
	Handle(ctx context.Context, hook dto.PlaidWebhook) error
}

type plaidHandlers struct {
	ResponseHandler response.ResponseHandler
	LinkSvc         linkService
	SyncSvc         syncService
	WebhookSvc      webhookService
}

func NewPlaidHandlers(deps *Deps) *plaidHandlers {
	return &plaidHandlers{
		ResponseHandler: deps.ResponseHandler,
		LinkSvc:         deps.LinkSvc,
		SyncSvc:         deps.SyncSvc,
		WebhookSvc:      deps.WebhookSvc,
	}
}

func (h *plaidHandlers) PlaidRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/link-token", h.CreateLinkToken)
	r.Post("/link", h.Link)
	r.Get("/status", h.Status)
	r.Delete("/link", h.Unlink)
	return r
}

func (h *plaidHandlers) CreateLinkToken(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UID(r.Context())

	linkToken, err := h.LinkSvc.CreateLinkToken(r.Context(), uid)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, dto.LinkTokenResponse{LinkToken: linkToken})
}

func (h *plaidHandlers) Link(w http.ResponseWriter, r *http.Request) {
	var body dto.LinkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	status, err := h.LinkSvc.Link(r.Context(), uid, body.PublicToken, body.Institution)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, status)
}

func (h *plaidHandlers) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.LinkSvc.Status(r.Context(), middleware.UID(r.Context()))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, status)
}

func (h *plaidHandlers) Unlink(w http.ResponseWriter, r *http.Request) {
	if err := h.LinkSvc.Unlink(r.Context(), middleware.UID(r.Context())); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}

func (h *plaidHandlers) Sync(w http.ResponseWriter, r *http.Request) {
	var body dto.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) { // allow empty body
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	uid := middleware.UID(r.Context())
	result, err := h.SyncSvc.SyncForUser(r.Context(), uid, body.UserID)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, result)
}

// Webhook always answers 200 so Plaid does not retry on our failures; the
// next webhook or manual sync catches up from the stored cursor.
func (h *plaidHandlers) Webhook(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var hook dto.PlaidWebhook
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		log.Warn("unreadable plaid webhook", "error", err)
		h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
		return
	}

	if err := h.WebhookSvc.Handle(r.Context(), hook); err != nil {
		log.Error("plaid webhook handling failed",
			"webhook_type", hook.WebhookType,
			"webhook_code", hook.WebhookCode,
			"item_id", hook.ItemID,
			"error", err)
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}
