package services

import (
	"context"
	"errors"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/pkg/logger"
)

type webhookLinkStore interface {
	FindByItemID(ctx context.Context, itemID string) (string, error)
	FlagRelink(ctx context.Context, uid string) error
}

type webhookSyncer interface {
	Sync(ctx context.Context, uid string) (dto.SyncResult, error)
}

type webhookService struct {
	links  webhookLinkStore
	syncer webhookSyncer
}

func NewWebhookService(links webhookLinkStore, syncer webhookSyncer) *webhookService {
	return &webhookService{links: links, syncer: syncer}
}

// Handle acts on one Plaid webhook. Unknown items and unhandled codes are
// ignored. Redelivery is safe because sync is idempotent.
func (s *webhookService) Handle(ctx context.Context, hook dto.PlaidWebhook) error {
	log, ctx := logger.With(ctx, "webhook_type", hook.WebhookType, "webhook_code", hook.WebhookCode, "item_id", hook.ItemID)

	action := webhookAction(hook)
	if action == actionIgnore {
		log.Debug("webhook ignored")
		return nil
	}

	uid, err := s.links.FindByItemID(ctx, hook.ItemID)
	if err != nil {
		var notFound *errs.NotFoundError
		if errors.As(err, &notFound) {
			log.Info("webhook for unknown item ignored")
			return nil
		}
		return err
	}
	log, ctx = logger.With(ctx, "uid", uid)

	switch action {
	case actionSync:
		result, err := s.syncer.Sync(ctx, uid)
		if err != nil {
			var inProgress *errs.SyncInProgressError
			if errors.As(err, &inProgress) {
				log.Info("sync already running, webhook skipped", "holder_purpose", inProgress.Purpose)
				return nil
			}
			return err
		}
		log.Info("webhook sync applied", "added", result.Added, "modified", result.Modified, "removed", result.Removed)
	case actionFlagRelink:
		if hook.Error != nil {
			log.Warn("item needs attention", "plaid_code", hook.Error.ErrorCode)
		}
		return s.links.FlagRelink(ctx, uid)
	}
	return nil
}

type hookAction int

const (
	actionIgnore hookAction = iota
	actionSync
	actionFlagRelink
)

func webhookAction(hook dto.PlaidWebhook) hookAction {
	switch hook.WebhookType {
	case "TRANSACTIONS":
		switch hook.WebhookCode {
		case "SYNC_UPDATES_AVAILABLE", "DEFAULT_UPDATE", "INITIAL_UPDATE", "HISTORICAL_UPDATE":
			return actionSync
		}
	case "ITEM":
		switch hook.WebhookCode {
		case "ERROR", "PENDING_EXPIRATION", "PENDING_DISCONNECT":
			return actionFlagRelink
		}
	}
	return actionIgnore
}
