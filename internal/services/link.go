package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/internal/models"
	"github.com/GregMSThompson/budget-backend/pkg/logger"
)

type linkLSStore interface {
	Get(ctx context.Context, uid string) (*models.AccountLink, error)
	Credential(ctx context.Context, link *models.AccountLink) (string, error)
	AcquireLease(ctx context.Context, uid, holder, purpose string, ttl time.Duration) (*models.AccountLink, error)
	ReleaseLease(ctx context.Context, uid, holder string) error
	SealCredential(ctx context.Context, credential string) (string, error)
	CompleteLink(ctx context.Context, uid, holder string, version int64, itemID, ciphertext, cursor, institution string) (*models.AccountLink, error)
	Unlink(ctx context.Context, uid, holder string, version int64) error
}

// linkProvider is the Plaid adapter surface used for linking.
type linkProvider interface {
	CreateLinkToken(ctx context.Context, uid, accessToken string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (itemID string, accessToken string, err error)
	RemoveItem(ctx context.Context, accessToken string) error
}

type initialSyncer interface {
	Pull(ctx context.Context, uid, credential, cursor string) (dto.SyncResult, error)
	Unstage(ctx context.Context, uid string, transactionIDs []string) error
}

type linkService struct {
	links     linkLSStore
	provider  linkProvider
	syncer    initialSyncer
	leaseTTL  time.Duration
	newHolder func() string
	clockNow  func() time.Time
}

func NewLinkService(links linkLSStore, provider linkProvider, syncer initialSyncer, leaseTTL time.Duration) *linkService {
	return &linkService{
		links:     links,
		provider:  provider,
		syncer:    syncer,
		leaseTTL:  leaseTTL,
		newHolder: uuid.NewString,
		clockNow:  time.Now,
	}
}

// CreateLinkToken returns a Plaid Link token. Links flagged for relink get
// an update-mode token for the existing item.
func (s *linkService) CreateLinkToken(ctx context.Context, uid string) (string, error) {
	link, err := s.links.Get(ctx, uid)
	if err != nil {
		return "", err
	}

	accessToken := ""
	if link.Linked && link.Status == models.LinkStatusRelinkRequired {
		if accessToken, err = s.links.Credential(ctx, link); err != nil {
			return "", err
		}
	} else if link.Linked {
		return "", errs.NewAlreadyLinkedError()
	}
	return s.provider.CreateLinkToken(ctx, uid, accessToken)
}

// Link exchanges the public token, runs the initial full sync and only then
// marks the account linked. A failure at any step leaves the user unlinked
// with nothing from the abandoned item left in staging.
func (s *linkService) Link(ctx context.Context, uid, publicToken, institution string) (*dto.LinkStatusResponse, error) {
	publicToken = strings.TrimSpace(publicToken)
	if publicToken == "" {
		return nil, errs.NewValidationError("publicToken is required")
	}
	log, ctx := logger.With(ctx, "uid", uid)
	holder := s.newHolder()

	link, err := s.links.AcquireLease(ctx, uid, holder, models.LeasePurposeLink, s.leaseTTL)
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, uid, holder)

	if link.Linked {
		return nil, errs.NewAlreadyLinkedError()
	}

	itemID, accessToken, err := s.provider.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, err
	}

	sealed, err := s.links.SealCredential(ctx, accessToken)
	if err != nil {
		s.abandonItem(ctx, accessToken)
		return nil, err
	}

	result, err := s.syncer.Pull(ctx, uid, accessToken, "")
	if err != nil {
		s.abandonItem(ctx, accessToken)
		return nil, err
	}

	linked, err := s.links.CompleteLink(ctx, uid, holder, link.Version, itemID, sealed, result.Cursor, strings.TrimSpace(institution))
	if err != nil {
		s.unstage(ctx, uid, result.Staged)
		s.abandonItem(ctx, accessToken)
		return nil, err
	}

	log.Info("bank linked", "item_id", itemID, "institution", linked.Institution, "initial_added", result.Added)
	return s.statusOf(linked), nil
}

func (s *linkService) Status(ctx context.Context, uid string) (*dto.LinkStatusResponse, error) {
	link, err := s.links.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	return s.statusOf(link), nil
}

// Unlink removes the item at Plaid (best effort) and clears the link.
func (s *linkService) Unlink(ctx context.Context, uid string) error {
	log, ctx := logger.With(ctx, "uid", uid)
	holder := s.newHolder()

	link, err := s.links.AcquireLease(ctx, uid, holder, models.LeasePurposeUnlink, s.leaseTTL)
	if err != nil {
		return err
	}
	defer s.release(ctx, uid, holder)

	if !link.Linked {
		return errs.NewNotFoundError("no bank account linked")
	}

	if credential, err := s.links.Credential(ctx, link); err != nil {
		log.Warn("could not decrypt credential for item removal", "error", err)
	} else if err := s.provider.RemoveItem(ctx, credential); err != nil {
		log.Warn("plaid item removal failed", "item_id", link.ItemID, "error", err)
	}

	if err := s.links.Unlink(ctx, uid, holder, link.Version); err != nil {
		return err
	}
	log.Info("bank unlinked", "item_id", link.ItemID)
	return nil
}

func (s *linkService) statusOf(link *models.AccountLink) *dto.LinkStatusResponse {
	out := &dto.LinkStatusResponse{
		Linked:      link.Linked,
		Status:      link.EffectiveStatus(s.clockNow()),
		Institution: link.Institution,
	}
	if !link.LastSyncedAt.IsZero() {
		t := link.LastSyncedAt
		out.LastSyncedAt = &t
	}
	return out
}

func (s *linkService) abandonItem(ctx context.Context, accessToken string) {
	if err := s.provider.RemoveItem(context.WithoutCancel(ctx), accessToken); err != nil {
		logger.FromContext(ctx).Warn("failed to remove abandoned plaid item", "error", err)
	}
}

func (s *linkService) unstage(ctx context.Context, uid string, transactionIDs []string) {
	if err := s.syncer.Unstage(context.WithoutCancel(ctx), uid, transactionIDs); err != nil {
		logger.FromContext(ctx).Error("failed to remove staged rows of abandoned link", "count", len(transactionIDs), "error", err)
	}
}

func (s *linkService) release(ctx context.Context, uid, holder string) {
	if err := s.links.ReleaseLease(context.WithoutCancel(ctx), uid, holder); err != nil {
		logger.FromContext(ctx).Error("failed to release link lease", "error", err)
	}
}
