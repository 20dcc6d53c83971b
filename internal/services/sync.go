package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/internal/models"
	"github.com/GregMSThompson/budget-backend/pkg/logger"
)

const maxPaginationRestarts = 3

// syncLinkStore is the lease and cursor surface of the account link store.
type syncLinkStore interface {
	AcquireLease(ctx context.Context, uid, holder, purpose string, ttl time.Duration) (*models.AccountLink, error)
	ReleaseLease(ctx context.Context, uid, holder string) error
	CommitCursor(ctx context.Context, uid, holder string, version int64, cursor string) (*models.AccountLink, error)
	FlagRelink(ctx context.Context, uid string) error
	Credential(ctx context.Context, link *models.AccountLink) (string, error)
}

type syncStagingStore interface {
	ApplyBatch(ctx context.Context, uid string, upserts []dto.ProviderTransaction, removed []string) error
}

type syncProvider interface {
	SyncChanges(ctx context.Context, accessToken, cursor string) (dto.PlaidSyncPage, error)
}

type syncService struct {
	links     syncLinkStore
	staged    syncStagingStore
	provider  syncProvider
	leaseTTL  time.Duration
	newHolder func() string
}

func NewSyncService(links syncLinkStore, staged syncStagingStore, provider syncProvider, leaseTTL time.Duration) *syncService {
	return &syncService{
		links:     links,
		staged:    staged,
		provider:  provider,
		leaseTTL:  leaseTTL,
		newHolder: uuid.NewString,
	}
}

// SyncForUser runs a user-initiated sync. targetUID may be empty; when set it
// must match the session.
func (s *syncService) SyncForUser(ctx context.Context, sessionUID, targetUID string) (dto.SyncResult, error) {
	if targetUID != "" && targetUID != sessionUID {
		return dto.SyncResult{}, errs.NewForbiddenError("cannot sync another user's account")
	}
	return s.Sync(ctx, sessionUID)
}

// Sync pulls every change since the stored cursor, stages it, then advances
// the cursor. The cursor only moves after the staged batch is written.
func (s *syncService) Sync(ctx context.Context, uid string) (dto.SyncResult, error) {
	log, ctx := logger.With(ctx, "uid", uid)
	holder := s.newHolder()

	link, err := s.links.AcquireLease(ctx, uid, holder, models.LeasePurposeSync, s.leaseTTL)
	if err != nil {
		return dto.SyncResult{}, err
	}
	defer s.release(ctx, uid, holder)

	if !link.Linked {
		return dto.SyncResult{}, errs.NewNotFoundError("no bank account linked")
	}
	credential, err := s.links.Credential(ctx, link)
	if err != nil {
		return dto.SyncResult{}, err
	}

	log.Info("transaction sync started", "full_resync", link.SyncCursor == "")
	result, err := s.Pull(ctx, uid, credential, link.SyncCursor)
	if err != nil {
		s.flagIfRejected(ctx, uid, err)
		return dto.SyncResult{}, err
	}

	if _, err := s.links.CommitCursor(ctx, uid, holder, link.Version, result.Cursor); err != nil {
		log.Warn("cursor not committed, staged changes will be reapplied", "error", err)
		return dto.SyncResult{}, err
	}

	log.Info("transaction sync completed",
		"added", result.Added,
		"modified", result.Modified,
		"removed", result.Removed)
	return result, nil
}

// Pull pages through the provider feed from cursor and stages the result as
// one batch. It does not touch the stored cursor; the caller commits
// result.Cursor while still holding the lease.
func (s *syncService) Pull(ctx context.Context, uid, credential, cursor string) (dto.SyncResult, error) {
	log := logger.FromContext(ctx)

	for attempt := 0; ; attempt++ {
		changes, err := s.collect(ctx, credential, cursor)
		if errors.Is(err, errs.ErrPaginationRestart) {
			if attempt < maxPaginationRestarts {
				log.Warn("provider data changed during pagination, restarting", "attempt", attempt+1)
				continue
			}
			return dto.SyncResult{}, errs.NewExternalServiceError("plaid", "transactions kept changing during sync", true, err)
		}
		if err != nil {
			return dto.SyncResult{}, err
		}

		if err := s.staged.ApplyBatch(ctx, uid, changes.upserts, changes.removed); err != nil {
			return dto.SyncResult{}, err
		}
		return dto.SyncResult{
			Added:    changes.added,
			Modified: changes.modified,
			Removed:  len(changes.removed),
			Cursor:   changes.cursor,
			Staged:   changes.staged(),
		}, nil
	}
}

// Unstage deletes rows written by a Pull whose cursor was never committed.
func (s *syncService) Unstage(ctx context.Context, uid string, transactionIDs []string) error {
	if len(transactionIDs) == 0 {
		return nil
	}
	return s.staged.ApplyBatch(ctx, uid, nil, transactionIDs)
}

type changeSet struct {
	upserts  []dto.ProviderTransaction
	removed  []string
	added    int
	modified int
	cursor   string
}

// staged returns the upserted IDs that survive the removals.
func (c changeSet) staged() []string {
	gone := make(map[string]struct{}, len(c.removed))
	for _, id := range c.removed {
		gone[id] = struct{}{}
	}
	ids := make([]string, 0, len(c.upserts))
	for _, t := range c.upserts {
		if _, ok := gone[t.TransactionID]; !ok {
			ids = append(ids, t.TransactionID)
		}
	}
	return ids
}

// collect accumulates all pages. Later pages overwrite earlier versions of
// the same transaction.
func (s *syncService) collect(ctx context.Context, credential, cursor string) (changeSet, error) {
	var (
		out     changeSet
		index   = map[string]int{}
		removed = map[string]struct{}{}
	)
	upsert := func(t dto.ProviderTransaction) {
		if i, ok := index[t.TransactionID]; ok {
			out.upserts[i] = t
			return
		}
		index[t.TransactionID] = len(out.upserts)
		out.upserts = append(out.upserts, t)
	}

	next := cursor
	for {
		page, err := s.provider.SyncChanges(ctx, credential, next)
		if err != nil {
			return changeSet{}, err
		}
		for _, t := range page.Added {
			upsert(t)
		}
		for _, t := range page.Modified {
			upsert(t)
		}
		for _, id := range page.Removed {
			if _, ok := removed[id]; !ok {
				removed[id] = struct{}{}
				out.removed = append(out.removed, id)
			}
		}
		out.added += len(page.Added)
		out.modified += len(page.Modified)
		next = page.Cursor
		if !page.HasMore {
			break
		}
	}

	out.cursor = next
	return out, nil
}

func (s *syncService) flagIfRejected(ctx context.Context, uid string, err error) {
	var credErr *errs.InvalidCredentialError
	if !errors.As(err, &credErr) {
		return
	}
	log := logger.FromContext(ctx)
	log.Warn("provider rejected credential, flagging link", "plaid_code", credErr.Code)
	if ferr := s.links.FlagRelink(ctx, uid); ferr != nil {
		log.Error("failed to flag link for relink", "error", ferr)
	}
}

// release runs even when the request context is already cancelled.
func (s *syncService) release(ctx context.Context, uid, holder string) {
	if err := s.links.ReleaseLease(context.WithoutCancel(ctx), uid, holder); err != nil {
		logger.FromContext(ctx).Error("failed to release sync lease", "error", err)
	}
}
