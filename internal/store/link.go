package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/internal/models"
)

type credentialCipher interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// linkStore owns account_links/{uid}. The collection is top level so that
// webhook item IDs can be resolved without knowing the user.
type linkStore struct {
	client   *firestore.Client
	cipher   credentialCipher
	clockNow func() time.Time
}

func NewLinkStore(client *firestore.Client, cipher credentialCipher) *linkStore {
	return &linkStore{client: client, cipher: cipher, clockNow: time.Now}
}

func (s *linkStore) doc(uid string) *firestore.DocumentRef {
	return s.client.Collection("account_links").Doc(uid)
}

// Get returns the user's link. A missing document is an unlinked account,
// not an error. The credential is left encrypted.
func (s *linkStore) Get(ctx context.Context, uid string) (*models.AccountLink, error) {
	snap, err := s.doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return &models.AccountLink{UID: uid, Status: models.LinkStatusUnlinked}, nil
		}
		return nil, errs.NewDatabaseError("read", "failed to get account link", err)
	}
	var link models.AccountLink
	if err := snap.DataTo(&link); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse account link", err)
	}
	return &link, nil
}

// Credential decrypts the stored access credential.
func (s *linkStore) Credential(ctx context.Context, link *models.AccountLink) (string, error) {
	if link.AccessCredential == "" {
		return "", errs.NewNotFoundError("no bank account linked")
	}
	return s.cipher.Decrypt(ctx, link.AccessCredential)
}

func (s *linkStore) FindByItemID(ctx context.Context, itemID string) (string, error) {
	docs, err := s.client.Collection("account_links").Where("itemId", "==", itemID).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", errs.NewDatabaseError("read", "failed to look up item", err)
	}
	if len(docs) == 0 {
		return "", errs.NewNotFoundError("no account link for item")
	}
	return docs[0].Ref.ID, nil
}

// mutate runs fn against the current link inside a transaction and writes
// the result with a bumped version. Typed errors returned by fn are passed
// through unchanged.
func (s *linkStore) mutate(ctx context.Context, uid, op string, fn func(link *models.AccountLink, now time.Time) error) (*models.AccountLink, error) {
	return s.transact(ctx, uid, op, true, fn)
}

// transact is mutate with the version bump optional. Only writes that leave
// the lease and cursor alone may skip it.
func (s *linkStore) transact(ctx context.Context, uid, op string, bumpVersion bool, fn func(link *models.AccountLink, now time.Time) error) (*models.AccountLink, error) {
	var (
		result    models.AccountLink
		domainErr error
	)
	ref := s.doc(uid)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		domainErr = nil
		now := s.clockNow()
		link := models.AccountLink{UID: uid, Status: models.LinkStatusUnlinked, CreatedAt: now}

		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			if err := snap.DataTo(&link); err != nil {
				return err
			}
		}

		if err := fn(&link, now); err != nil {
			domainErr = err
			return err
		}
		if bumpVersion {
			link.Version++
		}
		link.UpdatedAt = now
		result = link
		return tx.Set(ref, &link)
	})
	if domainErr != nil {
		return nil, domainErr
	}
	if err != nil {
		return nil, errs.NewDatabaseError(op, "account link transaction failed", err)
	}
	return &result, nil
}

// AcquireLease takes the per-user lease for holder. An unexpired lease held
// by anyone else yields SyncInProgressError. The returned link reflects the
// committed version.
func (s *linkStore) AcquireLease(ctx context.Context, uid, holder, purpose string, ttl time.Duration) (*models.AccountLink, error) {
	return s.mutate(ctx, uid, "acquire_lease", func(link *models.AccountLink, now time.Time) error {
		if link.Lease.Active(now) && link.Lease.Holder != holder {
			return errs.NewSyncInProgressError(link.Lease.Purpose)
		}
		link.Lease = &models.SyncLease{
			Holder:     holder,
			Purpose:    purpose,
			AcquiredAt: now,
			ExpiresAt:  now.Add(ttl),
		}
		return nil
	})
}

// ReleaseLease clears the lease only if holder still owns it.
func (s *linkStore) ReleaseLease(ctx context.Context, uid, holder string) error {
	_, err := s.mutate(ctx, uid, "release_lease", func(link *models.AccountLink, _ time.Time) error {
		if link.Lease == nil || link.Lease.Holder != holder {
			return errNotHolder
		}
		link.Lease = nil
		return nil
	})
	if err == errNotHolder {
		return nil
	}
	return err
}

// ForceReleaseLease clears any lease. Operator use only.
func (s *linkStore) ForceReleaseLease(ctx context.Context, uid string) error {
	_, err := s.mutate(ctx, uid, "force_release_lease", func(link *models.AccountLink, _ time.Time) error {
		link.Lease = nil
		return nil
	})
	return err
}

// CommitCursor advances the cursor if holder still owns the lease and the
// link is at the expected version. A relink flag raised while the lease was
// held is kept.
func (s *linkStore) CommitCursor(ctx context.Context, uid, holder string, version int64, cursor string) (*models.AccountLink, error) {
	return s.mutate(ctx, uid, "commit_cursor", func(link *models.AccountLink, now time.Time) error {
		if err := checkOwnership(link, holder, version, now); err != nil {
			return err
		}
		link.SyncCursor = cursor
		link.LastSyncedAt = now
		if link.Linked && !link.FlaggedDuringLease() {
			link.Status = models.LinkStatusLinked
		}
		return nil
	})
}

// SealCredential encrypts a provider access credential for CompleteLink.
func (s *linkStore) SealCredential(ctx context.Context, credential string) (string, error) {
	return s.cipher.Encrypt(ctx, credential)
}

// CompleteLink marks the account linked with its sealed credential and
// initial cursor in one write.
func (s *linkStore) CompleteLink(ctx context.Context, uid, holder string, version int64, itemID, ciphertext, cursor, institution string) (*models.AccountLink, error) {
	return s.mutate(ctx, uid, "complete_link", func(link *models.AccountLink, now time.Time) error {
		if link.Linked {
			return errs.NewAlreadyLinkedError()
		}
		if err := checkOwnership(link, holder, version, now); err != nil {
			return err
		}
		link.Linked = true
		link.Status = models.LinkStatusLinked
		link.ItemID = itemID
		link.AccessCredential = ciphertext
		link.SyncCursor = cursor
		link.Institution = institution
		link.LastSyncedAt = now
		return nil
	})
}

// Unlink clears the credential, item and cursor and drops holder's lease.
func (s *linkStore) Unlink(ctx context.Context, uid, holder string, version int64) error {
	_, err := s.mutate(ctx, uid, "unlink", func(link *models.AccountLink, now time.Time) error {
		if err := checkOwnership(link, holder, version, now); err != nil {
			return err
		}
		link.Linked = false
		link.Status = models.LinkStatusUnlinked
		link.ItemID = ""
		link.AccessCredential = ""
		link.SyncCursor = ""
		link.Institution = ""
		link.Lease = nil
		return nil
	})
	return err
}

// FlagRelink records that the provider rejected the credential. It only
// touches the status, so it does not bump the version and a sync holding the
// lease can still commit its cursor.
func (s *linkStore) FlagRelink(ctx context.Context, uid string) error {
	_, err := s.transact(ctx, uid, "flag_relink", false, func(link *models.AccountLink, now time.Time) error {
		if !link.Linked {
			return errNotLinked
		}
		link.Status = models.LinkStatusRelinkRequired
		link.FlaggedAt = now
		return nil
	})
	if err == errNotLinked {
		return nil
	}
	return err
}

func checkOwnership(link *models.AccountLink, holder string, version int64, now time.Time) error {
	if !link.Lease.HeldBy(holder, now) || link.Version != version {
		purpose := ""
		if link.Lease != nil {
			purpose = link.Lease.Purpose
		}
		return errs.NewSyncInProgressError(purpose)
	}
	return nil
}
