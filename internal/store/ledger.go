package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/internal/models"
	"github.com/GregMSThompson/budget-backend/pkg/logger"
)

type ledgerStore struct {
	client   *firestore.Client
	clockNow func() time.Time
}

func NewLedgerStore(client *firestore.Client) *ledgerStore {
	return &ledgerStore{client: client, clockNow: time.Now}
}

func (s *ledgerStore) collection(uid string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(uid).Collection("ledger_entries")
}

func (s *ledgerStore) stagedCollection(uid string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(uid).Collection("staged_transactions")
}

func (s *ledgerStore) Create(ctx context.Context, uid string, e *models.LedgerEntry) error {
	now := s.clockNow()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	_, err := s.collection(uid).Doc(e.EntryID).Create(ctx, e)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errs.NewAlreadyExistsError("ledger entry already exists")
		}
		return errs.NewDatabaseError("create", "failed to create ledger entry", err)
	}
	return nil
}

// List returns entries with from <= date <= to, newest first. Empty bounds
// are open.
func (s *ledgerStore) List(ctx context.Context, uid string, q dto.LedgerQuery) ([]models.LedgerEntry, error) {
	query := s.collection(uid).Query
	if q.From != "" {
		query = query.Where("date", ">=", q.From)
	}
	if q.To != "" {
		query = query.Where("date", "<=", q.To)
	}
	docs, err := query.OrderBy("date", firestore.Desc).Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("read", "failed to list ledger entries", err)
	}
	return decodeEntries(docs)
}

func (s *ledgerStore) ListByCategory(ctx context.Context, uid, category string) ([]models.LedgerEntry, error) {
	docs, err := s.collection(uid).Where("category", "==", category).Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("read", "failed to list ledger entries", err)
	}
	return decodeEntries(docs)
}

func decodeEntries(docs []*firestore.DocumentSnapshot) ([]models.LedgerEntry, error) {
	out := make([]models.LedgerEntry, 0, len(docs))
	for _, d := range docs {
		var e models.LedgerEntry
		if err := d.DataTo(&e); err != nil {
			return nil, errs.NewDatabaseError("read", "failed to parse ledger entry", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *ledgerStore) Delete(ctx context.Context, uid, entryID string) error {
	_, err := s.collection(uid).Doc(entryID).Delete(ctx, firestore.Exists)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errs.NewNotFoundError("ledger entry not found")
		}
		return errs.NewDatabaseError("delete", "failed to delete ledger entry", err)
	}
	return nil
}

func (s *ledgerStore) IDsByCategory(ctx context.Context, uid, category string) ([]string, error) {
	docs, err := s.collection(uid).Where("category", "==", category).Select().Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("read", "failed to find ledger entries", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.Ref.ID)
	}
	return ids, nil
}

// Relabel sets category on each entry and returns the IDs whose write failed.
func (s *ledgerStore) Relabel(ctx context.Context, uid string, entryIDs []string, category string) ([]string, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}
	log := logger.FromContext(ctx)
	bw := s.client.BulkWriter(ctx)
	coll := s.collection(uid)
	now := s.clockNow()

	type pending struct {
		id  string
		job *firestore.BulkWriterJob
	}
	jobs := make([]pending, 0, len(entryIDs))
	var failed []string

	for _, id := range entryIDs {
		j, err := bw.Update(coll.Doc(id), []firestore.Update{
			{Path: "category", Value: category},
			{Path: "updatedAt", Value: now},
		})
		if err != nil {
			failed = append(failed, id)
			continue
		}
		jobs = append(jobs, pending{id: id, job: j})
	}
	bw.End()

	for _, p := range jobs {
		if _, err := p.job.Results(); err != nil {
			if status.Code(err) == codes.NotFound {
				// deleted since the lookup; nothing left to relabel
				continue
			}
			log.Warn("ledger relabel failed", "entry_id", p.id, "error", err)
			failed = append(failed, p.id)
		}
	}
	return failed, nil
}

// Promote moves a staged transaction into the ledger in one transaction. The
// entry reuses the staged ID, so a retried promotion returns the entry the
// first attempt created.
func (s *ledgerStore) Promote(ctx context.Context, uid, transactionID string, build func(staged *models.StagedTransaction) *models.LedgerEntry) (*models.LedgerEntry, error) {
	var (
		result    models.LedgerEntry
		domainErr error
	)
	stagedRef := s.stagedCollection(uid).Doc(transactionID)
	entryRef := s.collection(uid).Doc(transactionID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		domainErr = nil
		entrySnap, err := tx.Get(entryRef)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		stagedSnap, err := tx.Get(stagedRef)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		if !stagedSnap.Exists() {
			if entrySnap.Exists() {
				return entrySnap.DataTo(&result)
			}
			domainErr = errs.NewNotFoundError("staged transaction not found")
			return domainErr
		}

		var staged models.StagedTransaction
		if err := stagedSnap.DataTo(&staged); err != nil {
			return err
		}
		entry := build(&staged)
		now := s.clockNow()
		entry.EntryID = transactionID
		entry.UID = uid
		entry.TransactionID = transactionID
		entry.CreatedAt = now
		entry.UpdatedAt = now

		if err := tx.Set(entryRef, entry); err != nil {
			return err
		}
		result = *entry
		return tx.Delete(stagedRef)
	})
	if domainErr != nil {
		return nil, domainErr
	}
	if err != nil {
		return nil, errs.NewDatabaseError("promote", "failed to promote staged transaction", err)
	}
	return &result, nil
}
