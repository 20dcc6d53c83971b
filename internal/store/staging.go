package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/internal/models"
	"github.com/GregMSThompson/budget-backend/pkg/logger"
)

type stagingStore struct {
	client   *firestore.Client
	clockNow func() time.Time
}

func NewStagingStore(client *firestore.Client) *stagingStore {
	return &stagingStore{client: client, clockNow: time.Now}
}

func (s *stagingStore) collection(uid string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(uid).Collection("staged_transactions")
}

// ApplyBatch writes one sync's worth of provider changes. Provider fields are
// replaced; suggestion fields are left alone. An ID present in both upserts
// and removed ends up deleted.
func (s *stagingStore) ApplyBatch(ctx context.Context, uid string, upserts []dto.ProviderTransaction, removed []string) error {
	if len(upserts) == 0 && len(removed) == 0 {
		return nil
	}
	log := logger.FromContext(ctx)

	gone := make(map[string]struct{}, len(removed))
	for _, id := range removed {
		gone[id] = struct{}{}
	}

	bw := s.client.BulkWriter(ctx)
	coll := s.collection(uid)
	now := s.clockNow()

	type pending struct {
		id  string
		job *firestore.BulkWriterJob
	}
	jobs := make([]pending, 0, len(upserts)+len(removed))

	for _, t := range upserts {
		if _, ok := gone[t.TransactionID]; ok {
			continue
		}
		j, err := bw.Set(coll.Doc(t.TransactionID), map[string]any{
			"transactionId":    t.TransactionID,
			"uid":              uid,
			"amount":           t.Amount,
			"date":             t.Date,
			"description":      t.Description,
			"originalCategory": t.CategoryHint,
			"updatedAt":        now,
		}, firestore.MergeAll)
		if err != nil {
			bw.End()
			return errs.NewDatabaseError("upsert", "failed to schedule staged upsert", err)
		}
		jobs = append(jobs, pending{id: t.TransactionID, job: j})
	}
	for id := range gone {
		j, err := bw.Delete(coll.Doc(id))
		if err != nil {
			bw.End()
			return errs.NewDatabaseError("delete", "failed to schedule staged delete", err)
		}
		jobs = append(jobs, pending{id: id, job: j})
	}

	bw.End()

	var firstErr error
	for _, p := range jobs {
		if _, err := p.job.Results(); err != nil {
			log.Error("staged write failed", "transaction_id", p.id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return errs.NewDatabaseError("upsert", "failed to apply staged batch", firstErr)
	}
	return nil
}

// List returns staged rows newest first.
func (s *stagingStore) List(ctx context.Context, uid string) ([]models.StagedTransaction, error) {
	docs, err := s.collection(uid).OrderBy("date", firestore.Desc).Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("read", "failed to list staged transactions", err)
	}
	out := make([]models.StagedTransaction, 0, len(docs))
	for _, d := range docs {
		var t models.StagedTransaction
		if err := d.DataTo(&t); err != nil {
			return nil, errs.NewDatabaseError("read", "failed to parse staged transaction", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// ListNeedingSuggestion returns up to limit of the most recent rows without a
// confident suggestion.
func (s *stagingStore) ListNeedingSuggestion(ctx context.Context, uid string, minConfidence float64, limit int) ([]models.StagedTransaction, error) {
	iter := s.collection(uid).OrderBy("date", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var out []models.StagedTransaction
	for len(out) < limit {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errs.NewDatabaseError("read", "failed to list staged transactions", err)
		}
		var t models.StagedTransaction
		if err := doc.DataTo(&t); err != nil {
			return nil, errs.NewDatabaseError("read", "failed to parse staged transaction", err)
		}
		if t.NeedsSuggestion(minConfidence) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stagingStore) Get(ctx context.Context, uid, transactionID string) (*models.StagedTransaction, error) {
	doc, err := s.collection(uid).Doc(transactionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errs.NewNotFoundError("staged transaction not found")
		}
		return nil, errs.NewDatabaseError("read", "failed to get staged transaction", err)
	}
	var t models.StagedTransaction
	if err := doc.DataTo(&t); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse staged transaction", err)
	}
	return &t, nil
}

func (s *stagingStore) Delete(ctx context.Context, uid, transactionID string) error {
	_, err := s.collection(uid).Doc(transactionID).Delete(ctx, firestore.Exists)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errs.NewNotFoundError("staged transaction not found")
		}
		return errs.NewDatabaseError("delete", "failed to delete staged transaction", err)
	}
	return nil
}

// ApplySuggestions writes suggestion fields row by row. Update fails for rows
// deleted in the meantime; those are logged and counted, not returned.
func (s *stagingStore) ApplySuggestions(ctx context.Context, uid string, updates []dto.SuggestionUpdate) ([]string, error) {
	if len(updates) == 0 {
		return nil, nil
	}
	log := logger.FromContext(ctx)
	bw := s.client.BulkWriter(ctx)
	coll := s.collection(uid)

	type pending struct {
		id  string
		job *firestore.BulkWriterJob
	}
	jobs := make([]pending, 0, len(updates))
	var failed []string

	for _, u := range updates {
		j, err := bw.Update(coll.Doc(u.TransactionID), []firestore.Update{
			{Path: "suggestedCategory", Value: u.Category},
			{Path: "suggestedConfidence", Value: u.Confidence},
		})
		if err != nil {
			log.Error("failed to schedule suggestion", "transaction_id", u.TransactionID, "error", err)
			failed = append(failed, u.TransactionID)
			continue
		}
		jobs = append(jobs, pending{id: u.TransactionID, job: j})
	}
	bw.End()

	for _, p := range jobs {
		if _, err := p.job.Results(); err != nil {
			log.Warn("suggestion not applied", "transaction_id", p.id, "error", err)
			failed = append(failed, p.id)
		}
	}
	return failed, nil
}

// RelabelSuggestions moves suggestions from one category name to another.
// A nil newName clears the suggestion.
func (s *stagingStore) RelabelSuggestions(ctx context.Context, uid, oldName string, newName *string) (int, error) {
	docs, err := s.collection(uid).Where("suggestedCategory", "==", oldName).Documents(ctx).GetAll()
	if err != nil {
		return 0, errs.NewDatabaseError("read", "failed to find staged suggestions", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	updates := []firestore.Update{{Path: "suggestedCategory", Value: newName}}
	if newName == nil {
		updates = append(updates, firestore.Update{Path: "suggestedConfidence", Value: nil})
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(docs))
	for _, d := range docs {
		j, err := bw.Update(d.Ref, updates)
		if err != nil {
			bw.End()
			return 0, errs.NewDatabaseError("update", "failed to schedule suggestion relabel", err)
		}
		jobs = append(jobs, j)
	}
	bw.End()

	relabeled := 0
	var firstErr error
	for _, j := range jobs {
		if _, err := j.Results(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		relabeled++
	}
	if firstErr != nil {
		return relabeled, errs.NewDatabaseError("update", "failed to relabel staged suggestions", firstErr)
	}
	return relabeled, nil
}
