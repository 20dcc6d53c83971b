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

type categoryStore struct {
	client   *firestore.Client
	clockNow func() time.Time
}

func NewCategoryStore(client *firestore.Client) *categoryStore {
	return &categoryStore{client: client, clockNow: time.Now}
}

func (s *categoryStore) collection(uid string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(uid).Collection("budget_categories")
}

func (s *categoryStore) List(ctx context.Context, uid string) ([]models.BudgetCategory, error) {
	docs, err := s.collection(uid).OrderBy("name", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("read", "failed to list categories", err)
	}
	out := make([]models.BudgetCategory, 0, len(docs))
	for _, d := range docs {
		var c models.BudgetCategory
		if err := d.DataTo(&c); err != nil {
			return nil, errs.NewDatabaseError("read", "failed to parse category", err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *categoryStore) Get(ctx context.Context, uid, categoryID string) (*models.BudgetCategory, error) {
	doc, err := s.collection(uid).Doc(categoryID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errs.NewNotFoundError("budget category not found")
		}
		return nil, errs.NewDatabaseError("read", "failed to get category", err)
	}
	var c models.BudgetCategory
	if err := doc.DataTo(&c); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse category", err)
	}
	return &c, nil
}

// Create inserts c, enforcing name uniqueness inside the transaction.
func (s *categoryStore) Create(ctx context.Context, uid string, c *models.BudgetCategory) error {
	now := s.clockNow()
	c.UID = uid
	c.NameKey = models.CategoryKey(c.Name)
	c.CreatedAt = now
	c.UpdatedAt = now

	return s.write(ctx, uid, "create", c, func(tx *firestore.Transaction, ref *firestore.DocumentRef) error {
		return tx.Create(ref, c)
	})
}

// Update replaces c and returns the category as it was before the write so
// callers can detect a rename.
func (s *categoryStore) Update(ctx context.Context, uid string, c *models.BudgetCategory) (*models.BudgetCategory, error) {
	var previous models.BudgetCategory
	c.UID = uid
	c.NameKey = models.CategoryKey(c.Name)
	c.UpdatedAt = s.clockNow()

	err := s.write(ctx, uid, "update", c, func(tx *firestore.Transaction, ref *firestore.DocumentRef) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errs.NewNotFoundError("budget category not found")
			}
			return err
		}
		if err := snap.DataTo(&previous); err != nil {
			return err
		}
		c.CreatedAt = previous.CreatedAt
		return tx.Set(ref, c)
	})
	if err != nil {
		return nil, err
	}
	return &previous, nil
}

// write runs fn in a transaction after checking that no other category of
// the user has c's name key.
func (s *categoryStore) write(ctx context.Context, uid, op string, c *models.BudgetCategory, fn func(tx *firestore.Transaction, ref *firestore.DocumentRef) error) error {
	var domainErr error
	coll := s.collection(uid)
	ref := coll.Doc(c.CategoryID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		domainErr = nil
		dupes, err := tx.Documents(coll.Where("nameKey", "==", c.NameKey).Limit(2)).GetAll()
		if err != nil {
			return err
		}
		for _, d := range dupes {
			if d.Ref.ID != c.CategoryID {
				domainErr = errs.NewAlreadyExistsError("a category with this name already exists")
				return domainErr
			}
		}
		if err := fn(tx, ref); err != nil {
			if _, ok := err.(*errs.NotFoundError); ok {
				domainErr = err
			}
			return err
		}
		return nil
	})
	if domainErr != nil {
		return domainErr
	}
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errs.NewAlreadyExistsError("budget category already exists")
		}
		return errs.NewDatabaseError(op, "failed to write category", err)
	}
	return nil
}

func (s *categoryStore) Delete(ctx context.Context, uid, categoryID string) error {
	_, err := s.collection(uid).Doc(categoryID).Delete(ctx, firestore.Exists)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errs.NewNotFoundError("budget category not found")
		}
		return errs.NewDatabaseError("delete", "failed to delete category", err)
	}
	return nil
}
