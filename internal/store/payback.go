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

type paybackStore struct {
	client   *firestore.Client
	clockNow func() time.Time
}

func NewPaybackStore(client *firestore.Client) *paybackStore {
	return &paybackStore{client: client, clockNow: time.Now}
}

func (s *paybackStore) collection(uid string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(uid).Collection("paybacks")
}

func (s *paybackStore) Create(ctx context.Context, uid string, p *models.Payback) error {
	now := s.clockNow()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.collection(uid).Doc(p.PaybackID).Create(ctx, p)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errs.NewAlreadyExistsError("payback already exists")
		}
		return errs.NewDatabaseError("create", "failed to create payback", err)
	}
	return nil
}

// List returns the user's paybacks, most recently created first.
func (s *paybackStore) List(ctx context.Context, uid string) ([]models.Payback, error) {
	docs, err := s.collection(uid).OrderBy("createdAt", firestore.Desc).Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("read", "failed to list paybacks", err)
	}
	out := make([]models.Payback, 0, len(docs))
	for _, d := range docs {
		var p models.Payback
		if err := d.DataTo(&p); err != nil {
			return nil, errs.NewDatabaseError("read", "failed to parse payback", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *paybackStore) Delete(ctx context.Context, uid, paybackID string) error {
	_, err := s.collection(uid).Doc(paybackID).Delete(ctx, firestore.Exists)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errs.NewNotFoundError("payback not found")
		}
		return errs.NewDatabaseError("delete", "failed to delete payback", err)
	}
	return nil
}
