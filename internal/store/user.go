package store

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/internal/models"
)

type userStore struct {
	Client     *firestore.Client
	Collection *firestore.CollectionRef
}

func NewUserStore(client *firestore.Client) *userStore {
	return &userStore{
		Client:     client,
		Collection: client.Collection("users"),
	}
}

func (us *userStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := us.Collection.Doc(user.UID).Create(ctx, user)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errs.NewAlreadyExistsError("user already exists")
		}
		return errs.NewDatabaseError("create", "failed to create user", err)
	}
	return nil
}

func (us *userStore) GetUser(ctx context.Context, uid string) (*models.User, error) {
	var user models.User

	doc, err := us.Collection.Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errs.NewNotFoundError("user not found")
		}
		return nil, errs.NewDatabaseError("read", "failed to get user", err)
	}
	if err := doc.DataTo(&user); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse user data", err)
	}

	return &user, nil
}

// ConsumeQuota takes one assistant prompt from the user's allowance and
// returns what is left. The count never goes below zero.
func (us *userStore) ConsumeQuota(ctx context.Context, uid string) (int, error) {
	var (
		remaining int
		domainErr error
	)
	ref := us.Collection.Doc(uid)

	err := us.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		domainErr = nil
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				domainErr = errs.NewNotFoundError("user not found")
			}
			return err
		}
		var user models.User
		if err := snap.DataTo(&user); err != nil {
			return err
		}
		if user.ChatQuota <= 0 {
			domainErr = errs.NewQuotaExhaustedError()
			return domainErr
		}
		remaining = user.ChatQuota - 1
		return tx.Update(ref, []firestore.Update{{Path: "chatQuota", Value: remaining}})
	})
	if domainErr != nil {
		return 0, domainErr
	}
	if err != nil {
		return 0, errs.NewDatabaseError("update", "failed to consume chat quota", err)
	}
	return remaining, nil
}

// ResetQuota sets the allowance to n. Operator use only.
func (us *userStore) ResetQuota(ctx context.Context, uid string, n int) error {
	_, err := us.Collection.Doc(uid).Update(ctx, []firestore.Update{{Path: "chatQuota", Value: n}})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errs.NewNotFoundError("user not found")
		}
		return errs.NewDatabaseError("update", "failed to reset chat quota", err)
	}
	return nil
}
