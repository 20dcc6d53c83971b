package services

import (
	"context"
	"time"

	"github.com/GregMSThompson/budget-backend/internal/models"
	"github.com/GregMSThompson/budget-backend/pkg/logger"
)

type userUSStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, uid string) (*models.User, error)
}

type userService struct {
	Store        userUSStore
	initialQuota int
	clockNow     func() time.Time
}

func NewUserService(store userUSStore, initialQuota int) *userService {
	return &userService{
		Store:        store,
		initialQuota: initialQuota,
		clockNow:     time.Now,
	}
}

func (s *userService) CreateUser(ctx context.Context, uid, email, first, last string) error {
	// Get logger from context - already has uid, email, request_id, method, path
	log := logger.FromContext(ctx)

	now := s.clockNow()
	user := &models.User{
		UID:       uid,
		Email:     email,
		FirstName: first,
		LastName:  last,
		ChatQuota: s.initialQuota,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.Store.CreateUser(ctx, user); err != nil {
		log.Error("failed to create user in store", "error", err)
		return err
	}

	log.Info("user created successfully", "first_name", first, "last_name", last, "chat_quota", user.ChatQuota)
	log.Debug("user created with full details", "user", user)

	return nil
}

func (s *userService) GetUser(ctx context.Context, uid string) (*models.User, error) {
	return s.Store.GetUser(ctx, uid)
}
