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

type paybackStore interface {
	List(ctx context.Context, uid string) ([]models.Payback, error)
	Create(ctx context.Context, uid string, p *models.Payback) error
	Delete(ctx context.Context, uid, paybackID string) error
}

type paybackService struct {
	paybacks paybackStore
	newID    func() string
}

func NewPaybackService(paybacks paybackStore) *paybackService {
	return &paybackService{paybacks: paybacks, newID: uuid.NewString}
}

func (s *paybackService) List(ctx context.Context, uid string) ([]models.Payback, error) {
	return s.paybacks.List(ctx, uid)
}

func (s *paybackService) Create(ctx context.Context, uid string, req dto.PaybackRequest) (*models.Payback, error) {
	log, ctx := logger.With(ctx, "uid", uid)

	if req.Amount == nil || *req.Amount <= 0 {
		return nil, errs.NewValidationError("amount must be greater than zero")
	}
	person := strings.Join(strings.Fields(req.Person), " ")
	if person == "" {
		return nil, errs.NewValidationError("person is required")
	}
	reminder := strings.TrimSpace(req.ReminderDate)
	if reminder != "" {
		if _, err := time.Parse(dateLayout, reminder); err != nil {
			return nil, errs.NewValidationError("reminderDate must be YYYY-MM-DD")
		}
	}

	p := &models.Payback{
		PaybackID:    s.newID(),
		UID:          uid,
		Amount:       *req.Amount,
		Person:       person,
		Note:         strings.TrimSpace(req.Note),
		ReminderDate: reminder,
	}
	if err := s.paybacks.Create(ctx, uid, p); err != nil {
		log.Error("failed to create payback", "error", err)
		return nil, err
	}

	log.Info("payback recorded", "payback_id", p.PaybackID)
	return p, nil
}

// Delete marks a payback as repaid by removing it.
func (s *paybackService) Delete(ctx context.Context, uid, paybackID string) error {
	if strings.TrimSpace(paybackID) == "" {
		return errs.NewValidationError("payback id is required")
	}
	if err := s.paybacks.Delete(ctx, uid, paybackID); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("payback settled", "payback_id", paybackID)
	return nil
}
