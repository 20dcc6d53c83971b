package services

import (
	"context"
	"strings"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/internal/models"
	"github.com/GregMSThompson/budget-backend/pkg/logger"
)

type stagedSSStore interface {
	List(ctx context.Context, uid string) ([]models.StagedTransaction, error)
	Delete(ctx context.Context, uid, transactionID string) error
}

type stagedPromoter interface {
	Promote(ctx context.Context, uid, transactionID string, build func(staged *models.StagedTransaction) *models.LedgerEntry) (*models.LedgerEntry, error)
}

type stagedCategoryStore interface {
	List(ctx context.Context, uid string) ([]models.BudgetCategory, error)
}

type stagingService struct {
	staged     stagedSSStore
	ledger     stagedPromoter
	categories stagedCategoryStore
}

func NewStagingService(staged stagedSSStore, ledger stagedPromoter, categories stagedCategoryStore) *stagingService {
	return &stagingService{staged: staged, ledger: ledger, categories: categories}
}

func (s *stagingService) List(ctx context.Context, uid string) ([]models.StagedTransaction, error) {
	return s.staged.List(ctx, uid)
}

// Promote turns a staged transaction into a ledger entry under a category the
// user confirmed. The staged row is removed in the same transaction.
func (s *stagingService) Promote(ctx context.Context, uid, transactionID string, req dto.PromoteRequest) (*models.LedgerEntry, error) {
	log, ctx := logger.With(ctx, "uid", uid, "transaction_id", transactionID)

	if strings.TrimSpace(req.Category) == "" {
		return nil, errs.NewValidationError("category is required")
	}
	cats, err := s.categories.List(ctx, uid)
	if err != nil {
		return nil, err
	}
	category, ok := newVocabulary(cats).canonical(req.Category)
	if !ok {
		return nil, errs.NewValidationError("category must be one of your budget categories")
	}

	entry, err := s.ledger.Promote(ctx, uid, transactionID, func(staged *models.StagedTransaction) *models.LedgerEntry {
		desc := staged.Description
		if req.Description != nil {
			desc = strings.TrimSpace(*req.Description)
		}
		return &models.LedgerEntry{
			Amount:      staged.Amount,
			Category:    category,
			Description: desc,
			Date:        staged.Date,
			Source:      models.EntrySourcePromoted,
		}
	})
	if err != nil {
		log.Error("failed to promote staged transaction", "error", err)
		return nil, err
	}

	log.Info("staged transaction promoted", "entry_id", entry.EntryID, "category", entry.Category)
	return entry, nil
}

func (s *stagingService) Discard(ctx context.Context, uid, transactionID string) error {
	if err := s.staged.Delete(ctx, uid, transactionID); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("staged transaction discarded", "transaction_id", transactionID)
	return nil
}
