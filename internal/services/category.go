package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GregMSThompson/budget-backend/internal/budget"
	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/internal/models"
	"github.com/GregMSThompson/budget-backend/pkg/logger"
)

const maxRelabelAttempts = 3

type categoryCSStore interface {
	List(ctx context.Context, uid string) ([]models.BudgetCategory, error)
	Get(ctx context.Context, uid, categoryID string) (*models.BudgetCategory, error)
	Create(ctx context.Context, uid string, c *models.BudgetCategory) error
	Update(ctx context.Context, uid string, c *models.BudgetCategory) (*models.BudgetCategory, error)
	Delete(ctx context.Context, uid, categoryID string) error
}

type categoryLedgerStore interface {
	IDsByCategory(ctx context.Context, uid, category string) ([]string, error)
	Relabel(ctx context.Context, uid string, entryIDs []string, category string) ([]string, error)
	ListByCategory(ctx context.Context, uid, category string) ([]models.LedgerEntry, error)
}

type categoryStagingStore interface {
	RelabelSuggestions(ctx context.Context, uid, oldName string, newName *string) (int, error)
}

type categoryService struct {
	categories categoryCSStore
	ledger     categoryLedgerStore
	staged     categoryStagingStore
	newID      func() string
	clockNow   func() time.Time
}

func NewCategoryService(categories categoryCSStore, ledger categoryLedgerStore, staged categoryStagingStore) *categoryService {
	return &categoryService{
		categories: categories,
		ledger:     ledger,
		staged:     staged,
		newID:      uuid.NewString,
		clockNow:   time.Now,
	}
}

func (s *categoryService) List(ctx context.Context, uid string) ([]models.BudgetCategory, error) {
	return s.categories.List(ctx, uid)
}

func (s *categoryService) Create(ctx context.Context, uid string, req dto.CategoryRequest) (*models.BudgetCategory, error) {
	c, err := categoryFromRequest(req)
	if err != nil {
		return nil, err
	}
	c.CategoryID = s.newID()
	if err := s.categories.Create(ctx, uid, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update writes the category and, on a rename, relabels the user's ledger
// entries and staged suggestions that carry the old name. Ledger writes are
// retried; entries still unlabeled afterwards are reported as
// RenameIncompleteError with the category update already committed.
func (s *categoryService) Update(ctx context.Context, uid, categoryID string, req dto.CategoryRequest) (*models.BudgetCategory, error) {
	c, err := categoryFromRequest(req)
	if err != nil {
		return nil, err
	}
	c.CategoryID = categoryID

	previous, err := s.categories.Update(ctx, uid, c)
	if err != nil {
		return nil, err
	}
	if previous.Name == c.Name {
		return c, nil
	}

	log, ctx := logger.With(ctx, "uid", uid, "old_name", previous.Name, "new_name", c.Name)

	if _, err := s.staged.RelabelSuggestions(ctx, uid, previous.Name, &c.Name); err != nil {
		// suggestions are advisory; a stale one is caught by the vocabulary check at promote time
		log.Warn("failed to relabel staged suggestions", "error", err)
	}

	ids, err := s.ledger.IDsByCategory(ctx, uid, previous.Name)
	if err != nil {
		log.Error("category renamed but ledger entries could not be read", "error", err)
		return nil, err
	}

	pending := ids
	for attempt := 1; attempt <= maxRelabelAttempts && len(pending) > 0; attempt++ {
		pending, err = s.ledger.Relabel(ctx, uid, pending, c.Name)
		if err != nil {
			return nil, errs.NewRenameIncompleteError(previous.Name, c.Name, len(ids)-len(pending), len(pending))
		}
		if len(pending) > 0 {
			log.Warn("ledger relabel attempt left entries behind", "attempt", attempt, "remaining", len(pending))
		}
	}
	if len(pending) > 0 {
		return nil, errs.NewRenameIncompleteError(previous.Name, c.Name, len(ids)-len(pending), len(pending))
	}

	log.Info("category renamed", "relabeled", len(ids))
	return c, nil
}

// Delete removes the category and clears staged suggestions that point at
// it. Ledger entries keep their label.
func (s *categoryService) Delete(ctx context.Context, uid, categoryID string) error {
	c, err := s.categories.Get(ctx, uid, categoryID)
	if err != nil {
		return err
	}
	if err := s.categories.Delete(ctx, uid, categoryID); err != nil {
		return err
	}
	if _, err := s.staged.RelabelSuggestions(ctx, uid, c.Name, nil); err != nil {
		logger.FromContext(ctx).Warn("failed to clear staged suggestions", "category", c.Name, "error", err)
	}
	return nil
}

// Detail returns the category with its spending in the current week and
// month and its full history, newest first.
func (s *categoryService) Detail(ctx context.Context, uid, categoryID string) (*dto.CategoryDetail, error) {
	c, err := s.categories.Get(ctx, uid, categoryID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.ListByCategory(ctx, uid, c.Name)
	if err != nil {
		return nil, err
	}

	now := s.clockNow()
	out := &dto.CategoryDetail{
		Category:        *c,
		WeeklySpending:  budget.SpentIn(entries, budget.WeekWindow(now)),
		MonthlySpending: budget.SpentIn(entries, budget.MonthWindow(now)),
		History:         make([]dto.SpendPoint, 0, len(entries)),
	}
	for _, e := range budget.SortedByDateDesc(entries) {
		out.History = append(out.History, dto.SpendPoint{Date: e.Date, Amount: e.Amount})
	}
	return out, nil
}

func categoryFromRequest(req dto.CategoryRequest) (*models.BudgetCategory, error) {
	name := strings.Join(strings.Fields(req.Name), " ")
	if name == "" {
		return nil, errs.NewValidationError("name is required")
	}
	if req.TargetAmount < 0 {
		return nil, errs.NewValidationError("targetAmount must not be negative")
	}
	freq := strings.ToLower(strings.TrimSpace(req.Frequency))
	if freq == "" {
		freq = models.FrequencyMonthly
	}
	if !models.ValidFrequency(freq) {
		return nil, errs.NewValidationError("frequency must be weekly or monthly")
	}
	return &models.BudgetCategory{
		Name:           name,
		TargetAmount:   req.TargetAmount,
		Frequency:      freq,
		IsSubscription: req.IsSubscription,
	}, nil
}
