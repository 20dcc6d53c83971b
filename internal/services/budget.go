package services

import (
	"context"
	"time"

	"github.com/GregMSThompson/budget-backend/internal/budget"
	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/internal/models"
	"github.com/GregMSThompson/budget-backend/pkg/logger"
)

type budgetLedgerStore interface {
	List(ctx context.Context, uid string, q dto.LedgerQuery) ([]models.LedgerEntry, error)
}

type budgetCategoryStore interface {
	List(ctx context.Context, uid string) ([]models.BudgetCategory, error)
}

type budgetService struct {
	ledger     budgetLedgerStore
	categories budgetCategoryStore
	clockNow   func() time.Time
}

func NewBudgetService(ledger budgetLedgerStore, categories budgetCategoryStore) *budgetService {
	return &budgetService{ledger: ledger, categories: categories, clockNow: time.Now}
}

// Summary reports spending against targets for the current week or month.
func (s *budgetService) Summary(ctx context.Context, uid string, view dto.BudgetView) (dto.BudgetSummary, error) {
	switch view {
	case "":
		view = dto.BudgetViewMonth
	case dto.BudgetViewWeek, dto.BudgetViewMonth:
	default:
		return dto.BudgetSummary{}, errs.NewValidationError("view must be week or month")
	}

	now := s.clockNow()
	from, to := budget.WindowFor(view, now).Bounds()

	entries, err := s.ledger.List(ctx, uid, dto.LedgerQuery{From: from, To: to})
	if err != nil {
		return dto.BudgetSummary{}, err
	}
	cats, err := s.categories.List(ctx, uid)
	if err != nil {
		return dto.BudgetSummary{}, err
	}

	summary := budget.Aggregate(entries, cats, view, now)
	if logger.IsDebugEnabled(ctx) {
		logger.FromContext(ctx).Debug("budget summary computed", "uid", uid, "view", view, "entries", len(entries), "total_spent", summary.TotalSpent)
	}
	return summary, nil
}
