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

const dateLayout = "2006-01-02"

type ledgerLSStore interface {
	List(ctx context.Context, uid string, q dto.LedgerQuery) ([]models.LedgerEntry, error)
	Create(ctx context.Context, uid string, e *models.LedgerEntry) error
	Delete(ctx context.Context, uid, entryID string) error
}

type ledgerCategoryStore interface {
	List(ctx context.Context, uid string) ([]models.BudgetCategory, error)
}

type ledgerService struct {
	ledger     ledgerLSStore
	categories ledgerCategoryStore
	newID      func() string
	clockNow   func() time.Time
}

func NewLedgerService(ledger ledgerLSStore, categories ledgerCategoryStore) *ledgerService {
	return &ledgerService{
		ledger:     ledger,
		categories: categories,
		newID:      uuid.NewString,
		clockNow:   time.Now,
	}
}

func (s *ledgerService) List(ctx context.Context, uid string, q dto.LedgerQuery) ([]models.LedgerEntry, error) {
	for _, d := range []string{q.From, q.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, errs.NewValidationError("from and to must be YYYY-MM-DD")
		}
	}
	if q.From != "" && q.To != "" && q.From > q.To {
		return nil, errs.NewValidationError("from must not be after to")
	}
	return s.ledger.List(ctx, uid, q)
}

// Create records a manual entry. The category must match an existing budget
// category; the stored name is the category's canonical spelling.
func (s *ledgerService) Create(ctx context.Context, uid string, req dto.LedgerEntryRequest) (*models.LedgerEntry, error) {
	log, ctx := logger.With(ctx, "uid", uid)

	if req.Amount == nil {
		return nil, errs.NewValidationError("amount is required")
	}
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = s.clockNow().Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, errs.NewValidationError("date must be YYYY-MM-DD")
	}

	cats, err := s.categories.List(ctx, uid)
	if err != nil {
		return nil, err
	}
	category, ok := newVocabulary(cats).canonical(req.Category)
	if !ok {
		return nil, errs.NewValidationError("category must be one of your budget categories")
	}

	entry := &models.LedgerEntry{
		EntryID:     s.newID(),
		UID:         uid,
		Amount:      *req.Amount,
		Category:    category,
		Description: strings.TrimSpace(req.Description),
		Date:        date,
		Source:      models.EntrySourceManual,
	}
	if err := s.ledger.Create(ctx, uid, entry); err != nil {
		log.Error("failed to create ledger entry", "error", err)
		return nil, err
	}

	log.Info("ledger entry created", "entry_id", entry.EntryID, "category", category)
	return entry, nil
}

func (s *ledgerService) Delete(ctx context.Context, uid, entryID string) error {
	if err := s.ledger.Delete(ctx, uid, entryID); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("ledger entry deleted", "entry_id", entryID)
	return nil
}
