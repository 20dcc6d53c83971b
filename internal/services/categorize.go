package services

import (
	"context"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/models"
	"github.com/GregMSThompson/budget-backend/pkg/logger"
)

type categorizeStagingStore interface {
	ListNeedingSuggestion(ctx context.Context, uid string, minConfidence float64, limit int) ([]models.StagedTransaction, error)
	ApplySuggestions(ctx context.Context, uid string, updates []dto.SuggestionUpdate) ([]string, error)
}

type categorizeCategoryStore interface {
	List(ctx context.Context, uid string) ([]models.BudgetCategory, error)
}

// generator is implemented by both the Vertex and Gemini API adapters.
type generator interface {
	GenerateContent(ctx context.Context, req dto.GenerateRequest) (dto.GenerateResponse, error)
}

type categorizeService struct {
	staged        categorizeStagingStore
	categories    categorizeCategoryStore
	model         generator
	batchSize     int
	minConfidence float64
}

func NewCategorizeService(staged categorizeStagingStore, categories categorizeCategoryStore, model generator, batchSize int, minConfidence float64) *categorizeService {
	return &categorizeService{
		staged:        staged,
		categories:    categories,
		model:         model,
		batchSize:     batchSize,
		minConfidence: minConfidence,
	}
}

// Categorize suggests categories for the user's most recent staged
// transactions that lack a confident suggestion. One classifier call per
// invocation; nothing is written unless the whole answer validates.
func (s *categorizeService) Categorize(ctx context.Context, uid string) (dto.CategorizeResult, error) {
	log, ctx := logger.With(ctx, "uid", uid)
	result := dto.CategorizeResult{}

	cats, err := s.categories.List(ctx, uid)
	if err != nil {
		return result, err
	}
	vocab := newVocabulary(cats)
	if vocab.empty() {
		log.Info("categorize skipped, no categories defined")
		return result, nil
	}

	pending, err := s.staged.ListNeedingSuggestion(ctx, uid, s.minConfidence, s.batchSize)
	if err != nil {
		return result, err
	}
	if len(pending) == 0 {
		return result, nil
	}
	result.Requested = len(pending)

	items := classifierItems(pending)
	req, err := classifierRequest(vocab, items)
	if err != nil {
		return result, err
	}
	resp, err := s.model.GenerateContent(ctx, req)
	if err != nil {
		return result, err
	}
	if logger.IsDebugEnabled(ctx) {
		log.Debug("classifier raw response", "text", resp.Text)
	}

	updates, err := decodeClassification(resp.Text, items, vocab)
	if err != nil {
		return result, err
	}

	failed, err := s.staged.ApplySuggestions(ctx, uid, updates)
	if err != nil {
		return result, err
	}
	result.Failed = len(failed)
	result.Suggested = countSuggested(updates, failed)

	log.Info("categorize completed",
		"requested", result.Requested,
		"suggested", result.Suggested,
		"failed", result.Failed)
	return result, nil
}

// countSuggested counts applied updates that carry a category. A nil
// category means the classifier declined to guess.
func countSuggested(updates []dto.SuggestionUpdate, failed []string) int {
	skip := make(map[string]struct{}, len(failed))
	for _, id := range failed {
		skip[id] = struct{}{}
	}
	n := 0
	for _, u := range updates {
		if _, ok := skip[u.TransactionID]; ok || u.Category == nil {
			continue
		}
		n++
	}
	return n
}
