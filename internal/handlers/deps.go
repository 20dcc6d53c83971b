package handlers

import (
	"log/slog"

	"github.com/GregMSThompson/budget-backend/internal/response"
)

type Deps struct {
	Log             *slog.Logger
	ResponseHandler response.ResponseHandler
	UserSvc         UserService
	LinkSvc         linkService
	SyncSvc         syncService
	WebhookSvc      webhookService
	StagingSvc      stagingService
	CategorizeSvc   categorizeService
	LedgerSvc       ledgerService
	PaybackSvc      paybackService
	CategorySvc     categoryService
	BudgetSvc       budgetService
	AssistantSvc    assistantService
}
