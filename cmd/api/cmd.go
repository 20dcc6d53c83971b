package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/GregMSThompson/budget-backend/internal/bootstrap"
	"github.com/GregMSThompson/budget-backend/internal/config"
	"github.com/GregMSThompson/budget-backend/internal/handlers"
	"github.com/GregMSThompson/budget-backend/internal/middleware"
	"github.com/GregMSThompson/budget-backend/internal/response"
	"github.com/GregMSThompson/budget-backend/internal/router"
	"github.com/GregMSThompson/budget-backend/internal/services"
	"github.com/GregMSThompson/budget-backend/internal/store"
)

func exitOnError(message string, err error, log *slog.Logger) {
	if err != nil {
		log.Error(message, "error", err)
		os.Exit(1)
	}
}

func main() {
	// config
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// bootstrap
	bs, err := bootstrap.Run(cfg)
	exitOnError("bootstrap failed", err, bs.Log)
	defer bs.Close()

	// stores
	lstore := store.NewLinkStore(bs.Firestore, bs.KMS)
	sstore := store.NewStagingStore(bs.Firestore)
	gstore := store.NewLedgerStore(bs.Firestore)
	cstore := store.NewCategoryStore(bs.Firestore)
	ustore := store.NewUserStore(bs.Firestore)
	astore := store.NewAssistantStore(bs.Firestore)
	pstore := store.NewPaybackStore(bs.Firestore)

	// services
	syserv := services.NewSyncService(lstore, sstore, bs.Plaid, cfg.SyncLeaseTTL)
	lkserv := services.NewLinkService(lstore, bs.Plaid, syserv, cfg.SyncLeaseTTL)
	whserv := services.NewWebhookService(lstore, syserv)
	stserv := services.NewStagingService(sstore, gstore, cstore)
	ctserv := services.NewCategorizeService(sstore, cstore, bs.Model, cfg.CategorizeBatchSize, cfg.CategorizeMinConfidence)
	leserv := services.NewLedgerService(gstore, cstore)
	pbserv := services.NewPaybackService(pstore)
	caserv := services.NewCategoryService(cstore, gstore, sstore)
	buserv := services.NewBudgetService(gstore, cstore)
	asserv := services.NewAssistantService(bs.Model, ustore, gstore, cstore, astore, cfg.AssistantHistoryTTL)
	userv := services.NewUserService(ustore, cfg.InitialChatQuota)

	// response handler
	rh := response.New(bs.Log)

	// dependancies
	deps := new(handlers.Deps)
	deps.Log = bs.Log
	deps.ResponseHandler = rh
	deps.UserSvc = userv
	deps.LinkSvc = lkserv
	deps.SyncSvc = syserv
	deps.WebhookSvc = whserv
	deps.StagingSvc = stserv
	deps.CategorizeSvc = ctserv
	deps.LedgerSvc = leserv
	deps.PaybackSvc = pbserv
	deps.CategorySvc = caserv
	deps.BudgetSvc = buserv
	deps.AssistantSvc = asserv

	// router
	r := router.NewRouter(deps, middleware.NewMiddleware(bs.Firebase))
	bs.Log.Info("listening", "port", cfg.Port)
	err = http.ListenAndServe(":"+cfg.Port, r)
	exitOnError("server start failed", err, bs.Log)
}
