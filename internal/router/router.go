package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/GregMSThompson/budget-backend/internal/handlers"
	"github.com/GregMSThompson/budget-backend/internal/middleware"
)

// authenticator is satisfied by *middleware.Middleware.
type authenticator interface {
	FirebaseAuth(next http.Handler) http.Handler
}

func NewRouter(deps *handlers.Deps, auth authenticator) chi.Router {
	r := chi.NewRouter()

	lm := middleware.NewLoggerMiddleware(deps.Log)
	r.Use(chimiddleware.RequestID)
	r.Use(lm.LoggerMiddleware)
	r.Use(chimiddleware.Recoverer)

	ph := handlers.NewPlaidHandlers(deps)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Plaid cannot present a Firebase token.
	r.Post("/plaid/webhook", ph.Webhook)

	r.Group(func(r chi.Router) {
		r.Use(auth.FirebaseAuth)

		r.Mount("/users", handlers.NewUserHandlers(deps).UserRoutes())
		r.Mount("/plaid", ph.PlaidRoutes())
		r.Post("/sync", ph.Sync)
		r.Mount("/staged", handlers.NewStagedHandlers(deps).StagedRoutes())
		r.Mount("/ledger", handlers.NewLedgerHandlers(deps).LedgerRoutes())
		r.Mount("/paybacks", handlers.NewPaybackHandlers(deps).PaybackRoutes())
		r.Mount("/categories", handlers.NewCategoryHandlers(deps).CategoryRoutes())
		r.Mount("/budget", handlers.NewBudgetHandlers(deps).BudgetRoutes())
		r.Mount("/assistant", handlers.NewAssistantHandlers(deps).AssistantRoutes())
	})

	return r
}
