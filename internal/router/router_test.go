package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/handlers"
	"github.com/GregMSThompson/budget-backend/internal/response"
	"github.com/GregMSThompson/budget-backend/pkg/logger"
)

type denyAll struct{}

func (denyAll) FirebaseAuth(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
}

type stubWebhookSvc struct{ called bool }

func (s *stubWebhookSvc) Handle(context.Context, dto.PlaidWebhook) error {
	s.called = true
	return nil
}

func TestRouterAuthBoundary(t *testing.T) {
	log := logger.New("", logger.NewTestHandler)
	wh := &stubWebhookSvc{}
	deps := &handlers.Deps{Log: log, ResponseHandler: response.New(log), WebhookSvc: wh}
	r := NewRouter(deps, denyAll{})

	req := httptest.NewRequest(http.MethodPost, "/plaid/webhook", strings.NewReader(`{"webhook_type":"ITEM","webhook_code":"ERROR","item_id":"i"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !wh.called {
		t.Fatalf("webhook status = %d called = %v", rr.Code, wh.called)
	}

	for _, path := range []string{"/ledger", "/paybacks", "/categories", "/staged", "/budget/summary", "/plaid/status", "/assistant/quota"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("GET %s status = %d, want 401", path, rr.Code)
		}
	}
}
