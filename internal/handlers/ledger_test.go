package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/internal/models"
)

type fakeLedgerSvc struct {
	entries  []models.LedgerEntry
	entry    *models.LedgerEntry
	err      error
	gotQuery dto.LedgerQuery
	gotReq   dto.LedgerEntryRequest
	gotID    string
}

func (f *fakeLedgerSvc) List(_ context.Context, _ string, q dto.LedgerQuery) ([]models.LedgerEntry, error) {
	f.gotQuery = q
	return f.entries, f.err
}

func (f *fakeLedgerSvc) Create(_ context.Context, _ string, req dto.LedgerEntryRequest) (*models.LedgerEntry, error) {
	f.gotReq = req
	return f.entry, f.err
}

func (f *fakeLedgerSvc) Delete(_ context.Context, _, entryID string) error {
	f.gotID = entryID
	return f.err
}

func newTestLedgerHandler(svc *fakeLedgerSvc) *ledgerHandlers {
	deps := newTestDeps()
	deps.LedgerSvc = svc
	return NewLedgerHandlers(deps)
}

func TestLedgerListPassesRange(t *testing.T) {
	svc := &fakeLedgerSvc{}
	h := newTestLedgerHandler(svc)

	expectStatus(t, serve(t, h.LedgerRoutes(), http.MethodGet, "/?from=2024-05-01&to=2024-05-31", ""), http.StatusOK)
	if svc.gotQuery.From != "2024-05-01" || svc.gotQuery.To != "2024-05-31" {
		t.Fatalf("query = %+v", svc.gotQuery)
	}
}

func TestLedgerCreate(t *testing.T) {
	svc := &fakeLedgerSvc{entry: &models.LedgerEntry{EntryID: "e1"}}
	h := newTestLedgerHandler(svc)

	rr := serve(t, h.LedgerRoutes(), http.MethodPost, "/", `{"amount":12.5,"category":"Coffee","date":"2024-05-02"}`)
	expectStatus(t, rr, http.StatusCreated)
	if svc.gotReq.Amount == nil || *svc.gotReq.Amount != 12.5 || svc.gotReq.Category != "Coffee" {
		t.Fatalf("create called with %+v", svc.gotReq)
	}
}

func TestLedgerCreateValidationError(t *testing.T) {
	h := newTestLedgerHandler(&fakeLedgerSvc{err: errs.NewValidationError("amount is required")})

	rr := serve(t, h.LedgerRoutes(), http.MethodPost, "/", `{"category":"Coffee"}`)
	expectStatus(t, rr, http.StatusBadRequest)
	if env := decodeEnvelope(t, rr); env.Code != "invalid_input" {
		t.Fatalf("code = %q", env.Code)
	}
}

func TestLedgerDelete(t *testing.T) {
	svc := &fakeLedgerSvc{}
	h := newTestLedgerHandler(svc)
	expectStatus(t, serve(t, h.LedgerRoutes(), http.MethodDelete, "/e1", ""), http.StatusOK)
	if svc.gotID != "e1" {
		t.Fatalf("delete called with %q", svc.gotID)
	}

	h = newTestLedgerHandler(&fakeLedgerSvc{err: errs.NewNotFoundError("ledger entry not found")})
	expectStatus(t, serve(t, h.LedgerRoutes(), http.MethodDelete, "/e1", ""), http.StatusNotFound)
}
