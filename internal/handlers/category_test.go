package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/internal/models"
)

type fakeCategorySvc struct {
	cats   []models.BudgetCategory
	cat    *models.BudgetCategory
	detail *dto.CategoryDetail
	err    error
	gotID  string
	gotReq dto.CategoryRequest
}

func (f *fakeCategorySvc) List(_ context.Context, _ string) ([]models.BudgetCategory, error) {
	return f.cats, f.err
}

func (f *fakeCategorySvc) Create(_ context.Context, _ string, req dto.CategoryRequest) (*models.BudgetCategory, error) {
	f.gotReq = req
	return f.cat, f.err
}

func (f *fakeCategorySvc) Update(_ context.Context, _, categoryID string, req dto.CategoryRequest) (*models.BudgetCategory, error) {
	f.gotID, f.gotReq = categoryID, req
	return f.cat, f.err
}

func (f *fakeCategorySvc) Delete(_ context.Context, _, categoryID string) error {
	f.gotID = categoryID
	return f.err
}

func (f *fakeCategorySvc) Detail(_ context.Context, _, categoryID string) (*dto.CategoryDetail, error) {
	f.gotID = categoryID
	return f.detail, f.err
}

func newTestCategoryHandler(svc *fakeCategorySvc) *categoryHandlers {
	deps := newTestDeps()
	deps.CategorySvc = svc
	return NewCategoryHandlers(deps)
}

func TestCategoryCRUDRoutes(t *testing.T) {
	svc := &fakeCategorySvc{
		cats:   []models.BudgetCategory{{CategoryID: "c1", Name: "Coffee"}},
		cat:    &models.BudgetCategory{CategoryID: "c1", Name: "Cafe"},
		detail: &dto.CategoryDetail{WeeklySpending: 12},
	}
	h := newTestCategoryHandler(svc)

	expectStatus(t, serve(t, h.CategoryRoutes(), http.MethodGet, "/", ""), http.StatusOK)

	expectStatus(t, serve(t, h.CategoryRoutes(), http.MethodPost, "/", `{"name":"Coffee","targetAmount":20,"frequency":"weekly"}`), http.StatusCreated)
	if svc.gotReq.Name != "Coffee" || svc.gotReq.TargetAmount != 20 || svc.gotReq.Frequency != "weekly" {
		t.Fatalf("create called with %+v", svc.gotReq)
	}

	expectStatus(t, serve(t, h.CategoryRoutes(), http.MethodPut, "/c1", `{"name":"Cafe","targetAmount":20}`), http.StatusOK)
	if svc.gotID != "c1" || svc.gotReq.Name != "Cafe" {
		t.Fatalf("update called with id=%q req=%+v", svc.gotID, svc.gotReq)
	}

	rr := serve(t, h.CategoryRoutes(), http.MethodGet, "/c1/detail", "")
	expectStatus(t, rr, http.StatusOK)
	var d dto.CategoryDetail
	_ = json.Unmarshal(decodeEnvelope(t, rr).Data, &d)
	if d.WeeklySpending != 12 {
		t.Fatalf("detail = %+v", d)
	}

	expectStatus(t, serve(t, h.CategoryRoutes(), http.MethodDelete, "/c1", ""), http.StatusOK)
}

func TestCategoryRenameIncomplete(t *testing.T) {
	h := newTestCategoryHandler(&fakeCategorySvc{err: errs.NewRenameIncompleteError("Coffee", "Cafe", 2, 1)})

	rr := serve(t, h.CategoryRoutes(), http.MethodPut, "/c1", `{"name":"Cafe","targetAmount":20}`)
	expectStatus(t, rr, http.StatusInternalServerError)
	if env := decodeEnvelope(t, rr); env.Code != "rename_incomplete" {
		t.Fatalf("code = %q", env.Code)
	}
}

func TestCategoryDuplicateName(t *testing.T) {
	h := newTestCategoryHandler(&fakeCategorySvc{err: errs.NewAlreadyExistsError("a category with this name already exists")})

	rr := serve(t, h.CategoryRoutes(), http.MethodPost, "/", `{"name":"coffee","targetAmount":20}`)
	expectStatus(t, rr, http.StatusConflict)
}

func TestCategoryEmptyBody(t *testing.T) {
	svc := &fakeCategorySvc{}
	h := newTestCategoryHandler(svc)

	rr := serve(t, h.CategoryRoutes(), http.MethodPost, "/", "")
	expectStatus(t, rr, http.StatusBadRequest)
	if env := decodeEnvelope(t, rr); env.Code != "invalid_input" {
		t.Fatalf("code = %q", env.Code)
	}
	expectStatus(t, serve(t, h.CategoryRoutes(), http.MethodPut, "/c1", `{"name":"Ca`), http.StatusBadRequest)
	if svc.gotID != "" {
		t.Fatalf("service called with a truncated body")
	}
}
