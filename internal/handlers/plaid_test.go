package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
)

type fakeLinkSvc struct {
	linkToken string
	status    *dto.LinkStatusResponse
	err       error

	gotLink struct {
		uid, pubTok, inst string
	}
	unlinked bool
}

func (f *fakeLinkSvc) CreateLinkToken(_ context.Context, _ string) (string, error) {
	return f.linkToken, f.err
}

func (f *fakeLinkSvc) Link(_ context.Context, uid, publicToken, institution string) (*dto.LinkStatusResponse, error) {
	f.gotLink.uid, f.gotLink.pubTok, f.gotLink.inst = uid, publicToken, institution
	return f.status, f.err
}

func (f *fakeLinkSvc) Status(_ context.Context, _ string) (*dto.LinkStatusResponse, error) {
	return f.status, f.err
}

func (f *fakeLinkSvc) Unlink(_ context.Context, _ string) error {
	f.unlinked = true
	return f.err
}

type fakeSyncSvc struct {
	res             dto.SyncResult
	err             error
	session, target string
}

func (f *fakeSyncSvc) SyncForUser(_ context.Context, sessionUID, targetUID string) (dto.SyncResult, error) {
	f.session, f.target = sessionUID, targetUID
	return f.res, f.err
}

type fakeWebhookSvc struct {
	got dto.PlaidWebhook
	err error
}

func (f *fakeWebhookSvc) Handle(_ context.Context, hook dto.PlaidWebhook) error {
	f.got = hook
	return f.err
}

func newTestPlaidHandler(l *fakeLinkSvc, s *fakeSyncSvc, wh *fakeWebhookSvc) *plaidHandlers {
	deps := newTestDeps()
	deps.LinkSvc = l
	deps.SyncSvc = s
	deps.WebhookSvc = wh
	return NewPlaidHandlers(deps)
}

func TestCreateLinkTokenHandler(t *testing.T) {
	h := newTestPlaidHandler(&fakeLinkSvc{linkToken: "link-abc"}, &fakeSyncSvc{}, &fakeWebhookSvc{})

	rr := serve(t, h.PlaidRoutes(), http.MethodPost, "/link-token", "")
	expectStatus(t, rr, http.StatusOK)

	var data dto.LinkTokenResponse
	_ = json.Unmarshal(decodeEnvelope(t, rr).Data, &data)
	if data.LinkToken != "link-abc" {
		t.Fatalf("unexpected response: %s", rr.Body.String())
	}
}

func TestLinkHandler(t *testing.T) {
	l := &fakeLinkSvc{status: &dto.LinkStatusResponse{Linked: true, Status: "linked", Institution: "Chase"}}
	h := newTestPlaidHandler(l, &fakeSyncSvc{}, &fakeWebhookSvc{})

	rr := serve(t, h.PlaidRoutes(), http.MethodPost, "/link", `{"publicToken":"pub-123","institution":"Chase"}`)
	expectStatus(t, rr, http.StatusOK)

	if l.gotLink.uid != "uid-123" || l.gotLink.pubTok != "pub-123" || l.gotLink.inst != "Chase" {
		t.Fatalf("link called with %+v", l.gotLink)
	}
}

func TestLinkHandlerAlreadyLinked(t *testing.T) {
	h := newTestPlaidHandler(&fakeLinkSvc{err: errs.NewAlreadyLinkedError()}, &fakeSyncSvc{}, &fakeWebhookSvc{})

	rr := serve(t, h.PlaidRoutes(), http.MethodPost, "/link", `{"publicToken":"pub-123"}`)
	expectStatus(t, rr, http.StatusConflict)
	if env := decodeEnvelope(t, rr); env.Code != "already_linked" {
		t.Fatalf("code = %q", env.Code)
	}
}

func TestStatusAndUnlinkHandlers(t *testing.T) {
	l := &fakeLinkSvc{status: &dto.LinkStatusResponse{Status: "unlinked"}}
	h := newTestPlaidHandler(l, &fakeSyncSvc{}, &fakeWebhookSvc{})

	expectStatus(t, serve(t, h.PlaidRoutes(), http.MethodGet, "/status", ""), http.StatusOK)

	expectStatus(t, serve(t, h.PlaidRoutes(), http.MethodDelete, "/link", ""), http.StatusOK)
	if !l.unlinked {
		t.Fatalf("Unlink not called")
	}
}

func TestSyncHandler(t *testing.T) {
	s := &fakeSyncSvc{res: dto.SyncResult{Added: 3}}
	h := newTestPlaidHandler(&fakeLinkSvc{}, s, &fakeWebhookSvc{})

	rr := serve(t, http.HandlerFunc(h.Sync), http.MethodPost, "/sync", `{"userId":"uid-123"}`)
	expectStatus(t, rr, http.StatusOK)
	if s.session != "uid-123" || s.target != "uid-123" {
		t.Fatalf("sync called with session=%q target=%q", s.session, s.target)
	}

	// empty body syncs the caller
	rr = serve(t, http.HandlerFunc(h.Sync), http.MethodPost, "/sync", "")
	expectStatus(t, rr, http.StatusOK)
	if s.target != "" {
		t.Fatalf("target = %q, want empty", s.target)
	}
}

func TestSyncHandlerErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"forbidden", errs.NewForbiddenError("nope"), http.StatusForbidden, "forbidden"},
		{"in progress", errs.NewSyncInProgressError("sync"), http.StatusConflict, "sync_in_progress"},
		{"relink", errs.NewInvalidCredentialError("ITEM_LOGIN_REQUIRED"), http.StatusConflict, "relink_required"},
		{"upstream", errs.NewExternalServiceError("plaid", "down", true, errors.New("503")), http.StatusServiceUnavailable, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestPlaidHandler(&fakeLinkSvc{}, &fakeSyncSvc{err: tc.err}, &fakeWebhookSvc{})
			rr := serve(t, http.HandlerFunc(h.Sync), http.MethodPost, "/sync", "")
			expectStatus(t, rr, tc.want)
			if tc.code != "" {
				if env := decodeEnvelope(t, rr); env.Code != tc.code {
					t.Fatalf("code = %q, want %q", env.Code, tc.code)
				}
			}
		})
	}
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	cases := map[string]struct {
		body string
		err  error
	}{
		"handled":     {body: `{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"item-1"}`},
		"svc failure": {body: `{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"item-1"}`, err: errors.New("boom")},
		"garbage":     {body: `not json`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			wh := &fakeWebhookSvc{err: tc.err}
			h := newTestPlaidHandler(&fakeLinkSvc{}, &fakeSyncSvc{}, wh)
			rr := serve(t, http.HandlerFunc(h.Webhook), http.MethodPost, "/plaid/webhook", tc.body)
			expectStatus(t, rr, http.StatusOK)
		})
	}

	wh := &fakeWebhookSvc{}
	h := newTestPlaidHandler(&fakeLinkSvc{}, &fakeSyncSvc{}, wh)
	serve(t, http.HandlerFunc(h.Webhook), http.MethodPost, "/plaid/webhook", cases["handled"].body)
	if wh.got.ItemID != "item-1" || wh.got.WebhookCode != "SYNC_UPDATES_AVAILABLE" {
		t.Fatalf("webhook decoded as %+v", wh.got)
	}
}
