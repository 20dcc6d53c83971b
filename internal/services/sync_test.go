package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/internal/models"
	"github.com/GregMSThompson/budget-backend/pkg/helpers"
)

func ptx(id string, amount float64, date, desc string) dto.ProviderTransaction {
	return dto.ProviderTransaction{TransactionID: id, Amount: amount, Date: date, Description: desc}
}

func newTestSync(links *fakeLinkStore, staged *fakeStagingStore, provider *fakeProvider) *syncService {
	svc := NewSyncService(links, staged, provider, time.Minute)
	n := 0
	svc.newHolder = func() string {
		n++
		return "holder-" + string(rune('a'+n-1))
	}
	return svc
}

func TestSync_MultiPageStagesThenCommitsCursor(t *testing.T) {
	links := newFakeLinkStore()
	links.seedLinked("u1", "item-1", "access-1", "c0")
	staged := newFakeStagingStore()
	provider := &fakeProvider{pages: map[string]dto.PlaidSyncPage{
		"c0": {
			Added:   []dto.ProviderTransaction{ptx("t1", 4.5, "2024-05-01", "Coffee"), ptx("t2", 20, "2024-05-02", "Lunch")},
			Cursor:  "c1",
			HasMore: true,
		},
		"c1": {
			Modified: []dto.ProviderTransaction{ptx("t1", 5.25, "2024-05-01", "Coffee Shop")},
			Removed:  []string{"t2"},
			Cursor:   "c2",
		},
	}}
	svc := newTestSync(links, staged, provider)

	res, err := svc.Sync(helpers.TestCtx(), "u1")
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if res.Added != 2 || res.Modified != 1 || res.Removed != 1 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if got := links.get("u1").SyncCursor; got != "c2" {
		t.Fatalf("cursor = %q, want c2", got)
	}
	if len(staged.rows) != 1 {
		t.Fatalf("staged rows = %d, want 1", len(staged.rows))
	}
	row := staged.rows["t1"]
	if row.Amount != 5.25 || row.Description != "Coffee Shop" {
		t.Fatalf("t1 not updated from later page: %+v", row)
	}
	if links.get("u1").Lease != nil {
		t.Fatalf("lease not released")
	}
	if links.get("u1").LastSyncedAt.IsZero() {
		t.Fatalf("last synced time not recorded")
	}
}

func TestSync_StagingFailureLeavesCursor(t *testing.T) {
	links := newFakeLinkStore()
	links.seedLinked("u1", "item-1", "access-1", "c0")
	staged := newFakeStagingStore()
	staged.applyErr = errs.NewDatabaseError("write", "bulk write failed", errors.New("boom"))
	provider := &fakeProvider{pages: map[string]dto.PlaidSyncPage{
		"c0": {Added: []dto.ProviderTransaction{ptx("t1", 1, "2024-05-01", "x")}, Cursor: "c1"},
	}}
	svc := newTestSync(links, staged, provider)

	_, err := svc.Sync(helpers.TestCtx(), "u1")
	var dbErr *errs.DatabaseError
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected DatabaseError, got %T: %v", err, err)
	}
	if got := links.get("u1").SyncCursor; got != "c0" {
		t.Fatalf("cursor advanced to %q after failed staging", got)
	}
	if links.commits != 0 {
		t.Fatalf("CommitCursor called %d times", links.commits)
	}
	if links.get("u1").Lease != nil {
		t.Fatalf("lease not released after failure")
	}
}

func TestSync_RerunAfterCommitFailureIsIdempotent(t *testing.T) {
	links := newFakeLinkStore()
	links.seedLinked("u1", "item-1", "access-1", "c0")
	staged := newFakeStagingStore()
	provider := &fakeProvider{pages: map[string]dto.PlaidSyncPage{
		"c0": {Added: []dto.ProviderTransaction{ptx("t1", 3, "2024-05-01", "x"), ptx("t2", 4, "2024-05-01", "y")}, Cursor: "c1"},
	}}
	svc := newTestSync(links, staged, provider)

	links.commitErr = errs.NewDatabaseError("commit_cursor", "tx failed", errors.New("unavailable"))
	if _, err := svc.Sync(helpers.TestCtx(), "u1"); err == nil {
		t.Fatalf("expected commit error")
	}
	links.commitErr = nil

	if _, err := svc.Sync(helpers.TestCtx(), "u1"); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if len(staged.rows) != 2 {
		t.Fatalf("staged rows = %d, want 2 (no duplicates)", len(staged.rows))
	}
	if got := links.get("u1").SyncCursor; got != "c1" {
		t.Fatalf("cursor = %q, want c1", got)
	}
}

func TestSync_RemovalWinsWithinBatch(t *testing.T) {
	links := newFakeLinkStore()
	links.seedLinked("u1", "item-1", "access-1", "")
	staged := newFakeStagingStore()
	provider := &fakeProvider{pages: map[string]dto.PlaidSyncPage{
		"": {
			Added:   []dto.ProviderTransaction{ptx("t1", 1, "2024-05-01", "x")},
			Removed: []string{"t1"},
			Cursor:  "c1",
		},
	}}
	svc := newTestSync(links, staged, provider)

	if _, err := svc.Sync(helpers.TestCtx(), "u1"); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if _, ok := staged.rows["t1"]; ok {
		t.Fatalf("removed transaction was staged")
	}
}

func TestSync_PaginationRestartsFromOriginalCursor(t *testing.T) {
	links := newFakeLinkStore()
	links.seedLinked("u1", "item-1", "access-1", "c0")
	staged := newFakeStagingStore()
	provider := &fakeProvider{
		errs: []error{nil, errs.ErrPaginationRestart},
		pages: map[string]dto.PlaidSyncPage{
			"c0": {Added: []dto.ProviderTransaction{ptx("t1", 1, "2024-05-01", "x")}, Cursor: "c1", HasMore: true},
			"c1": {Cursor: "c2"},
		},
	}
	svc := newTestSync(links, staged, provider)

	res, err := svc.Sync(helpers.TestCtx(), "u1")
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	want := []string{"c0", "c1", "c0", "c1"}
	if len(provider.cursors) != len(want) {
		t.Fatalf("cursors requested = %v, want %v", provider.cursors, want)
	}
	for i := range want {
		if provider.cursors[i] != want[i] {
			t.Fatalf("cursors requested = %v, want %v", provider.cursors, want)
		}
	}
	if res.Added != 1 {
		t.Fatalf("Added = %d, want 1 (discarded attempt not counted)", res.Added)
	}
	if staged.applyCalls != 1 {
		t.Fatalf("ApplyBatch called %d times, want 1", staged.applyCalls)
	}
}

func TestSync_PaginationRestartGivesUp(t *testing.T) {
	links := newFakeLinkStore()
	links.seedLinked("u1", "item-1", "access-1", "c0")
	provider := &fakeProvider{errs: []error{
		errs.ErrPaginationRestart, errs.ErrPaginationRestart, errs.ErrPaginationRestart, errs.ErrPaginationRestart,
	}}
	svc := newTestSync(links, newFakeStagingStore(), provider)

	_, err := svc.Sync(helpers.TestCtx(), "u1")
	var ext *errs.ExternalServiceError
	if !errors.As(err, &ext) || !ext.Transient {
		t.Fatalf("expected transient ExternalServiceError, got %T: %v", err, err)
	}
	if provider.calls != maxPaginationRestarts+1 {
		t.Fatalf("provider calls = %d, want %d", provider.calls, maxPaginationRestarts+1)
	}
}

func TestSync_InvalidCredentialFlagsRelink(t *testing.T) {
	links := newFakeLinkStore()
	links.seedLinked("u1", "item-1", "access-1", "c0")
	provider := &fakeProvider{errs: []error{errs.NewInvalidCredentialError("ITEM_LOGIN_REQUIRED")}}
	svc := newTestSync(links, newFakeStagingStore(), provider)

	_, err := svc.Sync(helpers.TestCtx(), "u1")
	var credErr *errs.InvalidCredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected InvalidCredentialError, got %T: %v", err, err)
	}
	link := links.get("u1")
	if link.Status != models.LinkStatusRelinkRequired {
		t.Fatalf("status = %q, want relink_required", link.Status)
	}
	if link.SyncCursor != "c0" {
		t.Fatalf("cursor changed to %q", link.SyncCursor)
	}
}

func TestSync_NotLinked(t *testing.T) {
	links := newFakeLinkStore()
	provider := &fakeProvider{}
	svc := newTestSync(links, newFakeStagingStore(), provider)

	_, err := svc.Sync(helpers.TestCtx(), "u1")
	var nf *errs.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %T: %v", err, err)
	}
	if provider.calls != 0 {
		t.Fatalf("provider called for unlinked user")
	}
}

func TestSync_LeaseHeldElsewhere(t *testing.T) {
	links := newFakeLinkStore()
	links.seedLinked("u1", "item-1", "access-1", "c0")
	if _, err := links.AcquireLease(context.Background(), "u1", "other", models.LeasePurposeLink, time.Minute); err != nil {
		t.Fatalf("seed lease: %v", err)
	}
	provider := &fakeProvider{}
	svc := newTestSync(links, newFakeStagingStore(), provider)

	_, err := svc.Sync(helpers.TestCtx(), "u1")
	var busy *errs.SyncInProgressError
	if !errors.As(err, &busy) {
		t.Fatalf("expected SyncInProgressError, got %T: %v", err, err)
	}
	if busy.Purpose != models.LeasePurposeLink {
		t.Fatalf("purpose = %q, want link", busy.Purpose)
	}
	if provider.calls != 0 {
		t.Fatalf("provider called while lease held elsewhere")
	}
	if l := links.get("u1"); l.Lease == nil || l.Lease.Holder != "other" {
		t.Fatalf("foreign lease was disturbed: %+v", l.Lease)
	}
}

func TestSync_ConcurrentCallsAreExclusive(t *testing.T) {
	links := newFakeLinkStore()
	links.seedLinked("u1", "item-1", "access-1", "c0")
	staged := newFakeStagingStore()

	entered := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once
	provider := &fakeProvider{
		pages: map[string]dto.PlaidSyncPage{
			"c0": {Added: []dto.ProviderTransaction{ptx("t1", 9, "2024-05-01", "Books")}, Cursor: "c1"},
		},
		// hold the first caller inside the provider until the other has returned
		onSync: func() {
			once.Do(func() { close(entered) })
			<-proceed
		},
	}
	svc := NewSyncService(links, staged, provider, time.Minute)
	var n atomic.Int32
	svc.newHolder = func() string { return fmt.Sprintf("holder-%d", n.Add(1)) }

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Sync(helpers.TestCtx(), "u1")
			results <- err
		}()
	}

	<-entered
	loser := <-results
	close(proceed)
	winner := <-results

	var busy *errs.SyncInProgressError
	if !errors.As(loser, &busy) {
		t.Fatalf("expected SyncInProgressError for the second call, got %T: %v", loser, loser)
	}
	if winner != nil {
		t.Fatalf("lease holder failed: %v", winner)
	}
	if staged.applyCalls != 1 {
		t.Fatalf("ApplyBatch called %d times, want 1", staged.applyCalls)
	}
	if links.commits != 1 || provider.calls != 1 {
		t.Fatalf("commits = %d provider calls = %d, want 1 and 1", links.commits, provider.calls)
	}
	if l := links.get("u1"); l.SyncCursor != "c1" || l.Lease != nil {
		t.Fatalf("unexpected link after sync: %+v", l)
	}
}

func TestSync_RelinkFlagDuringSyncStillCommits(t *testing.T) {
	links := newFakeLinkStore()
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	links.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	links.seedLinked("u1", "item-1", "access-1", "c0")
	staged := newFakeStagingStore()
	provider := &fakeProvider{pages: map[string]dto.PlaidSyncPage{
		"c0": {Added: []dto.ProviderTransaction{ptx("t1", 3, "2024-05-01", "Bus")}, Cursor: "c1"},
	}}
	// an ITEM/ERROR webhook lands while the page is being fetched
	provider.onSync = func() {
		if err := links.FlagRelink(context.Background(), "u1"); err != nil {
			t.Errorf("FlagRelink: %v", err)
		}
	}
	svc := newTestSync(links, staged, provider)

	if _, err := svc.Sync(helpers.TestCtx(), "u1"); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	l := links.get("u1")
	if l.SyncCursor != "c1" || links.commits != 1 {
		t.Fatalf("cursor not committed: cursor=%q commits=%d", l.SyncCursor, links.commits)
	}
	if l.Status != models.LinkStatusRelinkRequired {
		t.Fatalf("relink flag raised during sync was cleared: status=%q", l.Status)
	}
	if _, ok := staged.rows["t1"]; !ok {
		t.Fatalf("staged row missing")
	}
}

func TestSync_SuccessClearsEarlierRelinkFlag(t *testing.T) {
	links := newFakeLinkStore()
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	links.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	links.seedLinked("u1", "item-1", "access-1", "c0")
	if err := links.FlagRelink(context.Background(), "u1"); err != nil {
		t.Fatalf("FlagRelink: %v", err)
	}
	svc := newTestSync(links, newFakeStagingStore(), &fakeProvider{})

	if _, err := svc.Sync(helpers.TestCtx(), "u1"); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if l := links.get("u1"); l.Status != models.LinkStatusLinked {
		t.Fatalf("status = %q, want linked", l.Status)
	}
}

func TestSync_ExpiredLeaseIsTakenOver(t *testing.T) {
	links := newFakeLinkStore()
	links.seedLinked("u1", "item-1", "access-1", "c0")
	past := time.Now().Add(-time.Hour)
	links.links["u1"].Lease = &models.SyncLease{Holder: "crashed", Purpose: models.LeasePurposeSync, AcquiredAt: past, ExpiresAt: past.Add(time.Minute)}
	svc := newTestSync(links, newFakeStagingStore(), &fakeProvider{})

	if _, err := svc.Sync(helpers.TestCtx(), "u1"); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
}

func TestSyncForUser_Forbidden(t *testing.T) {
	links := newFakeLinkStore()
	links.seedLinked("u1", "item-1", "access-1", "c0")
	provider := &fakeProvider{}
	svc := newTestSync(links, newFakeStagingStore(), provider)

	_, err := svc.SyncForUser(helpers.TestCtx(), "u1", "u2")
	var fe *errs.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError, got %T: %v", err, err)
	}
	if provider.calls != 0 {
		t.Fatalf("provider called on forbidden sync")
	}

	if _, err := svc.SyncForUser(helpers.TestCtx(), "u1", ""); err != nil {
		t.Fatalf("sync with empty target failed: %v", err)
	}
}
