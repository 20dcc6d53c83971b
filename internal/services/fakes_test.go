package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/internal/models"
)

// --- Link store ---

// fakeLinkStore keeps one link per user and applies the same lease and
// version rules as the Firestore store. Credentials are stored in clear.
type fakeLinkStore struct {
	mu       sync.Mutex
	links    map[string]*models.AccountLink
	now      func() time.Time
	commits  int
	flagged  []string
	released []string

	commitErr   error
	sealErr     error
	completeErr error
}

func newFakeLinkStore() *fakeLinkStore {
	return &fakeLinkStore{links: map[string]*models.AccountLink{}, now: time.Now}
}

func (f *fakeLinkStore) seedLinked(uid, itemID, credential, cursor string) {
	f.links[uid] = &models.AccountLink{
		UID:              uid,
		Linked:           true,
		Status:           models.LinkStatusLinked,
		ItemID:           itemID,
		AccessCredential: credential,
		SyncCursor:       cursor,
		Version:          1,
	}
}

func (f *fakeLinkStore) get(uid string) models.AccountLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.links[uid]; ok {
		return *l
	}
	return models.AccountLink{UID: uid, Status: models.LinkStatusUnlinked}
}

func (f *fakeLinkStore) mutate(uid string, fn func(l *models.AccountLink, now time.Time) error) (*models.AccountLink, error) {
	return f.transact(uid, true, fn)
}

func (f *fakeLinkStore) transact(uid string, bumpVersion bool, fn func(l *models.AccountLink, now time.Time) error) (*models.AccountLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.links[uid]
	l := models.AccountLink{UID: uid, Status: models.LinkStatusUnlinked}
	if ok {
		l = *cur
		if cur.Lease != nil {
			lease := *cur.Lease
			l.Lease = &lease
		}
	}
	now := f.now()
	if err := fn(&l, now); err != nil {
		return nil, err
	}
	if bumpVersion {
		l.Version++
	}
	l.UpdatedAt = now
	f.links[uid] = &l
	out := l
	return &out, nil
}

func (f *fakeLinkStore) Get(_ context.Context, uid string) (*models.AccountLink, error) {
	l := f.get(uid)
	return &l, nil
}

func (f *fakeLinkStore) Credential(_ context.Context, link *models.AccountLink) (string, error) {
	return link.AccessCredential, nil
}

func (f *fakeLinkStore) FindByItemID(_ context.Context, itemID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for uid, l := range f.links {
		if l.Linked && l.ItemID == itemID {
			return uid, nil
		}
	}
	return "", errs.NewNotFoundError("no link for item")
}

func (f *fakeLinkStore) AcquireLease(_ context.Context, uid, holder, purpose string, ttl time.Duration) (*models.AccountLink, error) {
	return f.mutate(uid, func(l *models.AccountLink, now time.Time) error {
		if l.Lease.Active(now) && l.Lease.Holder != holder {
			return errs.NewSyncInProgressError(l.Lease.Purpose)
		}
		l.Lease = &models.SyncLease{Holder: holder, Purpose: purpose, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
		return nil
	})
}

func (f *fakeLinkStore) ReleaseLease(_ context.Context, uid, holder string) error {
	f.mu.Lock()
	f.released = append(f.released, holder)
	f.mu.Unlock()
	_, err := f.mutate(uid, func(l *models.AccountLink, _ time.Time) error {
		if l.Lease == nil || l.Lease.Holder != holder {
			return errNotHeld
		}
		l.Lease = nil
		return nil
	})
	if err == errNotHeld {
		return nil
	}
	return err
}

func (f *fakeLinkStore) CommitCursor(_ context.Context, uid, holder string, version int64, cursor string) (*models.AccountLink, error) {
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	return f.mutate(uid, func(l *models.AccountLink, now time.Time) error {
		if err := fakeOwnership(l, holder, version, now); err != nil {
			return err
		}
		f.commits++
		l.SyncCursor = cursor
		l.LastSyncedAt = now
		if l.Linked && !l.FlaggedDuringLease() {
			l.Status = models.LinkStatusLinked
		}
		return nil
	})
}

// SealCredential leaves the credential in clear.
func (f *fakeLinkStore) SealCredential(_ context.Context, credential string) (string, error) {
	if f.sealErr != nil {
		return "", f.sealErr
	}
	return credential, nil
}

func (f *fakeLinkStore) CompleteLink(_ context.Context, uid, holder string, version int64, itemID, credential, cursor, institution string) (*models.AccountLink, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return f.mutate(uid, func(l *models.AccountLink, now time.Time) error {
		if l.Linked {
			return errs.NewAlreadyLinkedError()
		}
		if err := fakeOwnership(l, holder, version, now); err != nil {
			return err
		}
		l.Linked = true
		l.Status = models.LinkStatusLinked
		l.ItemID = itemID
		l.AccessCredential = credential
		l.SyncCursor = cursor
		l.Institution = institution
		l.LastSyncedAt = now
		return nil
	})
}

func (f *fakeLinkStore) Unlink(_ context.Context, uid, holder string, version int64) error {
	_, err := f.mutate(uid, func(l *models.AccountLink, now time.Time) error {
		if err := fakeOwnership(l, holder, version, now); err != nil {
			return err
		}
		*l = models.AccountLink{UID: uid, Status: models.LinkStatusUnlinked, Version: l.Version}
		return nil
	})
	return err
}

func (f *fakeLinkStore) FlagRelink(_ context.Context, uid string) error {
	f.mu.Lock()
	f.flagged = append(f.flagged, uid)
	f.mu.Unlock()
	_, err := f.transact(uid, false, func(l *models.AccountLink, now time.Time) error {
		if !l.Linked {
			return errNotHeld
		}
		l.Status = models.LinkStatusRelinkRequired
		l.FlaggedAt = now
		return nil
	})
	if err == errNotHeld {
		return nil
	}
	return err
}

var errNotHeld = errs.NewValidationError("not held")

func fakeOwnership(l *models.AccountLink, holder string, version int64, now time.Time) error {
	if !l.Lease.HeldBy(holder, now) || l.Version != version {
		purpose := ""
		if l.Lease != nil {
			purpose = l.Lease.Purpose
		}
		return errs.NewSyncInProgressError(purpose)
	}
	return nil
}

// --- Staging store ---

type fakeStagingStore struct {
	mu         sync.Mutex
	rows       map[string]models.StagedTransaction
	applyErr   error
	applyCalls int
	// failSuggest lists transaction IDs whose suggestion write fails.
	failSuggest map[string]bool
}

func newFakeStagingStore() *fakeStagingStore {
	return &fakeStagingStore{rows: map[string]models.StagedTransaction{}}
}

func (f *fakeStagingStore) ApplyBatch(_ context.Context, uid string, upserts []dto.ProviderTransaction, removed []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls++
	if f.applyErr != nil {
		return f.applyErr
	}
	gone := map[string]bool{}
	for _, id := range removed {
		gone[id] = true
	}
	for _, t := range upserts {
		if gone[t.TransactionID] {
			continue
		}
		row := f.rows[t.TransactionID]
		row.TransactionID = t.TransactionID
		row.UID = uid
		row.Amount = t.Amount
		row.Date = t.Date
		row.Description = t.Description
		row.OriginalCategory = t.CategoryHint
		f.rows[t.TransactionID] = row
	}
	for id := range gone {
		delete(f.rows, id)
	}
	return nil
}

func (f *fakeStagingStore) List(_ context.Context, _ string) ([]models.StagedTransaction, error) {
	out := make([]models.StagedTransaction, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].TransactionID < out[j].TransactionID
	})
	return out, nil
}

func (f *fakeStagingStore) ListNeedingSuggestion(ctx context.Context, uid string, minConfidence float64, limit int) ([]models.StagedTransaction, error) {
	all, _ := f.List(ctx, uid)
	var out []models.StagedTransaction
	for _, r := range all {
		if len(out) == limit {
			break
		}
		if r.NeedsSuggestion(minConfidence) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStagingStore) Delete(_ context.Context, _, transactionID string) error {
	if _, ok := f.rows[transactionID]; !ok {
		return errs.NewNotFoundError("staged transaction not found")
	}
	delete(f.rows, transactionID)
	return nil
}

func (f *fakeStagingStore) ApplySuggestions(_ context.Context, _ string, updates []dto.SuggestionUpdate) ([]string, error) {
	var failed []string
	for _, u := range updates {
		row, ok := f.rows[u.TransactionID]
		if !ok || f.failSuggest[u.TransactionID] {
			failed = append(failed, u.TransactionID)
			continue
		}
		row.SuggestedCategory = u.Category
		row.SuggestedConfidence = u.Confidence
		f.rows[u.TransactionID] = row
	}
	return failed, nil
}

func (f *fakeStagingStore) RelabelSuggestions(_ context.Context, _, oldName string, newName *string) (int, error) {
	n := 0
	for id, row := range f.rows {
		if row.SuggestedCategory == nil || *row.SuggestedCategory != oldName {
			continue
		}
		if newName == nil {
			row.SuggestedCategory = nil
			row.SuggestedConfidence = nil
		} else {
			name := *newName
			row.SuggestedCategory = &name
		}
		f.rows[id] = row
		n++
	}
	return n, nil
}

// --- Provider ---

type fakeProvider struct {
	pages    map[string]dto.PlaidSyncPage // keyed by request cursor
	errs     []error                      // returned in order before pages
	calls    int
	cursors  []string
	removed  []string
	linkToks []string

	// onSync runs at the start of every SyncChanges call.
	onSync func()

	exchangeItem  string
	exchangeToken string
	exchangeErr   error
}

func (f *fakeProvider) SyncChanges(_ context.Context, _ string, cursor string) (dto.PlaidSyncPage, error) {
	f.calls++
	f.cursors = append(f.cursors, cursor)
	if f.onSync != nil {
		f.onSync()
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return dto.PlaidSyncPage{}, err
		}
	}
	page, ok := f.pages[cursor]
	if !ok {
		return dto.PlaidSyncPage{Cursor: cursor}, nil
	}
	return page, nil
}

func (f *fakeProvider) CreateLinkToken(_ context.Context, _ string, accessToken string) (string, error) {
	f.linkToks = append(f.linkToks, accessToken)
	return "link-token", nil
}

func (f *fakeProvider) ExchangePublicToken(_ context.Context, _ string) (string, string, error) {
	return f.exchangeItem, f.exchangeToken, f.exchangeErr
}

func (f *fakeProvider) RemoveItem(_ context.Context, accessToken string) error {
	f.removed = append(f.removed, accessToken)
	return nil
}

// --- Ledger store ---

type fakeLedgerStore struct {
	entries    map[string]models.LedgerEntry
	staged     *fakeStagingStore
	createErr  error
	relabelErr error
	// stuck lists entry IDs that fail to relabel on every attempt.
	stuck        map[string]bool
	relabelCalls int
	lastQuery    dto.LedgerQuery
}

func newFakeLedgerStore(staged *fakeStagingStore) *fakeLedgerStore {
	return &fakeLedgerStore{entries: map[string]models.LedgerEntry{}, staged: staged}
}

func (f *fakeLedgerStore) add(e models.LedgerEntry) {
	f.entries[e.EntryID] = e
}

func (f *fakeLedgerStore) Create(_ context.Context, _ string, e *models.LedgerEntry) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.entries[e.EntryID]; ok {
		return errs.NewAlreadyExistsError("ledger entry already exists")
	}
	f.entries[e.EntryID] = *e
	return nil
}

func (f *fakeLedgerStore) List(_ context.Context, _ string, q dto.LedgerQuery) ([]models.LedgerEntry, error) {
	f.lastQuery = q
	var out []models.LedgerEntry
	for _, e := range f.entries {
		if q.From != "" && e.Date < q.From {
			continue
		}
		if q.To != "" && e.Date > q.To {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].EntryID < out[j].EntryID
	})
	return out, nil
}

func (f *fakeLedgerStore) ListByCategory(_ context.Context, _, category string) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	for _, e := range f.entries {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeLedgerStore) Delete(_ context.Context, _, entryID string) error {
	if _, ok := f.entries[entryID]; !ok {
		return errs.NewNotFoundError("ledger entry not found")
	}
	delete(f.entries, entryID)
	return nil
}

func (f *fakeLedgerStore) IDsByCategory(_ context.Context, _, category string) ([]string, error) {
	var ids []string
	for id, e := range f.entries {
		if e.Category == category {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeLedgerStore) Relabel(_ context.Context, _ string, entryIDs []string, category string) ([]string, error) {
	f.relabelCalls++
	if f.relabelErr != nil {
		return entryIDs, f.relabelErr
	}
	var failed []string
	for _, id := range entryIDs {
		if f.stuck[id] {
			failed = append(failed, id)
			continue
		}
		e, ok := f.entries[id]
		if !ok {
			continue
		}
		e.Category = category
		f.entries[id] = e
	}
	return failed, nil
}

func (f *fakeLedgerStore) Promote(_ context.Context, uid, transactionID string, build func(staged *models.StagedTransaction) *models.LedgerEntry) (*models.LedgerEntry, error) {
	row, ok := f.staged.rows[transactionID]
	if !ok {
		if e, exists := f.entries[transactionID]; exists {
			return &e, nil
		}
		return nil, errs.NewNotFoundError("staged transaction not found")
	}
	e := build(&row)
	e.EntryID = transactionID
	e.UID = uid
	e.TransactionID = transactionID
	f.entries[transactionID] = *e
	delete(f.staged.rows, transactionID)
	return e, nil
}

// --- Category store ---

type fakeCategoryStore struct {
	cats    map[string]models.BudgetCategory
	listErr error
}

func newFakeCategoryStore(cats ...models.BudgetCategory) *fakeCategoryStore {
	f := &fakeCategoryStore{cats: map[string]models.BudgetCategory{}}
	for _, c := range cats {
		c.NameKey = models.CategoryKey(c.Name)
		f.cats[c.CategoryID] = c
	}
	return f
}

func (f *fakeCategoryStore) List(_ context.Context, _ string) ([]models.BudgetCategory, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.BudgetCategory, 0, len(f.cats))
	for _, c := range f.cats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeCategoryStore) Get(_ context.Context, _, categoryID string) (*models.BudgetCategory, error) {
	c, ok := f.cats[categoryID]
	if !ok {
		return nil, errs.NewNotFoundError("category not found")
	}
	return &c, nil
}

func (f *fakeCategoryStore) checkUnique(c *models.BudgetCategory) error {
	key := models.CategoryKey(c.Name)
	for id, other := range f.cats {
		if id != c.CategoryID && other.NameKey == key {
			return errs.NewAlreadyExistsError("a category with this name already exists")
		}
	}
	c.NameKey = key
	return nil
}

func (f *fakeCategoryStore) Create(_ context.Context, _ string, c *models.BudgetCategory) error {
	if err := f.checkUnique(c); err != nil {
		return err
	}
	f.cats[c.CategoryID] = *c
	return nil
}

func (f *fakeCategoryStore) Update(_ context.Context, _ string, c *models.BudgetCategory) (*models.BudgetCategory, error) {
	prev, ok := f.cats[c.CategoryID]
	if !ok {
		return nil, errs.NewNotFoundError("category not found")
	}
	if err := f.checkUnique(c); err != nil {
		return nil, err
	}
	f.cats[c.CategoryID] = *c
	return &prev, nil
}

func (f *fakeCategoryStore) Delete(_ context.Context, _, categoryID string) error {
	if _, ok := f.cats[categoryID]; !ok {
		return errs.NewNotFoundError("category not found")
	}
	delete(f.cats, categoryID)
	return nil
}

// --- Model ---

type fakeGenerator struct {
	resp  dto.GenerateResponse
	err   error
	calls int
	last  dto.GenerateRequest
}

func (f *fakeGenerator) GenerateContent(_ context.Context, req dto.GenerateRequest) (dto.GenerateResponse, error) {
	f.calls++
	f.last = req
	return f.resp, f.err
}

func testCategory(id, name string, target float64, freq string) models.BudgetCategory {
	return models.BudgetCategory{CategoryID: id, Name: name, TargetAmount: target, Frequency: freq}
}

type fakePaybackStore struct {
	items     []models.Payback
	createErr error
}

func (f *fakePaybackStore) List(_ context.Context, _ string) ([]models.Payback, error) {
	out := make([]models.Payback, 0, len(f.items))
	for i := len(f.items) - 1; i >= 0; i-- {
		out = append(out, f.items[i])
	}
	return out, nil
}

func (f *fakePaybackStore) Create(_ context.Context, _ string, p *models.Payback) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.items = append(f.items, *p)
	return nil
}

func (f *fakePaybackStore) Delete(_ context.Context, _, paybackID string) error {
	for i, p := range f.items {
		if p.PaybackID == paybackID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return errs.NewNotFoundError("payback not found")
}
