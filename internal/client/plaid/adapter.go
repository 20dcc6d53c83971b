package plaidclient

import (
	"context"
	"net/http"

	"github.com/plaid/plaid-go/v24/plaid"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
)

const (
	serviceName  = "plaid"
	syncPageSize = 500
)

type Adapter struct {
	client       *plaid.APIClient
	clientName   string
	webhookURL   string
	countryCodes []plaid.CountryCode
}

type Options struct {
	ClientID     string
	Secret       string
	Environment  dto.PlaidEnvironment
	WebhookURL   string
	CountryCodes []string
}

func NewAdapter(opts Options) *Adapter {
	cfg := plaid.NewConfiguration()
	cfg.AddDefaultHeader("PLAID-CLIENT-ID", opts.ClientID)
	cfg.AddDefaultHeader("PLAID-SECRET", opts.Secret)
	cfg.UseEnvironment(toPlaidEnv(opts.Environment))

	codes := make([]plaid.CountryCode, 0, len(opts.CountryCodes))
	for _, c := range opts.CountryCodes {
		codes = append(codes, plaid.CountryCode(c))
	}
	if len(codes) == 0 {
		codes = append(codes, plaid.COUNTRYCODE_US)
	}

	return &Adapter{
		client:       plaid.NewAPIClient(cfg),
		clientName:   "Budget App",
		webhookURL:   opts.WebhookURL,
		countryCodes: codes,
	}
}

// CreateLinkToken starts Plaid Link. A non-empty accessToken opens Link in
// update mode to repair an existing item.
func (a *Adapter) CreateLinkToken(ctx context.Context, uid, accessToken string) (string, error) {
	req := plaid.NewLinkTokenCreateRequest(
		a.clientName,
		"en",
		a.countryCodes,
		plaid.LinkTokenCreateRequestUser{ClientUserId: uid},
	)
	if accessToken != "" {
		req.SetAccessToken(accessToken)
	} else {
		req.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})
	}
	if a.webhookURL != "" {
		req.SetWebhook(a.webhookURL)
	}

	resp, httpResp, err := a.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*req).Execute()
	if err != nil {
		return "", mapError("create link token", httpResp, err)
	}
	return resp.GetLinkToken(), nil
}

func (a *Adapter) ExchangePublicToken(ctx context.Context, publicToken string) (itemID, accessToken string, err error) {
	req := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, httpResp, err := a.client.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*req).Execute()
	if err != nil {
		return "", "", mapError("exchange public token", httpResp, err)
	}
	return resp.GetItemId(), resp.GetAccessToken(), nil
}

// SyncChanges fetches one page of /transactions/sync. An empty cursor
// requests the full history.
func (a *Adapter) SyncChanges(ctx context.Context, accessToken, cursor string) (dto.PlaidSyncPage, error) {
	req := plaid.NewTransactionsSyncRequest(accessToken)
	if cursor != "" {
		req.SetCursor(cursor)
	}
	req.SetCount(syncPageSize)
	opts := plaid.NewTransactionsSyncRequestOptions()
	opts.SetIncludePersonalFinanceCategory(true)
	req.SetOptions(*opts)

	var page dto.PlaidSyncPage

	resp, httpResp, err := a.client.PlaidApi.TransactionsSync(ctx).TransactionsSyncRequest(*req).Execute()
	if err != nil {
		return page, mapError("sync transactions", httpResp, err)
	}

	page.Added = make([]dto.ProviderTransaction, 0, len(resp.GetAdded()))
	for _, t := range resp.GetAdded() {
		page.Added = append(page.Added, toProviderTransaction(t))
	}
	page.Modified = make([]dto.ProviderTransaction, 0, len(resp.GetModified()))
	for _, t := range resp.GetModified() {
		page.Modified = append(page.Modified, toProviderTransaction(t))
	}
	page.Removed = make([]string, 0, len(resp.GetRemoved()))
	for _, r := range resp.GetRemoved() {
		page.Removed = append(page.Removed, r.GetTransactionId())
	}
	page.Cursor = resp.GetNextCursor()
	page.HasMore = resp.GetHasMore()

	return page, nil
}

func (a *Adapter) RemoveItem(ctx context.Context, accessToken string) error {
	req := plaid.NewItemRemoveRequest(accessToken)
	_, httpResp, err := a.client.PlaidApi.ItemRemove(ctx).ItemRemoveRequest(*req).Execute()
	if err != nil {
		return mapError("remove item", httpResp, err)
	}
	return nil
}

func toProviderTransaction(t plaid.Transaction) dto.ProviderTransaction {
	description := t.GetMerchantName()
	if description == "" {
		description = t.GetName()
	}
	return dto.ProviderTransaction{
		TransactionID: t.GetTransactionId(),
		Amount:        t.GetAmount(),
		Date:          t.GetDate(),
		Description:   description,
		CategoryHint:  categoryHint(t),
	}
}

func categoryHint(t plaid.Transaction) string {
	pfc := t.GetPersonalFinanceCategory()
	if d := pfc.GetDetailed(); d != "" {
		return d
	}
	if p := pfc.GetPrimary(); p != "" {
		return p
	}
	if cats := t.GetCategory(); len(cats) > 0 {
		return cats[0]
	}
	return ""
}

func mapError(op string, httpResp *http.Response, err error) error {
	status := 0
	if httpResp != nil {
		status = httpResp.StatusCode
	}
	perr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		// no Plaid error body: transport failure or an unparseable response
		return errs.NewExternalServiceError(serviceName, op+" failed", status == 0 || status >= 500, err)
	}
	return classify(op, status, perr, err)
}

func classify(op string, status int, perr plaid.PlaidError, err error) error {
	switch perr.ErrorCode {
	case "ITEM_LOGIN_REQUIRED", "INVALID_ACCESS_TOKEN", "ITEM_NOT_FOUND", "ACCESS_NOT_GRANTED":
		return errs.NewInvalidCredentialError(perr.ErrorCode)
	case "TRANSACTIONS_SYNC_MUTATION_DURING_PAGINATION":
		return errs.ErrPaginationRestart
	}
	switch perr.ErrorType {
	case plaid.PLAIDERRORTYPE_API_ERROR, plaid.PLAIDERRORTYPE_RATE_LIMIT_EXCEEDED, plaid.PLAIDERRORTYPE_INSTITUTION_ERROR:
		return errs.NewExternalServiceError(serviceName, op+": "+perr.ErrorCode, true, err)
	}
	return errs.NewExternalServiceError(serviceName, op+": "+perr.ErrorCode, status >= 500, err)
}

func toPlaidEnv(env dto.PlaidEnvironment) plaid.Environment {
	switch env {
	case dto.PlaidSandbox:
		return plaid.Sandbox
	case dto.PlaidDevelopment:
		return plaid.Development
	default: // dto.PlaidProduction:
		return plaid.Production
	}
}
