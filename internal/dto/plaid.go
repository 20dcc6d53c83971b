package dto

import "time"

type PlaidEnvironment string

const (
	PlaidSandbox     PlaidEnvironment = "sandbox"
	PlaidDevelopment PlaidEnvironment = "development"
	PlaidProduction  PlaidEnvironment = "production"
)

// ProviderTransaction is a transaction as the aggregation provider reports it,
// already normalized to the fields the staging store keeps.
type ProviderTransaction struct {
	TransactionID string
	Amount        float64
	Date          string
	Description   string
	CategoryHint  string
}

// PlaidSyncPage is one page from /transactions/sync.
type PlaidSyncPage struct {
	Added    []ProviderTransaction
	Modified []ProviderTransaction
	Removed  []string
	Cursor   string
	HasMore  bool
}

// SyncResult summarizes one committed sync.
type SyncResult struct {
	Added    int    `json:"added"`
	Modified int    `json:"modified"`
	Removed  int    `json:"removed"`
	Cursor   string `json:"-"`
	// Staged lists the transaction IDs written to staging by this pull.
	Staged []string `json:"-"`
}

type LinkTokenResponse struct {
	LinkToken string `json:"linkToken"`
}

type LinkRequest struct {
	PublicToken string `json:"publicToken"`
	Institution string `json:"institution"`
}

type LinkStatusResponse struct {
	Linked       bool       `json:"linked"`
	Status       string     `json:"status"`
	Institution  string     `json:"institution,omitempty"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
}

type SyncRequest struct {
	UserID string `json:"userId,omitempty"`
}

// PlaidWebhook is the subset of Plaid webhook bodies we act on.
type PlaidWebhook struct {
	WebhookType string             `json:"webhook_type"`
	WebhookCode string             `json:"webhook_code"`
	ItemID      string             `json:"item_id"`
	Error       *PlaidWebhookError `json:"error,omitempty"`
}

type PlaidWebhookError struct {
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}
