package models

import (
	"time"
)

// StagedTransaction is a provider transaction awaiting user confirmation
// (doc ID = provider transaction_id).
type StagedTransaction struct {
	TransactionID       string    `firestore:"transactionId" json:"transactionId"`
	UID                 string    `firestore:"uid" json:"uid"`
	Amount              float64   `firestore:"amount" json:"amount"`
	Date                string    `firestore:"date" json:"date"` // YYYY-MM-DD as Plaid returns
	Description         string    `firestore:"description" json:"description"`
	OriginalCategory    string    `firestore:"originalCategory" json:"originalCategory,omitempty"`
	SuggestedCategory   *string   `firestore:"suggestedCategory" json:"suggestedCategory"`
	SuggestedConfidence *float64  `firestore:"suggestedConfidence" json:"suggestedConfidence"`
	UpdatedAt           time.Time `firestore:"updatedAt" json:"updatedAt"` // last provider write
}

// NeedsSuggestion is true when the row has no suggestion we would trust.
func (t *StagedTransaction) NeedsSuggestion(minConfidence float64) bool {
	if t.SuggestedCategory == nil || t.SuggestedConfidence == nil {
		return true
	}
	return *t.SuggestedConfidence < minConfidence
}
