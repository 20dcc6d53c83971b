package models

import (
	"time"
)

const (
	EntrySourceManual    = "manual"
	EntrySourcePromoted  = "promoted"
	EntrySourceAssistant = "assistant"
)

type LedgerEntry struct {
	EntryID       string    `firestore:"entryId" json:"entryId"`
	UID           string    `firestore:"uid" json:"uid"`
	Amount        float64   `firestore:"amount" json:"amount"`
	Category      string    `firestore:"category" json:"category"`
	Description   string    `firestore:"description" json:"description,omitempty"`
	Date          string    `firestore:"date" json:"date"`
	Source        string    `firestore:"source" json:"source"`
	TransactionID string    `firestore:"transactionId,omitempty" json:"transactionId,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt" json:"updatedAt"`
}
