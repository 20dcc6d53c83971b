package models

import (
	"time"
)

// Payback is money someone owes the user, removed once it is repaid.
type Payback struct {
	PaybackID    string    `firestore:"paybackId" json:"paybackId"`
	UID          string    `firestore:"uid" json:"uid"`
	Amount       float64   `firestore:"amount" json:"amount"`
	Person       string    `firestore:"person" json:"person"`
	Note         string    `firestore:"note,omitempty" json:"note,omitempty"`
	ReminderDate string    `firestore:"reminderDate,omitempty" json:"reminderDate,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt" json:"updatedAt"`
}
