package models

import (
	"strings"
	"time"
)

const (
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// BudgetCategory names are unique per user. Ledger entries reference them by
// name, not by ID.
type BudgetCategory struct {
	CategoryID     string    `firestore:"categoryId" json:"categoryId"`
	UID            string    `firestore:"uid" json:"uid"`
	Name           string    `firestore:"name" json:"name"`
	NameKey        string    `firestore:"nameKey" json:"-"` // trimmed, lower-cased; unique per user
	TargetAmount   float64   `firestore:"targetAmount" json:"targetAmount"`
	Frequency      string    `firestore:"frequency" json:"frequency"`
	IsSubscription bool      `firestore:"isSubscription" json:"isSubscription"`
	CreatedAt      time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// CategoryKey normalizes a name for uniqueness checks and vocabulary matching.
func CategoryKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func ValidFrequency(f string) bool {
	return f == FrequencyWeekly || f == FrequencyMonthly
}
