package dto

import "github.com/GregMSThompson/budget-backend/internal/models"

type LedgerEntryRequest struct {
	Amount      *float64 `json:"amount"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Date        string   `json:"date"`
}

type PromoteRequest struct {
	Category    string  `json:"category"`
	Description *string `json:"description,omitempty"`
}

type LedgerQuery struct {
	From string // inclusive, YYYY-MM-DD
	To   string // inclusive, YYYY-MM-DD
}

type CategoryRequest struct {
	Name           string  `json:"name"`
	TargetAmount   float64 `json:"targetAmount"`
	Frequency      string  `json:"frequency"`
	IsSubscription bool    `json:"isSubscription"`
}

type CategoryDetail struct {
	Category        models.BudgetCategory `json:"category"`
	WeeklySpending  float64               `json:"weeklySpending"`
	MonthlySpending float64               `json:"monthlySpending"`
	History         []SpendPoint          `json:"history"`
}

type SpendPoint struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}
