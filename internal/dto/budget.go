package dto

import "time"

type BudgetView string

const (
	BudgetViewWeek  BudgetView = "week"
	BudgetViewMonth BudgetView = "month"
)

type BudgetSummary struct {
	View          BudgetView            `json:"view"`
	PeriodStart   time.Time             `json:"periodStart"`
	PeriodEnd     time.Time             `json:"periodEnd"`
	TotalSpent    float64               `json:"totalSpent"`
	TotalBudget   float64               `json:"totalBudget"`
	Remaining     float64               `json:"remaining"`
	Uncategorized float64               `json:"uncategorized"`
	Categories    []CategorySummary     `json:"categories"`
	Subscriptions []SubscriptionSummary `json:"subscriptions"`
}

type CategorySummary struct {
	Name    string  `json:"name"`
	Target  float64 `json:"target"`
	Spent   float64 `json:"spent"`
	Percent float64 `json:"percent"`
}

type SubscriptionSummary struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}
