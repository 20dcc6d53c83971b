package dto

type PaybackRequest struct {
	Amount       *float64 `json:"amount"`
	Person       string   `json:"person"`
	Note         string   `json:"note"`
	ReminderDate string   `json:"reminderDate"`
}
