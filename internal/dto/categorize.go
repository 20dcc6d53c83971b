package dto

// ClassifierItem is one transaction summary sent to the classifier.
type ClassifierItem struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Hint        string  `json:"hint,omitempty"`
}

// ClassifierRequest is serialized into the classifier prompt.
type ClassifierRequest struct {
	Vocabulary   []string         `json:"vocabulary"`
	Transactions []ClassifierItem `json:"transactions"`
}

// ClassifierResponse is the only shape accepted back from the classifier.
type ClassifierResponse struct {
	Transactions []Classification `json:"transactions"`
}

type Classification struct {
	ID         string   `json:"id"`
	Category   *string  `json:"category"`
	Confidence *float64 `json:"confidence"`
}

type CategorizeResult struct {
	Requested int `json:"requested"`
	Suggested int `json:"suggested"`
	Failed    int `json:"failed"`
}

// SuggestionUpdate is one row of a categorization write.
type SuggestionUpdate struct {
	TransactionID string
	Category      *string
	Confidence    *float64
}
