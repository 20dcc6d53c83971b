package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/internal/models"
)

const maxDescriptionRunes = 140

const classifierSystemPrompt = `You assign budget categories to bank transactions.
Pick each transaction's category only from "vocabulary", spelled exactly as given.
"hint" is the bank's own label. Treat it as a weak signal; it is not a category.
If nothing in the vocabulary fits, use null for both category and confidence.
confidence is your probability (0 to 1) that the category is right.
Return every transaction id exactly once and nothing else.`

// vocabulary is the user's category names, keyed for lenient lookup.
type vocabulary struct {
	names []string
	byKey map[string]string
}

func newVocabulary(categories []models.BudgetCategory) vocabulary {
	v := vocabulary{byKey: make(map[string]string, len(categories))}
	for _, c := range categories {
		name := strings.TrimSpace(c.Name)
		key := models.CategoryKey(name)
		if key == "" {
			continue
		}
		if _, dup := v.byKey[key]; dup {
			continue
		}
		v.byKey[key] = name
		v.names = append(v.names, name)
	}
	return v
}

func (v vocabulary) empty() bool { return len(v.names) == 0 }

// canonical maps a model answer to the stored spelling.
func (v vocabulary) canonical(name string) (string, bool) {
	c, ok := v.byKey[models.CategoryKey(name)]
	return c, ok
}

func classifierItems(txs []models.StagedTransaction) []dto.ClassifierItem {
	items := make([]dto.ClassifierItem, 0, len(txs))
	for _, t := range txs {
		items = append(items, dto.ClassifierItem{
			ID:          t.TransactionID,
			Description: truncateRunes(strings.TrimSpace(t.Description), maxDescriptionRunes),
			Amount:      t.Amount,
			Hint:        t.OriginalCategory,
		})
	}
	return items
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func classifierRequest(v vocabulary, items []dto.ClassifierItem) (dto.GenerateRequest, error) {
	payload, err := json.Marshal(dto.ClassifierRequest{Vocabulary: v.names, Transactions: items})
	if err != nil {
		return dto.GenerateRequest{}, err
	}
	temperature := float32(0)
	return dto.GenerateRequest{
		System:           classifierSystemPrompt,
		UserMessage:      string(payload),
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   classifierSchema(v),
	}, nil
}

func classifierSchema(v vocabulary) *dto.Schema {
	return &dto.Schema{
		Type:     "object",
		Required: []string{"transactions"},
		Properties: map[string]*dto.Schema{
			"transactions": {
				Type: "array",
				Items: &dto.Schema{
					Type:     "object",
					Required: []string{"id", "category", "confidence"},
					Properties: map[string]*dto.Schema{
						"id":         {Type: "string"},
						"category":   {Type: "string", Enum: v.names, Nullable: true},
						"confidence": {Type: "number", Nullable: true},
					},
				},
			},
		},
	}
}

// decodeClassification accepts only a response that answers every item
// exactly once with a vocabulary category (or null) and a confidence in
// [0,1] (or null). Anything else is MalformedClassifierOutputError.
func decodeClassification(raw string, items []dto.ClassifierItem, v vocabulary) ([]dto.SuggestionUpdate, error) {
	dec := json.NewDecoder(strings.NewReader(cleanModelJSON(raw)))
	dec.DisallowUnknownFields()

	var resp dto.ClassifierResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, errs.NewMalformedClassifierOutputError("decode: " + err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errs.NewMalformedClassifierOutputError("trailing data after response object")
	}

	want := make(map[string]struct{}, len(items))
	for _, it := range items {
		want[it.ID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(resp.Transactions))
	out := make([]dto.SuggestionUpdate, 0, len(resp.Transactions))
	for _, c := range resp.Transactions {
		if _, ok := want[c.ID]; !ok {
			return nil, errs.NewMalformedClassifierOutputError(fmt.Sprintf("unexpected id %q", c.ID))
		}
		if _, dup := seen[c.ID]; dup {
			return nil, errs.NewMalformedClassifierOutputError(fmt.Sprintf("duplicate id %q", c.ID))
		}
		seen[c.ID] = struct{}{}

		update := dto.SuggestionUpdate{TransactionID: c.ID}
		if c.Category != nil {
			name, ok := v.canonical(*c.Category)
			if !ok {
				return nil, errs.NewMalformedClassifierOutputError(fmt.Sprintf("category %q not in vocabulary", *c.Category))
			}
			update.Category = &name
		}
		if c.Confidence != nil {
			conf := *c.Confidence
			if conf < 0 || conf > 1 {
				return nil, errs.NewMalformedClassifierOutputError(fmt.Sprintf("confidence %v out of range for %q", conf, c.ID))
			}
			// a confidence without a category carries no meaning
			if update.Category != nil {
				update.Confidence = &conf
			}
		}
		out = append(out, update)
	}

	if len(seen) != len(want) {
		return nil, errs.NewMalformedClassifierOutputError(fmt.Sprintf("answered %d of %d transactions", len(seen), len(want)))
	}
	return out, nil
}

// cleanModelJSON strips markdown code fences some models wrap JSON in.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
		s = strings.TrimSuffix(s, "```")
	}

	return strings.TrimSpace(s)
}
