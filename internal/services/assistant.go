package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
	"github.com/GregMSThompson/budget-backend/internal/models"
	"github.com/GregMSThompson/budget-backend/pkg/logger"
)

const (
	historyLimit     = 8
	recentEntryLimit = 50
	addTransactionFn = "add_transaction"
)

type assistantQuotaStore interface {
	ConsumeQuota(ctx context.Context, uid string) (int, error)
	GetUser(ctx context.Context, uid string) (*models.User, error)
}

type assistantLedgerStore interface {
	List(ctx context.Context, uid string, q dto.LedgerQuery) ([]models.LedgerEntry, error)
	Create(ctx context.Context, uid string, e *models.LedgerEntry) error
}

type assistantCategoryStore interface {
	List(ctx context.Context, uid string) ([]models.BudgetCategory, error)
}

type assistantMessageStore interface {
	SaveMessage(ctx context.Context, uid, sessionID string, msg dto.AssistantMessage) error
	ListMessages(ctx context.Context, uid, sessionID string, limit int) ([]dto.AssistantMessage, error)
}

type assistantService struct {
	model      generator
	quota      assistantQuotaStore
	ledger     assistantLedgerStore
	categories assistantCategoryStore
	messages   assistantMessageStore
	ttl        time.Duration
	newID      func() string
	clockNow   func() time.Time
}

func NewAssistantService(model generator, quota assistantQuotaStore, ledger assistantLedgerStore, categories assistantCategoryStore, messages assistantMessageStore, ttl time.Duration) *assistantService {
	return &assistantService{
		model:      model,
		quota:      quota,
		ledger:     ledger,
		categories: categories,
		messages:   messages,
		ttl:        ttl,
		newID:      uuid.NewString,
		clockNow:   time.Now,
	}
}

func (s *assistantService) Quota(ctx context.Context, uid string) (int, error) {
	user, err := s.quota.GetUser(ctx, uid)
	if err != nil {
		return 0, err
	}
	return user.ChatQuota, nil
}

// Query answers one assistant message. A quota unit is consumed before the
// model is called and is not refunded if the call fails.
func (s *assistantService) Query(ctx context.Context, uid string, req dto.AssistantQueryRequest) (dto.AssistantQueryResponse, error) {
	log, ctx := logger.With(ctx, "uid", uid, "session_id", req.SessionID)
	out := dto.AssistantQueryResponse{}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return out, errs.NewValidationError("message is required")
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return out, errs.NewValidationError("sessionId is required")
	}

	cats, err := s.categories.List(ctx, uid)
	if err != nil {
		return out, err
	}
	vocab := newVocabulary(cats)
	if vocab.empty() {
		return out, errs.NewValidationError("no budget categories found, create categories first")
	}

	remaining, err := s.quota.ConsumeQuota(ctx, uid)
	if err != nil {
		return out, err
	}
	out.QuotaRemaining = remaining

	recent, err := s.ledger.List(ctx, uid, dto.LedgerQuery{})
	if err != nil {
		return out, err
	}
	if len(recent) > recentEntryLimit {
		recent = recent[:recentEntryLimit]
	}
	history, err := s.messages.ListMessages(ctx, uid, sessionID, historyLimit)
	if err != nil {
		return out, err
	}

	resp, err := s.model.GenerateContent(ctx, dto.GenerateRequest{
		System:      assistantPrompt(s.clockNow(), vocab, recent),
		History:     toChatTurns(history),
		UserMessage: message,
		Tools:       []dto.Tool{addTransactionTool(vocab)},
	})
	if err != nil {
		return out, err
	}

	answer := resp.Text
	if len(resp.ToolCalls) > 0 {
		if len(resp.ToolCalls) > 1 {
			log.Warn("received multiple tool calls, only processing the first", "count", len(resp.ToolCalls))
		}
		entry, err := s.addTransaction(ctx, uid, resp.ToolCalls[0], vocab)
		if err != nil {
			return out, err
		}
		out.CreatedEntryID = &entry.EntryID
		answer = fmt.Sprintf("Logged $%.2f to %q.", entry.Amount, entry.Category)
		log.Info("assistant logged transaction", "entry_id", entry.EntryID, "category", entry.Category)
	}

	s.saveTurn(ctx, uid, sessionID, "user", message)
	if answer != "" {
		s.saveTurn(ctx, uid, sessionID, "assistant", answer)
	}

	out.Answer = answer
	log.Info("assistant query completed", "quota_remaining", remaining)
	return out, nil
}

type addTransactionArgs struct {
	Amount      *float64 `json:"amount"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Date        string   `json:"date"`
}

// addTransaction validates a model tool call before it touches the ledger.
func (s *assistantService) addTransaction(ctx context.Context, uid string, call dto.ToolCall, vocab vocabulary) (*models.LedgerEntry, error) {
	if call.Name != addTransactionFn {
		return nil, errs.NewValidationError(fmt.Sprintf("model requested unknown tool: %s", call.Name))
	}
	args, err := decodeArgs[addTransactionArgs](call.Args)
	if err != nil {
		return nil, errs.NewValidationError("invalid add_transaction arguments")
	}
	if args.Amount == nil {
		return nil, errs.NewValidationError("add_transaction requires an amount")
	}
	category, ok := vocab.canonical(args.Category)
	if !ok {
		return nil, errs.NewValidationError(fmt.Sprintf("category %q is not one of your budget categories", args.Category))
	}
	date := strings.TrimSpace(args.Date)
	if date == "" {
		date = s.clockNow().Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, errs.NewValidationError("date must be YYYY-MM-DD")
	}

	entry := &models.LedgerEntry{
		EntryID:     s.newID(),
		UID:         uid,
		Amount:      *args.Amount,
		Category:    category,
		Description: strings.TrimSpace(args.Description),
		Date:        date,
		Source:      models.EntrySourceAssistant,
	}
	if err := s.ledger.Create(ctx, uid, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// saveTurn persists history best effort; the answer is already committed.
func (s *assistantService) saveTurn(ctx context.Context, uid, sessionID, role, content string) {
	now := s.clockNow()
	msg := dto.AssistantMessage{Role: role, Content: content, CreatedAt: now}
	if s.ttl > 0 {
		msg.ExpiresAt = now.Add(s.ttl)
	}
	if err := s.messages.SaveMessage(ctx, uid, sessionID, msg); err != nil {
		logger.FromContext(ctx).Warn("failed to save assistant message", "role", role, "error", err)
	}
}

func toChatTurns(history []dto.AssistantMessage) []dto.ChatTurn {
	turns := make([]dto.ChatTurn, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		turns = append(turns, dto.ChatTurn{Role: role, Text: msg.Content})
	}
	return turns
}

func addTransactionTool(vocab vocabulary) dto.Tool {
	return dto.Tool{
		Name:        addTransactionFn,
		Description: "Record a new spending entry in the user's budget ledger.",
		Parameters: &dto.Schema{
			Type: "object",
			Properties: map[string]*dto.Schema{
				"amount":      {Type: "number", Description: "Amount spent in USD."},
				"category":    {Type: "string", Enum: vocab.names, Description: "One of the user's budget categories."},
				"description": {Type: "string", Description: "Optional note."},
				"date":        {Type: "string", Description: "YYYY-MM-DD. Defaults to today."},
			},
			Required: []string{"amount", "category"},
		},
	}
}

func assistantPrompt(now time.Time, vocab vocabulary, recent []models.LedgerEntry) string {
	var b strings.Builder
	b.WriteString("You are a personal budgeting assistant. ")
	b.WriteString("When the user reports a purchase, call add_transaction once. ")
	b.WriteString("Amounts and categories must come from the user or the data below; never invent them. ")
	fmt.Fprintf(&b, "Today is %s (%s).\n", now.Format(dateLayout), now.Weekday())
	fmt.Fprintf(&b, "Budget categories: %s.\n", strings.Join(vocab.names, ", "))
	b.WriteString("Recent transactions:\n")
	if len(recent) == 0 {
		b.WriteString("No transactions yet.\n")
	}
	for _, e := range recent {
		desc := e.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(&b, "%s: $%.2f - %s (%s)\n", e.Date, e.Amount, e.Category, desc)
	}
	return b.String()
}

func decodeArgs[T any](args map[string]any) (T, error) {
	var out T
	if len(args) == 0 {
		return out, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
