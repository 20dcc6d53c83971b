package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/errs"
)

type assistantStore struct {
	client *firestore.Client
}

func NewAssistantStore(client *firestore.Client) *assistantStore {
	return &assistantStore{client: client}
}

func (s *assistantStore) messagesCollection(uid, sessionID string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(uid).Collection("assistant_sessions").Doc(sessionID).Collection("messages")
}

func (s *assistantStore) SaveMessage(ctx context.Context, uid, sessionID string, msg dto.AssistantMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	_, _, err := s.messagesCollection(uid, sessionID).Add(ctx, msg)
	if err != nil {
		return errs.NewDatabaseError("create", "failed to save assistant message", err)
	}
	return nil
}

// ListMessages returns the latest limit messages in chronological order.
func (s *assistantStore) ListMessages(ctx context.Context, uid, sessionID string, limit int) ([]dto.AssistantMessage, error) {
	query := s.messagesCollection(uid, sessionID).Query.OrderBy("createdAt", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []dto.AssistantMessage
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errs.NewDatabaseError("read", "failed to list assistant messages", err)
		}
		var msg dto.AssistantMessage
		if err := doc.DataTo(&msg); err != nil {
			return nil, errs.NewDatabaseError("read", "failed to parse assistant message", err)
		}
		out = append(out, msg)
	}

	reverseMessages(out)
	return out, nil
}

func reverseMessages(msgs []dto.AssistantMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
