package dto

import "time"

type AssistantQueryRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type AssistantQueryResponse struct {
	Answer         string  `json:"answer"`
	CreatedEntryID *string `json:"createdEntryId,omitempty"`
	QuotaRemaining int     `json:"quotaRemaining"`
}

type QuotaResponse struct {
	ChatQuota int `json:"chatQuota"`
}

// AssistantMessage is one persisted turn of a session, expired by a
// Firestore TTL policy on expiresAt.
type AssistantMessage struct {
	Role      string    `firestore:"role" json:"role"`
	Content   string    `firestore:"content" json:"content"`
	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
	ExpiresAt time.Time `firestore:"expiresAt,omitempty" json:"expiresAt,omitempty"`
}

type CreateUserRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}
