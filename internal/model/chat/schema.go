package chat

import (
	"errors"
	"strings"
	"time"
)

// ErrEmptyMessage is returned when a chat turn carries no text.
var ErrEmptyMessage = errors.New("message must not be empty")

// ChatRequest is the inbound payload of a chat turn.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Validate rejects empty and whitespace-only messages.
func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// ChatResponse is returned for every completed chat turn.
type ChatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	Model          string `json:"model"`
}

// MessageView is the client-facing projection of a stored message.
type MessageView struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
}

// NewMessageView renders m for the history endpoint.
func NewMessageView(m Message) MessageView {
	view := MessageView{Role: m.Role, Content: m.Content}
	if !m.CreatedAt.IsZero() {
		view.CreatedAt = m.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return view
}

// ConversationView is the client-facing projection of a conversation.
type ConversationView struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// NewConversationView renders c for the conversation endpoint.
func NewConversationView(c Conversation) ConversationView {
	return ConversationView{
		ID:        c.ID,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Health status values.
const (
	StatusHealthy     = "healthy"
	StatusDegraded    = "degraded"
	StatusUnhealthy   = "unhealthy"
	StatusUnavailable = "unavailable"
)

// HealthReport aggregates the state of the model backend and the store.
type HealthReport struct {
	Status        string `json:"status"`
	Model         string `json:"model"`
	BackendStatus string `json:"ollama"`
	StoreStatus   string `json:"database"`
}
