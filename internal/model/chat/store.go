package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNoMessages           = errors.New("no messages to record")
)

// Store persists conversations and their messages.
type Store interface {
	// RecordExchange appends messages, in order, to conversationID. An empty or unknown
	// conversationID starts a new conversation whose identifier is assigned by the store.
	// The resolved conversation identifier is returned.
	RecordExchange(ctx context.Context, conversationID string, messages ...Message) (string, error)
	// ListMessages returns every message of the conversation ordered by creation time.
	// Unknown conversations yield an empty slice.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	// RecentMessages returns at most limit of the newest messages, oldest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	GetConversation(ctx context.Context, conversationID string) (Conversation, error)
	Ping(ctx context.Context) error
}

// ValidateMessages checks roles and content before anything is written.
func ValidateMessages(messages []Message) error {
	if len(messages) == 0 {
		return ErrNoMessages
	}
	for i, m := range messages {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: invalid role %q", i, m.Role)
		}
	}
	return nil
}

// MemoryStore implements Store in process memory. Tests use it in place of Postgres.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]Conversation
	messages      map[string][]Message
	now           func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]Conversation),
		messages:      make(map[string][]Message),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) RecordExchange(_ context.Context, conversationID string, messages ...Message) (string, error) {
	if err := ValidateMessages(messages); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = Conversation{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	}

	for _, m := range messages {
		m.ID = uuid.NewString()
		m.ConversationID = conv.ID
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		s.messages[conv.ID] = append(s.messages[conv.ID], m)
		if now.After(conv.UpdatedAt) {
			conv.UpdatedAt = now
		}
	}

	s.conversations[conv.ID] = conv
	return conv.ID, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.ordered(conversationID), nil
}

func (s *MemoryStore) RecentMessages(_ context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.ordered(conversationID)
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, conversationID string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// ordered copies the conversation's messages sorted by creation time; callers hold mu.
func (s *MemoryStore) ordered(conversationID string) []Message {
	messages := s.messages[conversationID]
	copied := make([]Message, len(messages))
	copy(copied, messages)
	sort.SliceStable(copied, func(i, j int) bool {
		return copied[i].CreatedAt.Before(copied[j].CreatedAt)
	})
	return copied
}
