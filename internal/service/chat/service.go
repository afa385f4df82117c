package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/zhouzirui/ai-chat/backend/internal/model/chat"
)

// ErrStoreUnavailable is returned by reads when persistence is disabled.
var ErrStoreUnavailable = errors.New("database not available")

// Backend generates completions and reports its reachability.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Ping(ctx context.Context) error
	Model() string
}

// PromptBuilder turns history and the new message into a completion prompt.
type PromptBuilder interface {
	Build(ctx context.Context, history []chat.Message, userMessage string) (string, error)
}

// Service orchestrates chat turns. It holds no per-conversation state.
type Service struct {
	backend      Backend
	store        chat.Store
	prompts      PromptBuilder
	historyLimit int
	now          func() time.Time
}

// NewService wires the orchestrator. store may be nil, in which case turns are not persisted.
func NewService(backend Backend, store chat.Store, prompts PromptBuilder, historyLimit int) *Service {
	return &Service{
		backend:      backend,
		store:        store,
		prompts:      prompts,
		historyLimit: historyLimit,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Turn is the result of a chat turn. Persisted is false when the exchange could not be recorded.
type Turn struct {
	chat.ChatResponse
	Persisted bool
}

// Chat runs one turn: validate, call the model once, record both messages, reply.
// Model failures abort the turn before anything is written; store failures do not.
func (s *Service) Chat(ctx context.Context, req chat.ChatRequest) (Turn, error) {
	if err := req.Validate(); err != nil {
		chatTurnsMetric.WithLabelValues(outcomeRejected).Inc()
		return Turn{}, err
	}

	receivedAt := s.timestamp()
	history := s.loadHistory(ctx, req.ConversationID)

	prompt, err := s.prompts.Build(ctx, history, req.Message)
	if err != nil {
		chatTurnsMetric.WithLabelValues(outcomeError).Inc()
		return Turn{}, err
	}

	started := time.Now()
	reply, err := s.backend.Generate(ctx, prompt)
	modelLatencyMetric.Observe(time.Since(started).Seconds())
	if err != nil {
		chatTurnsMetric.WithLabelValues(outcomeBackendError).Inc()
		log.WithError(err).WithField("conversationID", req.ConversationID).Error("model backend call failed")
		return Turn{}, fmt.Errorf("failed to generate reply: %w", err)
	}

	answeredAt := s.timestamp()
	if answeredAt.Before(receivedAt) {
		answeredAt = receivedAt
	}

	turn := Turn{ChatResponse: chat.ChatResponse{
		Response: reply,
		Model:    s.backend.Model(),
	}}

	conversationID, err := s.record(ctx, req.ConversationID,
		chat.Message{Role: chat.RoleUser, Content: req.Message, CreatedAt: receivedAt},
		chat.Message{Role: chat.RoleAssistant, Content: reply, CreatedAt: answeredAt},
	)
	if err != nil {
		conversationID = req.ConversationID
		if conversationID == "" {
			conversationID = uuid.NewString()
		}
		log.WithError(err).WithField("conversationID", conversationID).Warn("chat turn not persisted")
		chatTurnsMetric.WithLabelValues(outcomeUnpersisted).Inc()
	} else {
		turn.Persisted = true
		chatTurnsMetric.WithLabelValues(outcomePersisted).Inc()
	}

	turn.ConversationID = conversationID
	return turn, nil
}

// Messages returns the conversation history oldest first; unknown conversations yield none.
func (s *Service) Messages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if s.store == nil {
		return nil, ErrStoreUnavailable
	}
	if conversationID == "" {
		return []chat.Message{}, nil
	}

	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation history: %w", err)
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return messages, nil
}

// Conversation returns the conversation's metadata or chat.ErrConversationNotFound.
func (s *Service) Conversation(ctx context.Context, conversationID string) (chat.Conversation, error) {
	if s.store == nil {
		return chat.Conversation{}, ErrStoreUnavailable
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("failed to read conversation: %w", err)
	}
	return conv, nil
}

// Model returns the configured model name.
func (s *Service) Model() string {
	return s.backend.Model()
}

func (s *Service) loadHistory(ctx context.Context, conversationID string) []chat.Message {
	if s.store == nil || conversationID == "" || s.historyLimit <= 0 {
		return nil
	}

	history, err := s.store.RecentMessages(ctx, conversationID, s.historyLimit)
	if err != nil {
		log.WithError(err).WithField("conversationID", conversationID).Warn("failed to load history, continuing without it")
		return nil
	}
	return history
}

func (s *Service) record(ctx context.Context, conversationID string, messages ...chat.Message) (string, error) {
	if s.store == nil {
		return "", ErrStoreUnavailable
	}
	return s.store.RecordExchange(ctx, conversationID, messages...)
}

// timestamp is truncated to the store's microsecond resolution.
func (s *Service) timestamp() time.Time {
	return s.now().Truncate(time.Microsecond)
}
