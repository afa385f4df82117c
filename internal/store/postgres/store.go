package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/zhouzirui/ai-chat/backend/internal/model/chat"
)

var _ chat.Store = (*Store)(nil)

// RecordExchange resolves the conversation and inserts messages in order inside one transaction.
func (s *Store) RecordExchange(ctx context.Context, conversationID string, messages ...chat.Message) (string, error) {
	if err := chat.ValidateMessages(messages); err != nil {
		return "", err
	}

	var resolved uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := resolveConversation(tx, conversationID)
		if err != nil {
			return err
		}
		resolved = conv.ID

		for i, m := range messages {
			row := Message{
				ConversationID: conv.ID,
				Role:           string(m.Role),
				Content:        m.Content,
				CreatedAt:      m.CreatedAt,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to insert message %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return resolved.String(), nil
}

// resolveConversation returns the existing conversation for raw, or creates a new one
// when raw is empty, malformed or unknown.
func resolveConversation(tx *gorm.DB, raw string) (Conversation, error) {
	if id, ok := parseID(raw); ok {
		var conv Conversation
		err := tx.Where("id = ?", id).Take(&conv).Error
		switch {
		case err == nil:
			return conv, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return Conversation{}, fmt.Errorf("failed to look up conversation: %w", err)
		}
		log.WithField("conversationID", raw).Info("unknown conversation, starting a new one")
	}

	conv := Conversation{}
	if err := tx.Create(&conv).Error; err != nil {
		return Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	id, ok := parseID(conversationID)
	if !ok {
		return []chat.Message{}, nil
	}

	var rows []Message
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", id).
		Order("created_at ASC, seq ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return toDomain(rows), nil
}

func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	id, ok := parseID(conversationID)
	if !ok || limit <= 0 {
		return []chat.Message{}, nil
	}

	var rows []Message
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", id).
		Order("created_at DESC, seq DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return toDomain(rows), nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (chat.Conversation, error) {
	id, ok := parseID(conversationID)
	if !ok {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}

	var conv Conversation
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("failed to load conversation: %w", err)
	}
	return conv.toDomain(), nil
}

func parseID(raw string) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func toDomain(rows []Message) []chat.Message {
	messages := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.toDomain())
	}
	return messages
}
