package postgres

import (
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/ai-chat/backend/internal/model/chat"
)

// Conversation is the conversations table. Identifiers are generated by Postgres.
type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now()"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now()"`
	Messages  []Message `gorm:"constraint:OnDelete:CASCADE;"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c Conversation) toDomain() chat.Conversation {
	return chat.Conversation{
		ID:        c.ID.String(),
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt.UTC(),
	}
}

// Message is the messages table.
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_conversation_created,priority:1"`
	Role           string    `gorm:"type:varchar(16);not null;check:chk_messages_role,role IN ('user','assistant','system')"`
	Content        string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"type:timestamptz;not null;default:now();index:idx_messages_conversation_created,priority:2"`
	// Seq orders messages that share a created_at.
	Seq int64 `gorm:"autoIncrement;not null;index:idx_messages_conversation_created,priority:3"`
}

func (Message) TableName() string {
	return "messages"
}

func (m Message) toDomain() chat.Message {
	return chat.Message{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		Role:           chat.Role(m.Role),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt.UTC(),
	}
}
