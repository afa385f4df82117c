package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/ai-chat/backend/internal/model/chat"
)

// PromptBuilder renders the system prompt, prior turns and the new message into
// the single completion prompt the generate endpoint expects.
type PromptBuilder struct {
	template     *prompt.DefaultChatTemplate
	systemPrompt string
}

// NewPromptBuilder creates a builder that opens every prompt with systemPrompt.
func NewPromptBuilder(systemPrompt string) *PromptBuilder {
	return &PromptBuilder{
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("{system}"),
			schema.MessagesPlaceholder("history", true),
			schema.UserMessage("{query}"),
		),
		systemPrompt: systemPrompt,
	}
}

// Build returns the prompt for userMessage given the conversation history, oldest first.
func (b *PromptBuilder) Build(ctx context.Context, history []chat.Message, userMessage string) (string, error) {
	messages, err := b.template.Format(ctx, map[string]any{
		"system":  b.systemPrompt,
		"history": historyMessages(history),
		"query":   userMessage,
	})
	if err != nil {
		return "", fmt.Errorf("failed to format prompt: %w", err)
	}

	return render(messages), nil
}

func historyMessages(messages []chat.Message) []*schema.Message {
	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		// Only user turns are labelled "User"; every other stored role renders as the assistant.
		if msg.Role == chat.RoleUser {
			history = append(history, schema.UserMessage(msg.Content))
			continue
		}
		history = append(history, schema.AssistantMessage(msg.Content, nil))
	}
	return history
}

// render flattens chat messages into the "User:/Assistant:" transcript and leaves
// the assistant turn open for the model to complete.
func render(messages []*schema.Message) string {
	var builder strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case schema.System:
			builder.WriteString(msg.Content)
			builder.WriteString("\n\n")
		case schema.User:
			builder.WriteString("User: ")
			builder.WriteString(msg.Content)
			builder.WriteString("\n")
		case schema.Assistant:
			builder.WriteString("Assistant: ")
			builder.WriteString(msg.Content)
			builder.WriteString("\n")
		}
	}
	builder.WriteString("Assistant:")
	return builder.String()
}
