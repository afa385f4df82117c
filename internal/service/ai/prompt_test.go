package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/ai-chat/backend/internal/config"
	"github.com/zhouzirui/ai-chat/backend/internal/model/chat"
)

func TestPromptBuilderWithoutHistory(t *testing.T) {
	builder := NewPromptBuilder(config.DefaultSystemPrompt)

	got, err := builder.Build(context.Background(), nil, "Hi")
	require.NoError(t, err)

	want := config.DefaultSystemPrompt + "\n\nUser: Hi\nAssistant:"
	assert.Equal(t, want, got)
}

func TestPromptBuilderWithHistory(t *testing.T) {
	builder := NewPromptBuilder("Be brief.")
	history := []chat.Message{
		{Role: chat.RoleUser, Content: "Hi"},
		{Role: chat.RoleAssistant, Content: "Hello!"},
	}

	got, err := builder.Build(context.Background(), history, "How are you?")
	require.NoError(t, err)

	want := "Be brief.\n\nUser: Hi\nAssistant: Hello!\nUser: How are you?\nAssistant:"
	assert.Equal(t, want, got)
}

func TestPromptBuilderRendersSystemHistoryAsAssistant(t *testing.T) {
	builder := NewPromptBuilder("Be brief.")
	history := []chat.Message{
		{Role: chat.RoleSystem, Content: "note"},
		{Role: chat.RoleUser, Content: "a {b}"},
	}

	got, err := builder.Build(context.Background(), history, "next")
	require.NoError(t, err)

	want := "Be brief.\n\nAssistant: note\nUser: a {b}\nUser: next\nAssistant:"
	assert.Equal(t, want, got)
}

func TestPromptBuilderKeepsBracesVerbatim(t *testing.T) {
	builder := NewPromptBuilder("Be brief.")

	got, err := builder.Build(context.Background(), nil, `print({"a": 1})`)
	require.NoError(t, err)
	assert.Contains(t, got, `User: print({"a": 1})`)
}
