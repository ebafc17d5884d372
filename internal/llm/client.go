// Package llm wraps the chat-completion API used for intent classification
// fallback and free-form replies.
package llm

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

//go:generate mockgen -source=client.go -destination=mocks/mock_client.go -package=mocks

const DefaultModel = "gpt-4o-mini"

// ErrNotConfigured is returned when no API key was provided.
var ErrNotConfigured = errors.New("llm client not configured")

// Message is a single chat message.
// Role must be one of: "system", "user", or "assistant".
type Message struct {
	Role    string
	Content string
}

func System(content string) Message    { return Message{Role: openai.ChatMessageRoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: openai.ChatMessageRoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: openai.ChatMessageRoleAssistant, Content: content} }

// Client sends a message history and returns the assistant reply.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// OpenAIClient calls the OpenAI chat completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient returns nil when apiKey is empty so callers can run
// without a model and take their deterministic fallbacks.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIClient{client: openai.NewClient(apiKey), model: model}
}

func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrNotConfigured
	}

	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != openai.ChatMessageRoleSystem && role != openai.ChatMessageRoleUser && role != openai.ChatMessageRoleAssistant {
			// coerce anything unknown to user
			role = openai.ChatMessageRoleUser
		}
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    oaMsgs,
		Temperature: 0.2,
	})
	if err != nil {
		return "", errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
