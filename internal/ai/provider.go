package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a chat-completion backend. Chat returns the assistant reply.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
