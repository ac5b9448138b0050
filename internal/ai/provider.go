package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting a backend reports for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

func (u Usage) Total() int { return u.PromptTokens + u.CompletionTokens }

// Delta is one streamed piece of a completion. Usage is set at most once,
// normally on the last delta.
type Delta struct {
	Content string
	Usage   *Usage
}

type Provider interface {
	Name() string
	Model() string
	Chat(ctx context.Context, messages []Message) (string, error)
}

// StreamProvider is an optional interface. Providers may implement streaming chat.
// Both channels are closed when the stream ends; errs receives at most one value.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan Delta, <-chan error)
}
