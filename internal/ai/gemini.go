package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiProvider talks to Google's Gemini API. Gemini has no "system" role in
// chat history, so system messages become the model's system instruction.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" && len(opts) == 0 {
		return nil, errors.New("gemini: api key is required")
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	if apiKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string  { return "gemini" }
func (p *GeminiProvider) Model() string { return p.model }

func (p *GeminiProvider) Close() error { return p.client.Close() }

// toGeminiHistory splits messages into the system instruction, the prior
// turns and the final user turn.
func toGeminiHistory(messages []Message) (system string, history []*genai.Content, last *genai.Content, err error) {
	var sys []string
	for _, m := range messages {
		switch m.Role {
		case "system":
			sys = append(sys, m.Content)
		case "assistant":
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return "", nil, nil, errors.New("gemini: last message must come from the user")
	}
	last = history[len(history)-1]
	return strings.Join(sys, "\n\n"), history[:len(history)-1], last, nil
}

func (p *GeminiProvider) session(messages []Message) (*genai.ChatSession, *genai.Content, error) {
	system, history, last, err := toGeminiHistory(messages)
	if err != nil {
		return nil, nil, err
	}
	model := p.client.GenerativeModel(p.model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	cs := model.StartChat()
	cs.History = history
	return cs, last, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

func (p *GeminiProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	cs, last, err := p.session(messages)
	if err != nil {
		return "", err
	}
	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", fmt.Errorf("gemini: send message: %w", err)
	}
	return responseText(resp), nil
}

func (p *GeminiProvider) StreamChat(ctx context.Context, messages []Message) (<-chan Delta, <-chan error) {
	deltas := make(chan Delta, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)

		cs, last, err := p.session(messages)
		if err != nil {
			errs <- err
			return
		}

		it := cs.SendMessageStream(ctx, last.Parts...)
		var usage *Usage
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				errs <- fmt.Errorf("gemini: stream: %w", err)
				return
			}
			if resp.UsageMetadata != nil {
				usage = &Usage{
					PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
					CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				}
			}
			if text := responseText(resp); text != "" {
				select {
				case deltas <- Delta{Content: text}:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
		if usage != nil {
			select {
			case deltas <- Delta{Usage: usage}:
			case <-ctx.Done():
				errs <- ctx.Err()
			}
		}
	}()

	return deltas, errs
}
