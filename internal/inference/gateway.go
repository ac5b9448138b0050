package inference

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/chatapp/internal/ai"
	"github.com/suPer8Hu/chatapp/internal/auth"
	"github.com/suPer8Hu/chatapp/internal/chat"
	"github.com/suPer8Hu/chatapp/internal/common"
	"github.com/suPer8Hu/chatapp/internal/logging"
	"github.com/suPer8Hu/chatapp/internal/stream"
	"github.com/suPer8Hu/chatapp/internal/usage"
)

var log = logging.For("inference")

type Request struct {
	Messages  []ai.Message `json:"messages"`
	SessionID string       `json:"sessionId"`
	UserID    string       `json:"userId"`
}

type Options struct {
	Provider          string
	Model             string
	ContextWindowSize int
	Heartbeat         time.Duration
}

// Gateway answers a chat turn: it persists the prompt, streams the model's
// reply and persists that too, reporting every attempt to the recorder.
type Gateway struct {
	chat     *chat.Service
	registry *ai.Registry
	recorder usage.Recorder
	opts     Options
}

func NewGateway(chatSvc *chat.Service, registry *ai.Registry, recorder usage.Recorder, opts Options) *Gateway {
	if opts.ContextWindowSize <= 0 || opts.ContextWindowSize > 100 {
		opts.ContextWindowSize = 20
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	if opts.Provider == "" {
		opts.Provider = "ollama"
	}
	return &Gateway{chat: chatSvc, registry: registry, recorder: recorder, opts: opts}
}

// Turn is a validated request whose prompt has been stored.
type Turn struct {
	gw       *Gateway
	who      auth.Identity
	session  string
	prompt   *chat.Message
	history  []ai.Message
	provider ai.Provider
}

func validate(who auth.Identity, req Request) (string, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return "", common.Validation("sessionId is required")
	}
	if req.UserID != "" && req.UserID != who.UserID {
		return "", common.Validation("userId does not match the authenticated user")
	}
	if len(req.Messages) == 0 {
		return "", common.Validation("messages are required")
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != chat.RoleUser {
		return "", common.Validation("last message must have role user")
	}
	content := strings.TrimSpace(last.Content)
	if content == "" {
		return "", common.Validation("message content is required")
	}
	return content, nil
}

// Prepare validates req, checks ownership, stores the user's message and
// loads the context window. Errors are *common.Error.
func (g *Gateway) Prepare(ctx context.Context, who auth.Identity, req Request) (*Turn, error) {
	content, err := validate(who, req)
	if err != nil {
		return nil, err
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if err := g.chat.ValidateSessionOwner(ctx, who, sessionID); err != nil {
		return nil, err
	}

	provider, err := g.registry.Get(ctx, g.opts.Provider, g.opts.Model)
	if err != nil {
		return nil, common.Stream("model unavailable", err)
	}

	prompt := &chat.Message{
		SessionID: sessionID,
		UserID:    who.UserID,
		Role:      chat.RoleUser,
		Content:   content,
		Model:     provider.Model(),
	}
	if err := g.chat.AppendMessage(ctx, prompt); err != nil {
		return nil, err
	}

	recent, err := g.chat.RecentMessages(ctx, sessionID, g.opts.ContextWindowSize)
	if err != nil {
		return nil, err
	}
	history := make([]ai.Message, 0, len(recent))
	for _, m := range recent {
		history = append(history, ai.Message{Role: m.Role, Content: m.Content})
	}

	return &Turn{gw: g, who: who, session: sessionID, prompt: prompt, history: history, provider: provider}, nil
}

// Run streams the reply to w. Once Run starts, failures are reported in-band
// as error events; the returned error is for logging only.
func (t *Turn) Run(ctx context.Context, w *stream.Writer) error {
	entry := log.WithField("session_id", t.session).WithField("provider", t.provider.Name())
	start := time.Now()

	reply, used, err := t.generate(ctx, w)
	if err != nil {
		entry.WithError(err).Error("completion failed")
		_ = w.WriteError("failed to generate a response")
		t.record(ctx, t.prompt.ID, used, err)
		return common.Stream("completion failed", err)
	}

	if strings.TrimSpace(reply) == "" {
		entry.Warn("empty completion")
		t.record(ctx, t.prompt.ID, used, errEmptyCompletion)
		return w.WriteDone()
	}

	answer := &chat.Message{
		SessionID:        t.session,
		UserID:           chat.AssistantUserID,
		Role:             chat.RoleAssistant,
		Content:          reply,
		TokensUsed:       used.Total(),
		PromptTokens:     used.PromptTokens,
		CompletionTokens: used.CompletionTokens,
		Model:            t.provider.Model(),
	}
	if err := t.gw.chat.AppendMessage(context.WithoutCancel(ctx), answer); err != nil {
		entry.WithError(err).Error("store reply failed")
		_ = w.WriteError("failed to save the response")
		t.record(ctx, t.prompt.ID, used, err)
		return err
	}

	t.record(ctx, answer.ID, used, nil)
	entry.WithField("tokens", used.Total()).WithField("cost", time.Since(start).String()).Info("completion stored")
	return w.WriteDone()
}

var errEmptyCompletion = errors.New("empty completion")

// generate relays provider deltas as response events, writing a keep-alive
// comment when the provider is quiet.
func (t *Turn) generate(ctx context.Context, w *stream.Writer) (string, ai.Usage, error) {
	var used ai.Usage

	sp, ok := t.provider.(ai.StreamProvider)
	if !ok {
		reply, err := t.provider.Chat(ctx, t.history)
		if err != nil {
			return "", used, err
		}
		if reply != "" {
			if err := w.WriteResponse(reply); err != nil {
				return "", used, err
			}
		}
		return reply, used, nil
	}

	deltas, errs := sp.StreamChat(ctx, t.history)
	ticker := time.NewTicker(t.gw.opts.Heartbeat)
	defer ticker.Stop()

	var b strings.Builder
	for {
		select {
		case d, ok := <-deltas:
			if !ok {
				if err := <-errs; err != nil {
					return b.String(), used, err
				}
				return b.String(), used, nil
			}
			if d.Usage != nil {
				used = *d.Usage
			}
			if d.Content == "" {
				continue
			}
			b.WriteString(d.Content)
			if err := w.WriteResponse(d.Content); err != nil {
				return b.String(), used, err
			}
		case <-ticker.C:
			if err := w.Ping(); err != nil {
				return b.String(), used, err
			}
		case <-ctx.Done():
			return b.String(), used, ctx.Err()
		}
	}
}

func (t *Turn) record(ctx context.Context, messageID string, used ai.Usage, cause error) {
	if t.gw.recorder == nil {
		return
	}
	ev := usage.Event{
		ID:               uuid.NewString(),
		UserID:           t.who.UserID,
		SessionID:        t.session,
		MessageID:        messageID,
		Timestamp:        time.Now().UTC(),
		PromptTokens:     used.PromptTokens,
		CompletionTokens: used.CompletionTokens,
		Model:            t.provider.Model(),
		Success:          cause == nil,
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	if err := t.gw.recorder.Record(context.WithoutCancel(ctx), ev); err != nil {
		log.WithError(err).WithField("session_id", t.session).Warn("usage not recorded")
	}
}
