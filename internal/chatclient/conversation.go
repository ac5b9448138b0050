package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/chatapp/internal/auth"
	"github.com/suPer8Hu/chatapp/internal/chat"
	"github.com/suPer8Hu/chatapp/internal/logging"
	"github.com/suPer8Hu/chatapp/internal/stream"
	"gorm.io/datatypes"
)

var (
	ErrBusy       = errors.New("conversation is busy")
	ErrEmptyInput = errors.New("message is empty")
	ErrNoSession  = errors.New("no session selected")
)

var log = logging.For("chatclient")

// Conversation drives one chat view: it loads a session's history, sends
// messages optimistically and assembles the streamed reply. It is safe for
// concurrent use; observers run outside the lock.
type Conversation struct {
	api      *Client
	user     auth.Identity
	notifier Notifier
	observer func(State)
	now      func() time.Time

	mu        sync.Mutex
	state     State
	sessionID string
	loading   bool
	gen       uint64
	cancel    context.CancelFunc
}

type ConversationOption func(*Conversation)

func WithNotifier(n Notifier) ConversationOption {
	return func(c *Conversation) { c.notifier = n }
}

// WithObserver registers a callback invoked with a snapshot after every state change.
func WithObserver(fn func(State)) ConversationOption {
	return func(c *Conversation) { c.observer = fn }
}

func WithNow(now func() time.Time) ConversationOption {
	return func(c *Conversation) { c.now = now }
}

func NewConversation(api *Client, user auth.Identity, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		api:      api,
		user:     user,
		notifier: discard{},
		now:      time.Now,
		state:    State{Status: StatusIdle, History: []chat.Message{}},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns a snapshot safe to read without holding any lock.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshot(c.state)
}

func snapshot(s State) State {
	s.History = slices.Clone(s.History)
	if s.Pending != nil {
		p := *s.Pending
		s.Pending = &p
	}
	return s
}

func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Loading reports whether the current session's history is still being fetched.
func (c *Conversation) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// apply reduces ev if gen is still current and notifies the observer. It
// reports false when the event belongs to a superseded send or load.
func (c *Conversation) apply(gen uint64, ev Event) bool {
	return c.commit(gen, ev, false)
}

// commit is apply; endLoad also clears the loading flag in the same
// critical section as the transition.
func (c *Conversation) commit(gen uint64, ev Event, endLoad bool) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	next, err := Reduce(c.state, ev)
	if err != nil {
		c.mu.Unlock()
		log.WithError(err).Warn("state transition rejected")
		return false
	}
	c.state = next
	if endLoad {
		c.loading = false
	}
	obs := c.observer
	snap := snapshot(next)
	c.mu.Unlock()

	if obs != nil {
		obs(snap)
	}
	return true
}

// SwitchSession abandons any in-flight send and loads the history of
// sessionID. Sends are refused with ErrBusy until the load settles.
func (c *Conversation) SwitchSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	gen := c.gen
	c.sessionID = sessionID
	c.loading = true
	c.mu.Unlock()

	c.apply(gen, Event{Type: EventReset})

	msgs, err := c.api.ListMessages(ctx, sessionID)
	if err != nil {
		c.mu.Lock()
		current := gen == c.gen
		if current {
			c.loading = false
		}
		c.mu.Unlock()
		if current {
			c.notifier.Notify(errorNotice("Failed to load chat history"))
		}
		return err
	}
	c.commit(gen, Event{Type: EventReset, History: msgs}, true)
	return nil
}

func (c *Conversation) provisional(sessionID, content string) (*chat.Message, error) {
	meta, err := json.Marshal(map[string]any{
		"isEdited":  false,
		"reactions": []string{},
		"userName":  c.user.Name,
	})
	if err != nil {
		return nil, err
	}
	return &chat.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    c.user.UserID,
		Role:      chat.RoleUser,
		Content:   content,
		CreatedAt: c.now().UTC(),
		Model:     chat.DefaultModel,
		Metadata:  datatypes.JSON(meta),
	}, nil
}

// Send appends input optimistically and streams the reply. On any failure
// the provisional message is rolled back and the notifier is told; there is
// no retry.
func (c *Conversation) Send(ctx context.Context, input string) error {
	content := strings.TrimSpace(input)
	if content == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	if c.state.Status != StatusIdle || c.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	sessionID := c.sessionID
	if sessionID == "" {
		c.mu.Unlock()
		return ErrNoSession
	}
	msg, err := c.provisional(sessionID, content)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	next, err := Reduce(c.state, Event{Type: EventSubmit, Message: msg})
	if err != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = next
	gen := c.gen
	sctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	obs, snap := c.observer, snapshot(next)
	c.mu.Unlock()
	defer cancel()

	if obs != nil {
		obs(snap)
	}

	if err := c.stream(sctx, gen, sessionID, content); err != nil {
		if c.apply(gen, Event{Type: EventFail}) {
			c.notifier.Notify(errorNotice("Failed to send message. Please try again."))
		}
		return err
	}
	return nil
}

func (c *Conversation) stream(ctx context.Context, gen uint64, sessionID, content string) error {
	body, err := c.api.OpenStream(ctx, sessionID, c.user.UserID, content)
	if err != nil {
		return err
	}
	defer body.Close()

	if !c.apply(gen, Event{Type: EventStreamOpened}) {
		return context.Canceled
	}

	dec := stream.NewDecoder(body)
	for ev, err := range dec.Events() {
		if err != nil {
			return err
		}
		if ev.Error != "" {
			return errors.New(ev.Error)
		}
		if !c.apply(gen, Event{Type: EventChunk, Text: ev.Response}) {
			return context.Canceled
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := dec.Malformed(); n > 0 {
		log.WithField("count", n).Warn("skipped malformed stream lines")
	}

	c.mu.Lock()
	text := c.state.Streaming
	c.mu.Unlock()

	var reply *chat.Message
	if text != "" {
		reply = &chat.Message{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			UserID:    chat.AssistantUserID,
			Role:      chat.RoleAssistant,
			Content:   text,
			CreatedAt: c.now().UTC(),
			Model:     chat.DefaultModel,
			Metadata:  datatypes.JSON(`{"isEdited":false,"reactions":[]}`),
		}
	}
	c.apply(gen, Event{Type: EventComplete, Message: reply})
	return nil
}
