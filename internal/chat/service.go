package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/suPer8Hu/chatapp/internal/auth"
	"github.com/suPer8Hu/chatapp/internal/common"
	"github.com/suPer8Hu/chatapp/internal/logging"
	"gorm.io/gorm"
)

const (
	titleMaxRunes = 50

	msgSessionNotFound = "session not found or access denied"
)

var log = logging.For("chat")

type Service struct {
	repo  *Repo
	now   func() time.Time
	model string
}

type Option func(*Service)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDefaultModel sets the model recorded on messages that carry none.
func WithDefaultModel(model string) Option {
	return func(s *Service) {
		if m := strings.TrimSpace(model); m != "" {
			s.model = m
		}
	}
}

func NewService(repo *Repo, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now, model: DefaultModel}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) clock() time.Time { return s.now().UTC() }

// SessionTitle picks the display title for a new session: the explicit title
// as given, else the first 50 characters of the opening message, else
// DefaultTitle. Only empty strings fall through.
func SessionTitle(title, initialMessage string) string {
	if title != "" {
		return title
	}
	if initialMessage != "" {
		if utf8.RuneCountInString(initialMessage) > titleMaxRunes {
			return string([]rune(initialMessage)[:titleMaxRunes])
		}
		return initialMessage
	}
	return DefaultTitle
}

func (s *Service) CreateChatSession(ctx context.Context, who auth.Identity, title, initialMessage string) Result[*Session] {
	if who.UserID == "" {
		return failed[*Session](common.Unauthorized("unauthorized"))
	}

	now := s.clock()
	id, err := common.NewULIDAt(now)
	if err != nil {
		return failed[*Session](common.Persistence("failed to create session", err))
	}

	session := &Session{
		ID:            id,
		UserID:        who.UserID,
		Title:         SessionTitle(title, initialMessage),
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
		Status:        StatusActive,
		MessageCount:  0,
		TotalTokens:   0,
	}

	rows, err := s.repo.CreateSession(ctx, session)
	if err != nil || rows == 0 {
		if err == nil {
			err = errors.New("no row inserted")
		}
		log.WithError(err).WithField("user_id", who.UserID).Error("create session failed")
		return failed[*Session](common.Persistence("failed to create session", err))
	}

	log.WithField("user_id", who.UserID).WithField("session_id", session.ID).Info("session created")
	return ok(session)
}

func (s *Service) ListChatSessions(ctx context.Context, who auth.Identity) Result[[]Session] {
	if who.UserID == "" {
		return failed[[]Session](common.Unauthorized("unauthorized"))
	}
	sessions, err := s.repo.ListSessionsByUser(ctx, who.UserID)
	if err != nil {
		log.WithError(err).WithField("user_id", who.UserID).Error("list sessions failed")
		return failed[[]Session](common.Persistence("failed to fetch chat sessions", err))
	}
	return ok(sessions)
}

func (s *Service) ListChatMessages(ctx context.Context, sessionID string, who auth.Identity) Result[[]Message] {
	sessionID = strings.TrimSpace(sessionID)
	if who.UserID == "" {
		return failed[[]Message](common.Unauthorized("unauthorized"))
	}
	if err := s.ValidateSessionOwner(ctx, who, sessionID); err != nil {
		e, _ := common.AsError(err)
		return failed[[]Message](e)
	}

	msgs, err := s.repo.ListMessagesBySession(ctx, sessionID)
	if err != nil {
		log.WithError(err).WithField("session_id", sessionID).Error("list messages failed")
		return failed[[]Message](common.Persistence("failed to fetch chat messages", err))
	}
	log.WithField("session_id", sessionID).WithField("count", len(msgs)).Debug("messages listed")
	return ok(msgs)
}

// ValidateSessionOwner returns a KindAccessDenied error both when the session
// does not exist and when it belongs to someone else.
func (s *Service) ValidateSessionOwner(ctx context.Context, who auth.Identity, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return common.Validation("session id is required")
	}
	if _, err := s.repo.GetSessionForUser(ctx, sessionID, who.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.AccessDenied(msgSessionNotFound)
		}
		return common.Persistence("failed to load session", err)
	}
	return nil
}

// AppendMessage stores a new message and updates the session's activity.
// ID and CreatedAt are filled in when empty.
func (s *Service) AppendMessage(ctx context.Context, m *Message) error {
	if strings.TrimSpace(m.Content) == "" {
		return common.Validation("message content is required")
	}
	if !ValidRole(m.Role) {
		return common.Validation("invalid message role")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.clock()
	}
	if m.ID == "" {
		id, err := common.NewULIDAt(m.CreatedAt)
		if err != nil {
			return common.Persistence("failed to store message", err)
		}
		m.ID = id
	}
	if m.Model == "" {
		m.Model = s.model
	}
	if err := s.repo.AppendMessage(ctx, m); err != nil {
		log.WithError(err).WithField("session_id", m.SessionID).Error("append message failed")
		return common.Persistence("failed to store message", err)
	}
	return nil
}

// RecentMessages returns up to limit of the newest messages, oldest first.
func (s *Service) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	desc, err := s.repo.ListRecentMessagesDesc(ctx, sessionID, limit)
	if err != nil {
		return nil, common.Persistence("failed to load history", err)
	}
	asc := make([]Message, 0, len(desc))
	for i := len(desc) - 1; i >= 0; i-- {
		asc = append(asc, desc[i])
	}
	return asc, nil
}
