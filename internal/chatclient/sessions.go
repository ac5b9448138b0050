package chatclient

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/suPer8Hu/chatapp/internal/chat"
)

const (
	EmptyNoMatches = "No matching chats found"
	EmptyNoChats   = "No chats yet"
)

// SessionView is what a sidebar renders.
type SessionView struct {
	Loading      bool
	Sessions     []chat.Session
	EmptyMessage string
}

// SessionList keeps the caller's sessions and a search term. It starts in
// the loading state until the first Refresh finishes.
type SessionList struct {
	api      *Client
	notifier Notifier

	mu       sync.Mutex
	sessions []chat.Session
	filter   string
	loading  bool
}

func NewSessionList(api *Client, notifier Notifier) *SessionList {
	if notifier == nil {
		notifier = discard{}
	}
	return &SessionList{api: api, notifier: notifier, loading: true, sessions: []chat.Session{}}
}

// Refresh refetches the list. Call it on start and whenever the active
// session changes. A failed fetch keeps the previous list.
func (l *SessionList) Refresh(ctx context.Context) error {
	sessions, err := l.api.ListSessions(ctx)

	l.mu.Lock()
	l.loading = false
	if err == nil {
		l.sessions = sessions
	}
	l.mu.Unlock()

	if err != nil {
		l.notifier.Notify(errorNotice("Failed to fetch chat sessions"))
		return err
	}
	return nil
}

func (l *SessionList) SetFilter(term string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filter = term
}

func (l *SessionList) View() SessionView {
	l.mu.Lock()
	defer l.mu.Unlock()

	v := SessionView{Loading: l.loading}
	if l.loading {
		return v
	}
	v.Sessions = FilterSessions(l.sessions, l.filter)
	if len(v.Sessions) == 0 {
		if l.filter != "" {
			v.EmptyMessage = EmptyNoMatches
		} else {
			v.EmptyMessage = EmptyNoChats
		}
	}
	return v
}

// FilterSessions keeps sessions whose title contains term, ignoring case.
// An empty term keeps everything. Order is preserved.
func FilterSessions(sessions []chat.Session, term string) []chat.Session {
	term = strings.ToLower(term)
	if term == "" {
		return slices.Clone(sessions)
	}
	out := make([]chat.Session, 0, len(sessions))
	for _, s := range sessions {
		if strings.Contains(strings.ToLower(s.Title), term) {
			out = append(out, s)
		}
	}
	return out
}
