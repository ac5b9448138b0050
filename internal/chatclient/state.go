package chatclient

import (
	"fmt"
	"slices"

	"github.com/suPer8Hu/chatapp/internal/chat"
)

type Status int

const (
	StatusIdle Status = iota
	StatusSending
	StatusStreaming
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSending:
		return "sending"
	case StatusStreaming:
		return "streaming"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

type EventType int

const (
	EventSubmit EventType = iota
	EventStreamOpened
	EventChunk
	EventComplete
	EventFail
	EventReset
)

func (e EventType) String() string {
	return [...]string{"submit", "stream_opened", "chunk", "complete", "fail", "reset"}[e]
}

// Event drives the conversation state machine. Message is the provisional
// user message for Submit and the assistant reply for Complete; Text is the
// increment for Chunk; History replaces the transcript on Reset.
type Event struct {
	Type    EventType
	Message *chat.Message
	Text    string
	History []chat.Message
}

// State is the client-side projection of one conversation. Pending is the
// optimistic user message awaiting a reply; Streaming is the reply so far.
type State struct {
	Status    Status
	History   []chat.Message
	Pending   *chat.Message
	Streaming string
}

var transitions = map[Status]map[EventType]Status{
	StatusIdle: {
		EventSubmit: StatusSending,
		EventReset:  StatusIdle,
	},
	StatusSending: {
		EventStreamOpened: StatusStreaming,
		EventFail:         StatusIdle,
		EventReset:        StatusIdle,
	},
	StatusStreaming: {
		EventChunk:    StatusStreaming,
		EventComplete: StatusIdle,
		EventFail:     StatusIdle,
		EventReset:    StatusIdle,
	},
}

// Reduce applies ev to s. Events the current status does not accept return
// s unchanged with an error. s is never mutated.
func Reduce(s State, ev Event) (State, error) {
	next, ok := transitions[s.Status][ev.Type]
	if !ok {
		return s, fmt.Errorf("event %s not allowed while %s", ev.Type, s.Status)
	}

	out := State{Status: next, History: s.History, Pending: s.Pending, Streaming: s.Streaming}
	switch ev.Type {
	case EventSubmit:
		if ev.Message == nil {
			return s, fmt.Errorf("submit without message")
		}
		m := *ev.Message
		out.History = append(slices.Clone(s.History), m)
		out.Pending = &m
		out.Streaming = ""

	case EventChunk:
		out.Streaming = s.Streaming + ev.Text

	case EventComplete:
		if ev.Message != nil && ev.Message.Content != "" {
			out.History = append(slices.Clone(s.History), *ev.Message)
		}
		out.Pending = nil
		out.Streaming = ""

	case EventFail:
		if s.Pending != nil {
			pendingID := s.Pending.ID
			out.History = slices.DeleteFunc(slices.Clone(s.History), func(m chat.Message) bool {
				return m.ID == pendingID
			})
		}
		out.Pending = nil
		out.Streaming = ""

	case EventReset:
		out.History = slices.Clone(ev.History)
		if out.History == nil {
			out.History = []chat.Message{}
		}
		out.Pending = nil
		out.Streaming = ""
	}
	return out, nil
}
