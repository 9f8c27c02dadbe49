// Package client holds the consumer half of the streaming pipeline: an HTTP
// client that reads an event stream and a reducer that folds decoded events
// into renderable transcript state.
package client

import (
	"fmt"
	"strings"

	"aichat/internal/model"
	"aichat/internal/stream"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStreaming
)

func (p Phase) String() string {
	if p == PhaseStreaming {
		return "streaming"
	}
	return "idle"
}

// Entry is one transcript row. An optimistic user entry carries Pending
// until the server confirms the turn by opening the stream; it is replaced
// wholesale, never merged.
type Entry struct {
	ID      string
	Role    string
	Content string
	Tokens  *model.TokenUsage
	Pending bool
}

// RemoteError is an error event carried on the stream, as opposed to a
// transport or protocol failure.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// Reducer is a single-threaded state machine over decoded events. It is not
// safe for concurrent use; one reducer serves one conversation view.
type Reducer struct {
	phase              Phase
	transcript         []Entry
	buffer             strings.Builder
	pendingAssistantID string
	title              string
}

func NewReducer() *Reducer {
	return &Reducer{}
}

// BeginTurn appends the optimistic user entry and enters the streaming
// phase. Submitting while a turn is in flight is a caller bug; the in-flight
// turn must be cancelled first.
func (r *Reducer) BeginTurn(content string) error {
	if r.phase == PhaseStreaming {
		return fmt.Errorf("turn already in flight")
	}
	r.transcript = append(r.transcript, Entry{
		Role:    model.RoleUser,
		Content: content,
		Pending: true,
	})
	r.buffer.Reset()
	r.pendingAssistantID = ""
	r.phase = PhaseStreaming
	return nil
}

// Apply folds one decoded event into the transcript state. An error event
// returns a *RemoteError after the reducer has gone back to idle.
func (r *Reducer) Apply(ev stream.Event) error {
	if r.phase != PhaseStreaming {
		return fmt.Errorf("unexpected %s event while idle", ev.Type())
	}

	switch e := ev.(type) {
	case stream.MessageStart:
		r.pendingAssistantID = e.MessageID
		r.confirmPendingUser()
	case stream.ContentDelta:
		r.buffer.WriteString(e.Delta)
	case stream.MessageEnd:
		tokens := e.Tokens
		r.transcript = append(r.transcript, Entry{
			ID:      e.MessageID,
			Role:    model.RoleAssistant,
			Content: r.buffer.String(),
			Tokens:  &tokens,
		})
		if e.ConversationTitle != "" {
			r.title = e.ConversationTitle
		}
		r.buffer.Reset()
		r.pendingAssistantID = ""
		r.phase = PhaseIdle
	case stream.ErrorEvent:
		// The partial buffer is durable server side; it is only not shown
		// without a reload.
		r.buffer.Reset()
		r.pendingAssistantID = ""
		r.phase = PhaseIdle
		return &RemoteError{Message: e.Message}
	default:
		return fmt.Errorf("unhandled event type %q", ev.Type())
	}
	return nil
}

// Cancel drops the in-flight turn and returns to idle without waiting for a
// terminal event.
func (r *Reducer) Cancel() {
	if r.phase != PhaseStreaming {
		return
	}
	r.buffer.Reset()
	r.pendingAssistantID = ""
	r.phase = PhaseIdle
}

func (r *Reducer) confirmPendingUser() {
	for i := len(r.transcript) - 1; i >= 0; i-- {
		if r.transcript[i].Pending && r.transcript[i].Role == model.RoleUser {
			r.transcript[i].Pending = false
			return
		}
	}
}

func (r *Reducer) Phase() Phase { return r.phase }

// StreamingText is the in-progress assistant buffer, readable between any
// two events.
func (r *Reducer) StreamingText() string { return r.buffer.String() }

func (r *Reducer) PendingAssistantID() string { return r.pendingAssistantID }

func (r *Reducer) Title() string { return r.title }

// Transcript returns a copy of the completed entries.
func (r *Reducer) Transcript() []Entry {
	out := make([]Entry, len(r.transcript))
	copy(out, r.transcript)
	return out
}
