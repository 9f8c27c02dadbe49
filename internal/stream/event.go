// Package stream defines the wire-level event protocol between the streaming
// chat endpoint and its clients, and the SSE codec for it. The union of event
// types is closed: the decoder rejects tags it does not know.
package stream

import "aichat/internal/model"

type EventType string

const (
	EventMessageStart EventType = "message_start"
	EventContentDelta EventType = "content_delta"
	EventMessageEnd   EventType = "message_end"
	EventError        EventType = "error"
)

// Event is one element of the closed event union. Only the types in this
// package implement it.
type Event interface {
	Type() EventType
}

// MessageStart announces the id the assistant message will be persisted under.
type MessageStart struct {
	MessageID string `json:"messageId"`
}

func (MessageStart) Type() EventType { return EventMessageStart }

// ContentDelta carries one incremental text fragment, in provider order.
type ContentDelta struct {
	Delta string `json:"delta"`
}

func (ContentDelta) Type() EventType { return EventContentDelta }

// MessageEnd terminates a successful stream with the persisted assistant
// message id and the token usage totals. ConversationTitle is set only when
// the exchange was the conversation's first and a title was generated.
type MessageEnd struct {
	MessageID         string           `json:"messageId"`
	Tokens            model.TokenUsage `json:"tokens"`
	ConversationTitle string           `json:"conversationTitle,omitempty"`
}

func (MessageEnd) Type() EventType { return EventMessageEnd }

// ErrorEvent terminates a failed stream with a human-readable message.
type ErrorEvent struct {
	Message string `json:"error"`
}

func (ErrorEvent) Type() EventType { return EventError }
