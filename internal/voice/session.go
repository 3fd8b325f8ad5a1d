// Package voice defines the contract between a call and the realtime voice
// provider, plus the assistant configurations the two call flows start with.
package voice

import (
	"context"
	"errors"
)

// EventKind names a provider-pushed event
type EventKind string

const (
	EventCallStart   EventKind = "call-start"
	EventCallEnd     EventKind = "call-end"
	EventMessage     EventKind = "message"
	EventSpeechStart EventKind = "speech-start"
	EventSpeechEnd   EventKind = "speech-end"
	EventError       EventKind = "error"
)

// Message type and transcript type values the call consumes
const (
	MessageTypeTranscript = "transcript"
	TranscriptFinal       = "final"
	TranscriptPartial     = "partial"
)

// ErrNotStarted is returned when a session is used before Start
var ErrNotStarted = errors.New("voice session not started")

// Message is the payload of a message event
type Message struct {
	Type           string `json:"type"`
	TranscriptType string `json:"transcriptType,omitempty"`
	Role           string `json:"role,omitempty"`
	Transcript     string `json:"transcript,omitempty"`
}

// IsFinalTranscript reports whether the message is a finalized transcript line
func (m Message) IsFinalTranscript() bool {
	return m.Type == MessageTypeTranscript && m.TranscriptType == TranscriptFinal
}

// Event is one provider notification. Message is set for message events
// and Err for error events.
type Event struct {
	Kind    EventKind
	Message *Message
	Err     error
}

// Handler receives provider events
type Handler func(Event)

// ListenerID identifies a registered handler so it can be removed
type ListenerID uint64

// ChatMessage is a synthetic conversation turn injected into a live call
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OutboundMessage is a control message sent to a live call
type OutboundMessage struct {
	Type    string      `json:"type"`
	Message ChatMessage `json:"message"`
}

// AddMessage builds the add-message control message
func AddMessage(role, content string) OutboundMessage {
	return OutboundMessage{
		Type:    "add-message",
		Message: ChatMessage{Role: role, Content: content},
	}
}

// Session is a realtime voice call. Implementations deliver events for one
// call as a serialized stream.
type Session interface {
	Start(ctx context.Context, cfg AssistantConfig) error
	Stop() error
	Send(msg OutboundMessage) error
	On(kind EventKind, h Handler) ListenerID
	Off(kind EventKind, id ListenerID)
}
