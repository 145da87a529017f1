// Package protocol defines the JSON frames exchanged with the agent server
// and classifies inbound frames into session events.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zerostick/agent-console/internal/model"
	"github.com/zerostick/agent-console/internal/session"
)

// MessageType represents the type discriminator of a frame.
type MessageType string

const (
	// Client -> Agent message types
	MessageTypePrompt MessageType = "prompt"

	// Agent -> Client message types
	MessageTypeVideo  MessageType = "video"
	MessageTypeStatus MessageType = "status"
	MessageTypeLog    MessageType = "log"
	MessageTypeError  MessageType = "error"
)

// Message is an inbound frame from the agent.
type Message struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content,omitempty"`
	URL     string      `json:"url,omitempty"`
}

// Command is an outbound frame to the agent.
type Command struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

// Prompt builds the command that asks the agent to generate an animation.
func Prompt(content string) Command {
	return Command{Type: MessageTypePrompt, Content: content}
}

// Encode serializes a command into a single text frame.
func (c Command) Encode() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s command: %w", c.Type, err)
	}
	return data, nil
}

// ParseMessage decodes a raw frame without classifying it.
func ParseMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedFrame, err)
	}
	return &msg, nil
}

// Decode parses a raw inbound frame and classifies it into a session event
// stamped with at. Frames of an unknown type return an error wrapping
// model.ErrUnknownFrameType; undecodable frames wrap model.ErrMalformedFrame.
func Decode(raw []byte, at time.Time) (session.Event, error) {
	msg, err := ParseMessage(raw)
	if err != nil {
		return session.Event{}, err
	}
	return msg.Event(at)
}

// Event classifies the message by its type.
func (m *Message) Event(at time.Time) (session.Event, error) {
	switch m.Type {
	case MessageTypeVideo:
		if m.URL == "" {
			return session.Event{}, fmt.Errorf("%w: video frame without url", model.ErrMalformedFrame)
		}
		return session.ArtifactProduced(m.URL, at), nil
	case MessageTypeStatus, MessageTypeLog, MessageTypeError:
		return session.Narration(model.EntryKind(m.Type), m.Content, at), nil
	default:
		return session.Event{}, fmt.Errorf("%w: %q", model.ErrUnknownFrameType, m.Type)
	}
}
