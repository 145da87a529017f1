package session

import (
	"time"

	"github.com/zerostick/agent-console/internal/model"
)

// EventKind identifies what happened to the session.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventArtifactProduced
	EventNarration
	EventUserSubmission
	EventConnectionOpened
	EventConnectionClosed
	EventConnectionAttempt
	EventConnectionReleased
)

// String returns a short name for logging.
func (k EventKind) String() string {
	switch k {
	case EventArtifactProduced:
		return "artifact_produced"
	case EventNarration:
		return "narration"
	case EventUserSubmission:
		return "user_submission"
	case EventConnectionOpened:
		return "connection_opened"
	case EventConnectionClosed:
		return "connection_closed"
	case EventConnectionAttempt:
		return "connection_attempt"
	case EventConnectionReleased:
		return "connection_released"
	default:
		return "unknown"
	}
}

// Transcript texts produced by connection lifecycle events.
const (
	ConnectedText    = "Connected to Agent Server."
	DisconnectedText = "Disconnected. Reconnecting in 3s..."

	// UserPrefix is prepended to the operator's own input in the transcript.
	UserPrefix = "> "
)

// Event is a classified inbound or outbound occurrence folded by Reduce.
type Event struct {
	Kind EventKind

	// Entry is the narration kind for EventNarration.
	Entry model.EntryKind

	// Content is the narration text, the submitted prompt, or the artifact locator.
	Content string

	// At is the time recorded on any transcript entry the event creates.
	At time.Time
}

// ArtifactProduced reports a new artifact locator from the agent.
func ArtifactProduced(locator string, at time.Time) Event {
	return Event{Kind: EventArtifactProduced, Content: locator, At: at}
}

// Narration reports a status, log or error line from the agent.
func Narration(kind model.EntryKind, content string, at time.Time) Event {
	return Event{Kind: EventNarration, Entry: kind, Content: content, At: at}
}

// UserSubmission reports a prompt accepted for sending.
func UserSubmission(content string, at time.Time) Event {
	return Event{Kind: EventUserSubmission, Content: content, At: at}
}

// ConnectionOpened reports that the agent connection is established.
func ConnectionOpened(at time.Time) Event {
	return Event{Kind: EventConnectionOpened, At: at}
}

// ConnectionClosed reports that the agent connection was lost or could not be made.
func ConnectionClosed(at time.Time) Event {
	return Event{Kind: EventConnectionClosed, At: at}
}

// ConnectionAttempt reports that a dial to the agent has started.
func ConnectionAttempt(at time.Time) Event {
	return Event{Kind: EventConnectionAttempt, At: at}
}

// ConnectionReleased reports that the channel was shut down on purpose.
func ConnectionReleased(at time.Time) Event {
	return Event{Kind: EventConnectionReleased, At: at}
}
