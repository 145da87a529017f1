package model

import (
	"time"
)

// ConnectionState represents the lifecycle state of the agent connection.
type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
)

// EntryKind classifies a transcript entry for display.
type EntryKind string

const (
	EntryUser   EntryKind = "user"
	EntrySystem EntryKind = "system"
	EntryStatus EntryKind = "status"
	EntryLog    EntryKind = "log"
	EntryError  EntryKind = "error"
)

// IsNarration reports whether the kind is one the agent may narrate with.
func (k EntryKind) IsNarration() bool {
	switch k {
	case EntryStatus, EntryLog, EntryError:
		return true
	}
	return false
}

// TranscriptEntry is a single line of the session transcript.
// Entries are created once and never modified.
type TranscriptEntry struct {
	Kind      EntryKind `json:"kind"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ArtifactReference locates the most recently generated artifact,
// e.g. a playable video URL.
type ArtifactReference struct {
	URL string `json:"url"`
}

// SessionState is the externally observable state of a console session.
// Values handed out to callers are snapshots and must be treated as read-only.
type SessionState struct {
	SessionID       string             `json:"sessionId"`
	Connection      ConnectionState    `json:"connection"`
	Transcript      []TranscriptEntry  `json:"transcript"`
	CurrentArtifact *ArtifactReference `json:"currentArtifact,omitempty"`
}

// NewSessionState returns an empty, disconnected session.
func NewSessionState(sessionID string) SessionState {
	return SessionState{
		SessionID:  sessionID,
		Connection: ConnectionDisconnected,
		Transcript: []TranscriptEntry{},
	}
}

// IsConnected returns true if outbound commands can be accepted.
func (s SessionState) IsConnected() bool {
	return s.Connection == ConnectionConnected
}

// ArtifactURL returns the current artifact locator, or "" if there is none.
func (s SessionState) ArtifactURL() string {
	if s.CurrentArtifact == nil {
		return ""
	}
	return s.CurrentArtifact.URL
}

// LastEntry returns the most recent transcript entry.
func (s SessionState) LastEntry() (TranscriptEntry, bool) {
	if len(s.Transcript) == 0 {
		return TranscriptEntry{}, false
	}
	return s.Transcript[len(s.Transcript)-1], true
}
