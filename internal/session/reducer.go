// Package session folds classified events into console session state.
package session

import (
	"slices"

	"github.com/zerostick/agent-console/internal/model"
)

// Reduce returns the state that results from applying ev to state.
// It has no side effects; state is never modified in place, so snapshots
// previously handed out stay valid. Each append copies the transcript;
// use a Builder to fold a long-lived session.
func Reduce(state model.SessionState, ev Event) model.SessionState {
	return reduce(state, ev, copyAppend)
}

// Fold applies events to state in order.
func Fold(state model.SessionState, events ...Event) model.SessionState {
	for _, ev := range events {
		state = Reduce(state, ev)
	}
	return state
}

// Builder folds events into a state it owns. Appends reuse the transcript's
// spare capacity, so building a transcript of n entries costs O(n).
//
// States returned by Apply and State are clipped: they share storage with
// the builder, but later appends land past their capacity and are never
// visible through them. A Builder is not safe for concurrent use.
type Builder struct {
	state model.SessionState
}

// NewBuilder returns a Builder starting from state. The caller's transcript
// is never written to.
func NewBuilder(state model.SessionState) *Builder {
	state.Transcript = slices.Clip(state.Transcript)
	return &Builder{state: state}
}

// Apply folds ev into the builder's state and returns the new state.
func (b *Builder) Apply(ev Event) model.SessionState {
	b.state = reduce(b.state, ev, ownedAppend)
	return b.State()
}

// State returns the current state.
func (b *Builder) State() model.SessionState {
	state := b.state
	state.Transcript = slices.Clip(state.Transcript)
	return state
}

type appendFunc func([]model.TranscriptEntry, model.TranscriptEntry) []model.TranscriptEntry

// copyAppend forces a fresh backing array so earlier states never observe the append.
func copyAppend(transcript []model.TranscriptEntry, entry model.TranscriptEntry) []model.TranscriptEntry {
	return append(slices.Clip(transcript), entry)
}

func ownedAppend(transcript []model.TranscriptEntry, entry model.TranscriptEntry) []model.TranscriptEntry {
	return append(transcript, entry)
}

func reduce(state model.SessionState, ev Event, add appendFunc) model.SessionState {
	switch ev.Kind {
	case EventArtifactProduced:
		state.CurrentArtifact = &model.ArtifactReference{URL: ev.Content}
		return state

	case EventNarration:
		if !ev.Entry.IsNarration() {
			return state
		}
		return appendEntry(state, add, ev.Entry, ev.Content, ev)

	case EventUserSubmission:
		state.CurrentArtifact = nil
		return appendEntry(state, add, model.EntryUser, UserPrefix+ev.Content, ev)

	case EventConnectionOpened:
		state.Connection = model.ConnectionConnected
		return appendEntry(state, add, model.EntrySystem, ConnectedText, ev)

	case EventConnectionClosed:
		state.Connection = model.ConnectionDisconnected
		return appendEntry(state, add, model.EntryError, DisconnectedText, ev)

	case EventConnectionAttempt:
		state.Connection = model.ConnectionConnecting
		return state

	case EventConnectionReleased:
		state.Connection = model.ConnectionDisconnected
		return state
	}

	return state
}

func appendEntry(state model.SessionState, add appendFunc, kind model.EntryKind, content string, ev Event) model.SessionState {
	state.Transcript = add(state.Transcript, model.TranscriptEntry{
		Kind:      kind,
		Content:   content,
		Timestamp: ev.At,
	})
	return state
}
