package model

import "errors"

var (
	// ErrNotConnected is returned when a command is offered while the agent connection is not open.
	ErrNotConnected = errors.New("not connected to agent")

	// ErrEmptyPrompt is returned when a submission contains no visible text.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrMalformedFrame is returned when an inbound frame cannot be decoded.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnknownFrameType is returned when an inbound frame carries an unrecognized type.
	ErrUnknownFrameType = errors.New("unknown frame type")

	// ErrTornDown is returned when the channel has already been shut down.
	ErrTornDown = errors.New("channel torn down")
)
