// Package console is the interface presentation surfaces use to drive an
// agent session: mount it, submit prompts and render its snapshots.
package console

import (
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/zerostick/agent-console/internal/model"
	"github.com/zerostick/agent-console/internal/protocol"
	"github.com/zerostick/agent-console/internal/ws"
)

// Config holds configuration for a Console.
type Config struct {
	AgentURL string

	// SessionID defaults to a random UUID.
	SessionID string

	DiagnosticsSize int

	// Dialer and Clock default to a WebSocket dialer and the real clock.
	Dialer ws.Dialer
	Clock  clockwork.Clock

	Logger zerolog.Logger
}

// Console binds one agent session channel to the presentation layer.
type Console struct {
	channel *ws.Channel
	logger  zerolog.Logger
}

// New creates a console. No connection is made until Mount.
func New(cfg Config) *Console {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.New().String()
	}
	logger := cfg.Logger.With().Str("component", "console").Str("session_id", cfg.SessionID).Logger()

	return &Console{
		channel: ws.NewChannel(ws.ChannelConfig{
			URL:             cfg.AgentURL,
			SessionID:       cfg.SessionID,
			Dialer:          cfg.Dialer,
			Clock:           cfg.Clock,
			Logger:          cfg.Logger,
			DiagnosticsSize: cfg.DiagnosticsSize,
		}),
		logger: logger,
	}
}

// Mount starts connecting to the agent.
func (c *Console) Mount() {
	c.logger.Info().Msg("Console mounted")
	c.channel.Connect()
}

// Unmount tears the session down. The console cannot be mounted again.
func (c *Console) Unmount() {
	c.channel.Teardown()
	c.logger.Info().Msg("Console unmounted")
}

// Submit sends text to the agent as a prompt. Blank text and text
// submitted while disconnected are dropped and Submit returns false.
// Accepted text is sent as typed.
func (c *Console) Submit(text string) bool {
	return c.Prompt(text) == nil
}

// Prompt is Submit reporting why text was dropped: model.ErrEmptyPrompt,
// model.ErrNotConnected or model.ErrTornDown.
func (c *Console) Prompt(text string) error {
	if strings.TrimSpace(text) == "" {
		return model.ErrEmptyPrompt
	}
	return c.channel.Offer(protocol.Prompt(text))
}

// Online reports whether the agent connection is open.
func (c *Console) Online() bool {
	return c.channel.Snapshot().IsConnected()
}

// Snapshot returns the current session state.
func (c *Console) Snapshot() model.SessionState {
	return c.channel.Snapshot()
}

// Subscribe returns a channel of snapshots, latest first. See ws.Channel.Subscribe.
func (c *Console) Subscribe() (<-chan model.SessionState, func()) {
	return c.channel.Subscribe()
}

// Diagnostics returns recently discarded inbound frames.
func (c *Console) Diagnostics() []ws.DiscardedFrame {
	return c.channel.Diagnostics()
}

// SessionID returns the session identifier.
func (c *Console) SessionID() string {
	return c.channel.Snapshot().SessionID
}
