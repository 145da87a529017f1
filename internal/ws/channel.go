package ws

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/zerostick/agent-console/internal/buffer"
	"github.com/zerostick/agent-console/internal/model"
	"github.com/zerostick/agent-console/internal/protocol"
	"github.com/zerostick/agent-console/internal/session"
)

const (
	// ReconnectDelay is the fixed wait between losing the agent and the next dial.
	ReconnectDelay = 3 * time.Second

	// DefaultDiagnosticsSize is how many discarded frames are kept for inspection.
	DefaultDiagnosticsSize = 64

	// Maximum number of encoded frames waiting for the write pump.
	sendBufferSize = 256
)

// Dialer opens connections to the agent endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is an open, message-oriented connection to the agent.
// Close must be safe to call concurrently with ReadFrame and WriteFrame
// and more than once.
type Conn interface {
	// ReadFrame blocks until the next frame arrives or the connection fails.
	ReadFrame() ([]byte, error)

	// WriteFrame writes a single text frame. Calls are never concurrent.
	WriteFrame(data []byte) error

	Close() error
}

// DiscardedFrame records an inbound frame that did not change session state.
type DiscardedFrame struct {
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`
	Frame  string    `json:"frame"`
}

// ChannelConfig holds configuration for a Channel.
type ChannelConfig struct {
	// URL is the agent endpoint; every reconnect targets the same URL.
	URL string

	SessionID string

	// Dialer defaults to a gorilla WebSocket dialer.
	Dialer Dialer

	// Clock drives the reconnect timer and transcript timestamps.
	Clock clockwork.Clock

	Logger zerolog.Logger

	DiagnosticsSize int
}

// Channel owns the single connection to the agent and folds everything
// that happens on it into session state.
//
// All state lives on one event-loop goroutine. Transport goroutines,
// the reconnect timer and public methods hand work to the loop and never
// touch state directly.
type Channel struct {
	url    string
	dialer Dialer
	clock  clockwork.Clock
	logger zerolog.Logger

	ops     chan func()
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// Owned by the loop goroutine.
	builder    *session.Builder
	state      model.SessionState
	conn       *connection
	cancelDial context.CancelFunc
	retry      clockwork.Timer
	generation uint64

	mu          sync.RWMutex
	snapshot    model.SessionState
	subscribers map[int]chan model.SessionState
	nextSubID   int
	closed      bool

	diagnostics *buffer.Ring[DiscardedFrame]
}

// connection is one established transport connection and its write queue.
type connection struct {
	id   uint64
	conn Conn
	send chan []byte
}

// NewChannel creates a Channel and starts its event loop.
// No connection is attempted until Connect is called.
func NewChannel(cfg ChannelConfig) *Channel {
	if cfg.Dialer == nil {
		cfg.Dialer = NewWebSocketDialer()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.DiagnosticsSize <= 0 {
		cfg.DiagnosticsSize = DefaultDiagnosticsSize
	}

	state := model.NewSessionState(cfg.SessionID)
	c := &Channel{
		url:         cfg.URL,
		dialer:      cfg.Dialer,
		clock:       cfg.Clock,
		logger:      cfg.Logger.With().Str("component", "channel").Str("session_id", cfg.SessionID).Logger(),
		ops:         make(chan func()),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		builder:     session.NewBuilder(state),
		state:       state,
		snapshot:    state,
		subscribers: make(map[int]chan model.SessionState),
		diagnostics: buffer.NewRing[DiscardedFrame](cfg.DiagnosticsSize),
	}

	go c.run()
	return c
}

// Connect starts a connection attempt unless one is already in flight or open.
func (c *Channel) Connect() {
	c.do(c.connect)
}

// Send folds the command into the transcript and queues it for the agent.
// It returns false, without touching state, when the channel is not connected.
func (c *Channel) Send(cmd protocol.Command) bool {
	return c.Offer(cmd) == nil
}

// Offer is Send reporting why a command was dropped: model.ErrNotConnected,
// model.ErrTornDown or an encoding error.
func (c *Channel) Offer(cmd protocol.Command) error {
	err := model.ErrTornDown
	c.do(func() {
		err = c.send(cmd)
	})
	return err
}

// Teardown closes the connection, cancels any pending dial or reconnect
// and stops the event loop. Once it returns no further state changes occur.
// It is safe to call more than once and before any Connect.
func (c *Channel) Teardown() {
	c.once.Do(func() {
		close(c.done)
	})
	<-c.stopped
}

// Snapshot returns the current session state.
func (c *Channel) Snapshot() model.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Subscribe returns a channel that receives the latest snapshot after every
// change, starting with the current one. Slow readers only see the most
// recent snapshot. The channel is closed on Teardown or when the returned
// cancel function is called.
func (c *Channel) Subscribe() (<-chan model.SessionState, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan model.SessionState, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	ch <- c.snapshot

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}
}

// Diagnostics returns recently discarded inbound frames, oldest first.
func (c *Channel) Diagnostics() []DiscardedFrame {
	return c.diagnostics.Items()
}

// run is the event loop.
func (c *Channel) run() {
	defer close(c.stopped)

	for {
		select {
		case op := <-c.ops:
			op()
		case <-c.done:
			c.shutdown()
			return
		}
	}
}

// post hands op to the event loop. It returns false once the channel is torn down.
func (c *Channel) post(op func()) bool {
	select {
	case c.ops <- op:
		return true
	case <-c.done:
		return false
	}
}

// do runs op on the event loop and waits for it to finish.
func (c *Channel) do(op func()) bool {
	finished := make(chan struct{})
	if !c.post(func() {
		defer close(finished)
		op()
	}) {
		return false
	}
	<-finished
	return true
}

func (c *Channel) connect() {
	if c.conn != nil || c.cancelDial != nil {
		return
	}
	c.stopRetry()

	c.generation++
	id := c.generation
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel

	c.fold(session.ConnectionAttempt(c.clock.Now()))
	c.logger.Debug().Str("url", c.url).Uint64("attempt", id).Msg("Dialing agent")

	go func() {
		conn, err := c.dialer.Dial(ctx, c.url)
		if !c.post(func() { c.dialed(id, conn, err) }) && conn != nil {
			conn.Close()
		}
	}()
}

func (c *Channel) dialed(id uint64, conn Conn, err error) {
	if id != c.generation || c.cancelDial == nil {
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.cancelDial()
	c.cancelDial = nil

	if err != nil {
		c.logger.Warn().Err(err).Str("url", c.url).Msg("Failed to connect to agent")
		c.lost()
		return
	}

	cn := &connection{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	c.conn = cn
	go c.readPump(cn)
	go c.writePump(cn)

	c.logger.Info().Str("url", c.url).Msg("Connected to agent")
	c.fold(session.ConnectionOpened(c.clock.Now()))
}

func (c *Channel) send(cmd protocol.Command) error {
	if c.conn == nil || !c.state.IsConnected() {
		c.logger.Debug().Str("type", string(cmd.Type)).Msg("Dropping command while disconnected")
		return model.ErrNotConnected
	}

	data, err := cmd.Encode()
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to encode command")
		return err
	}

	c.fold(session.UserSubmission(cmd.Content, c.clock.Now()))

	select {
	case c.conn.send <- data:
	default:
		// Write pump is stuck; drop the connection and let reconnect take over.
		c.logger.Warn().Msg("Send buffer full, closing connection")
		c.conn.conn.Close()
	}
	return nil
}

func (c *Channel) receive(cn *connection, data []byte) {
	if cn != c.conn {
		return
	}

	now := c.clock.Now()
	ev, err := protocol.Decode(data, now)
	if err != nil {
		c.diagnostics.Push(DiscardedFrame{At: now, Reason: err.Error(), Frame: string(data)})
		c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("Discarding inbound frame")
		return
	}

	c.logger.Debug().Str("event", ev.Kind.String()).Msg("Frame received")
	c.fold(ev)
}

func (c *Channel) connectionLost(cn *connection, err error) {
	if cn != c.conn {
		return
	}
	c.conn = nil
	close(cn.send)
	cn.conn.Close()

	c.logger.Warn().Err(err).Msg("Disconnected from agent")
	c.lost()
}

// lost records the disconnect and schedules exactly one reconnect.
func (c *Channel) lost() {
	c.fold(session.ConnectionClosed(c.clock.Now()))

	if c.retry != nil {
		return
	}
	var timer clockwork.Timer
	timer = c.clock.AfterFunc(ReconnectDelay, func() {
		c.post(func() {
			if c.retry != timer {
				return
			}
			c.retry = nil
			c.connect()
		})
	})
	c.retry = timer
	c.logger.Info().Dur("delay", ReconnectDelay).Msg("Reconnect scheduled")
}

func (c *Channel) stopRetry() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Channel) shutdown() {
	c.stopRetry()
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	if c.conn != nil {
		close(c.conn.send)
		c.conn.conn.Close()
		c.conn = nil
	}

	c.fold(session.ConnectionReleased(c.clock.Now()))

	c.mu.Lock()
	c.closed = true
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
	c.mu.Unlock()

	c.logger.Info().Msg("Channel torn down")
}

// fold applies ev and publishes the resulting snapshot.
func (c *Channel) fold(ev session.Event) {
	c.state = c.builder.Apply(ev)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = c.state
	for _, ch := range c.subscribers {
		select {
		case ch <- c.state:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- c.state
		}
	}
}

// readPump pumps frames from the connection to the event loop.
func (c *Channel) readPump(cn *connection) {
	for {
		data, err := cn.conn.ReadFrame()
		if err != nil {
			c.post(func() { c.connectionLost(cn, err) })
			return
		}
		if !c.post(func() { c.receive(cn, data) }) {
			return
		}
	}
}

// writePump pumps queued frames to the connection. A write failure closes
// the connection so readPump reports the loss.
func (c *Channel) writePump(cn *connection) {
	for data := range cn.send {
		if err := cn.conn.WriteFrame(data); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to write frame")
			cn.conn.Close()
			return
		}
	}
}
