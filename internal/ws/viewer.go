package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zerostick/agent-console/internal/model"
)

// Maximum message size allowed from a viewer.
const maxViewerMessageSize = 8192

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Viewers are local presentation surfaces.
		return true
	},
}

// Presenter is the console surface that viewers render and submit to.
type Presenter interface {
	Snapshot() model.SessionState
	Subscribe() (<-chan model.SessionState, func())
	Submit(text string) bool
}

// SessionUpdate carries what changed since the previous snapshot sent to
// viewers. Entries start at transcript index Offset.
type SessionUpdate struct {
	Connection      model.ConnectionState    `json:"connection"`
	CurrentArtifact *model.ArtifactReference `json:"currentArtifact,omitempty"`
	Offset          int                      `json:"offset"`
	Entries         []model.TranscriptEntry  `json:"entries"`
}

// ViewerHandler streams session snapshots to WebSocket viewers and
// forwards their prompts to the console. A viewer receives the full state
// when it attaches and SessionUpdate deltas after that.
type ViewerHandler struct {
	hub       *Hub
	presenter Presenter
	logger    zerolog.Logger

	// mu orders attaches against broadcasts so every viewer's base state
	// matches the delta that follows it.
	mu   sync.Mutex
	last model.SessionState
	sent bool
}

// NewViewerHandler creates a handler for the given presenter.
func NewViewerHandler(presenter Presenter, logger zerolog.Logger) *ViewerHandler {
	return &ViewerHandler{
		hub:       NewHub(),
		presenter: presenter,
		logger:    logger.With().Str("component", "viewers").Logger(),
	}
}

// Run broadcasts every snapshot to all viewers until ctx is done or the
// presenter stops publishing, then disconnects the viewers.
func (h *ViewerHandler) Run(ctx context.Context) {
	updates, cancel := h.presenter.Subscribe()
	defer cancel()
	defer h.hub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			h.broadcast(state)
		}
	}
}

func (h *ViewerHandler) broadcast(state model.SessionState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var (
		msg *ViewerMessage
		err error
	)
	if h.sent && extends(h.last, state) {
		msg, err = updateMessage(h.last, state)
	} else {
		msg, err = stateMessage(state)
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}
	h.hub.BroadcastMessage(msg)
	h.last = state
	h.sent = true
}

// extends reports whether next only appends to prev's transcript.
func extends(prev, next model.SessionState) bool {
	return prev.SessionID == next.SessionID && len(next.Transcript) >= len(prev.Transcript)
}

// HandleConnection upgrades the request and attaches a new viewer.
// The viewer receives the current snapshot immediately.
func (h *ViewerHandler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(h.hub, conn)
	h.attach(client)

	go h.writePump(client)
	go h.readPump(client)

	h.logger.Debug().Str("remote", r.RemoteAddr).Int("viewers", h.hub.ClientCount()).Msg("Viewer attached")
	return nil
}

// attach sends the viewer the state the next broadcast builds on, then registers it.
func (h *ViewerHandler) attach(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.last
	if !h.sent {
		state = h.presenter.Snapshot()
	}
	if msg, err := stateMessage(state); err == nil {
		client.SendMessage(msg)
	}
	h.hub.Register(client)
}

func updateMessage(prev, next model.SessionState) (*ViewerMessage, error) {
	payload, err := json.Marshal(SessionUpdate{
		Connection:      next.Connection,
		CurrentArtifact: next.CurrentArtifact,
		Offset:          len(prev.Transcript),
		Entries:         next.Transcript[len(prev.Transcript):],
	})
	if err != nil {
		return nil, err
	}
	return &ViewerMessage{Type: ViewerMessageUpdate, Payload: payload}, nil
}

func stateMessage(state model.SessionState) (*ViewerMessage, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &ViewerMessage{Type: ViewerMessageState, Payload: payload}, nil
}

// handleMessage processes a message from a viewer.
func (h *ViewerHandler) handleMessage(client *Client, msg *ViewerMessage) {
	switch msg.Type {
	case ViewerMessagePrompt:
		accepted := h.presenter.Submit(msg.Content)
		client.SendMessage(&ViewerMessage{Type: ViewerMessageResult, Accepted: &accepted})
	case ViewerMessagePing:
		client.SendMessage(&ViewerMessage{Type: ViewerMessagePong})
	}
}

// readPump pumps messages from the viewer connection.
func (h *ViewerHandler) readPump(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxViewerMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("Viewer connection error")
			}
			return
		}

		var msg ViewerMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.logger.Debug().Err(err).Msg("Ignoring malformed viewer message")
			continue
		}

		h.handleMessage(client, &msg)
	}
}

// writePump pumps queued messages to the viewer connection.
func (h *ViewerHandler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
