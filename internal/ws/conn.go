package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the opening handshake.
	handshakeTimeout = 10 * time.Second
)

// WebSocketDialer dials the agent with gorilla/websocket.
type WebSocketDialer struct {
	dialer    *websocket.Dialer
	writeWait time.Duration
	pongWait  time.Duration
}

// NewWebSocketDialer creates a dialer with the default deadlines.
func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		writeWait: writeWait,
		pongWait:  pongWait,
	}
}

// WithDeadlines overrides the write and pong deadlines. Pings are sent
// at nine tenths of pongWait.
func (d *WebSocketDialer) WithDeadlines(write, pong time.Duration) *WebSocketDialer {
	if write > 0 {
		d.writeWait = write
	}
	if pong > 0 {
		d.pongWait = pong
	}
	return d
}

// Dial opens a WebSocket connection to url.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s (status %d): %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return newWebSocketConn(conn, d.writeWait, d.pongWait), nil
}

// webSocketConn adapts a gorilla connection to Conn and keeps it alive with pings.
type webSocketConn struct {
	conn      *websocket.Conn
	writeWait time.Duration
	pongWait  time.Duration

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newWebSocketConn(conn *websocket.Conn, writeWait, pongWait time.Duration) *webSocketConn {
	c := &webSocketConn{
		conn:      conn,
		writeWait: writeWait,
		pongWait:  pongWait,
		done:      make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	go c.keepalive()
	return c
}

// ReadFrame returns the next text or binary message.
func (c *webSocketConn) ReadFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	return data, nil
}

// WriteFrame writes data as a single text message.
func (c *webSocketConn) WriteFrame(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the underlying connection.
func (c *webSocketConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// keepalive pings the peer until the connection is closed.
func (c *webSocketConn) keepalive() {
	ticker := time.NewTicker((c.pongWait * 9) / 10)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait)); err != nil {
				c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
