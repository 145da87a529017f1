// Package handlers provides HTTP API request handlers.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/zerostick/agent-console/internal/ws"
)

// WebSocketHandler streams session snapshots to browser viewers.
type WebSocketHandler struct {
	viewers *ws.ViewerHandler
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(viewers *ws.ViewerHandler) *WebSocketHandler {
	return &WebSocketHandler{
		viewers: viewers,
	}
}

// Stream handles WS /api/session/stream - attaches a viewer.
func (h *WebSocketHandler) Stream(c *gin.Context) {
	if err := h.viewers.HandleConnection(c.Writer, c.Request); err != nil {
		// The upgrader has already written the HTTP error
		return
	}
}

// RegisterRoutes registers the WebSocket handler routes on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/session/stream", h.Stream)
}
