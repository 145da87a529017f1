// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zerostick/agent-console/internal/model"
	"github.com/zerostick/agent-console/internal/ws"
)

// Console is the session surface the HTTP API presents.
type Console interface {
	Snapshot() model.SessionState
	Prompt(text string) error
	Diagnostics() []ws.DiscardedFrame
}

// SessionHandler handles HTTP requests for the console session.
type SessionHandler struct {
	console Console
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(console Console) *SessionHandler {
	return &SessionHandler{
		console: console,
	}
}

// PromptRequest represents the request body for submitting a prompt.
type PromptRequest struct {
	Content string `json:"content"`
}

// PromptResponse reports whether a prompt was handed to the agent.
type PromptResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// EntryResponse represents a transcript entry in API responses.
type EntryResponse struct {
	Kind      string `json:"kind"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// SessionResponse represents the session snapshot in API responses.
type SessionResponse struct {
	SessionID  string          `json:"sessionId"`
	Connection string          `json:"connection"`
	Online     bool            `json:"online"`
	Transcript []EntryResponse `json:"transcript"`
	Artifact   *string         `json:"artifact"`
}

// DiagnosticsResponse lists recently discarded inbound frames.
type DiagnosticsResponse struct {
	Frames []ws.DiscardedFrame `json:"frames"`
	Count  int                 `json:"count"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// toSessionResponse converts a snapshot to SessionResponse.
func toSessionResponse(s model.SessionState) *SessionResponse {
	resp := &SessionResponse{
		SessionID:  s.SessionID,
		Connection: string(s.Connection),
		Online:     s.IsConnected(),
		Transcript: make([]EntryResponse, 0, len(s.Transcript)),
	}
	for _, e := range s.Transcript {
		resp.Transcript = append(resp.Transcript, EntryResponse{
			Kind:      string(e.Kind),
			Content:   e.Content,
			Timestamp: e.Timestamp.Format(time.RFC3339),
		})
	}
	if s.CurrentArtifact != nil {
		url := s.CurrentArtifact.URL
		resp.Artifact = &url
	}
	return resp
}

// Get handles GET /api/session - returns the current snapshot.
func (h *SessionHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, toSessionResponse(h.console.Snapshot()))
}

// Prompt handles POST /api/session/prompt - submits a prompt to the agent.
// Dropped prompts are not errors; the response reports accepted=false.
func (h *SessionHandler) Prompt(c *gin.Context) {
	var req PromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	err := h.console.Prompt(req.Content)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, PromptResponse{Accepted: true})
	case errors.Is(err, model.ErrEmptyPrompt), errors.Is(err, model.ErrNotConnected), errors.Is(err, model.ErrTornDown):
		c.JSON(http.StatusOK, PromptResponse{Accepted: false, Reason: err.Error()})
	default:
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to submit prompt: "+err.Error())
	}
}

// Diagnostics handles GET /api/diagnostics - lists discarded inbound frames.
func (h *SessionHandler) Diagnostics(c *gin.Context) {
	frames := h.console.Diagnostics()
	if frames == nil {
		frames = []ws.DiscardedFrame{}
	}
	c.JSON(http.StatusOK, DiagnosticsResponse{Frames: frames, Count: len(frames)})
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/session", h.Get)
	rg.POST("/session/prompt", h.Prompt)
	rg.GET("/diagnostics", h.Diagnostics)
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
