package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerostick/agent-console/internal/model"
	"github.com/zerostick/agent-console/internal/ws"
)

var t0 = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type fakeConsole struct {
	state     model.SessionState
	promptErr error
	prompts   []string
	frames    []ws.DiscardedFrame
	updates   chan model.SessionState
}

func newFakeConsole() *fakeConsole {
	return &fakeConsole{
		state:   model.NewSessionState("http-test"),
		updates: make(chan model.SessionState, 1),
	}
}

func (f *fakeConsole) Snapshot() model.SessionState { return f.state }

func (f *fakeConsole) Subscribe() (<-chan model.SessionState, func()) {
	return f.updates, func() {}
}

func (f *fakeConsole) Prompt(text string) error {
	f.prompts = append(f.prompts, text)
	return f.promptErr
}

func (f *fakeConsole) Submit(text string) bool { return f.Prompt(text) == nil }

func (f *fakeConsole) Diagnostics() []ws.DiscardedFrame { return f.frames }

func newTestRouter(console *fakeConsole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(console, ws.NewViewerHandler(console, zerolog.Nop()), zerolog.Nop())
}

func doRequest(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := doRequest(t, newTestRouter(newFakeConsole()), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestGetSession(t *testing.T) {
	t.Run("offline without artifact", func(t *testing.T) {
		w := doRequest(t, newTestRouter(newFakeConsole()), http.MethodGet, "/api/session", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{
			"sessionId": "http-test",
			"connection": "disconnected",
			"online": false,
			"transcript": [],
			"artifact": null
		}`, w.Body.String())
	})

	t.Run("online with transcript and artifact", func(t *testing.T) {
		console := newFakeConsole()
		console.state.Connection = model.ConnectionConnected
		console.state.Transcript = []model.TranscriptEntry{
			{Kind: model.EntrySystem, Content: "Connected to Agent Server.", Timestamp: t0},
			{Kind: model.EntryUser, Content: "> Make a stickman jump", Timestamp: t0.Add(time.Second)},
		}
		console.state.CurrentArtifact = &model.ArtifactReference{URL: "http://localhost:8000/videos/a.mp4"}

		w := doRequest(t, newTestRouter(console), http.MethodGet, "/api/session", "")

		require.Equal(t, http.StatusOK, w.Code)
		var resp SessionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Online)
		assert.Equal(t, "connected", resp.Connection)
		require.Len(t, resp.Transcript, 2)
		assert.Equal(t, EntryResponse{Kind: "user", Content: "> Make a stickman jump", Timestamp: "2026-03-01T09:30:01Z"}, resp.Transcript[1])
		require.NotNil(t, resp.Artifact)
		assert.Equal(t, "http://localhost:8000/videos/a.mp4", *resp.Artifact)
	})
}

func TestPrompt(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		promptErr error
		status    int
		want      string
	}{
		{"accepted", `{"content":"Make a stickman jump"}`, nil, http.StatusOK, `{"accepted":true}`},
		{"empty", `{"content":"  "}`, model.ErrEmptyPrompt, http.StatusOK, `{"accepted":false,"reason":"prompt is empty"}`},
		{"not connected", `{"content":"wave"}`, model.ErrNotConnected, http.StatusOK, `{"accepted":false,"reason":"not connected to agent"}`},
		{"torn down", `{"content":"wave"}`, model.ErrTornDown, http.StatusOK, `{"accepted":false,"reason":"channel torn down"}`},
		{"encode failure", `{"content":"wave"}`, errors.New("boom"), http.StatusInternalServerError, `{"error":{"code":"INTERNAL_ERROR","message":"Failed to submit prompt: boom"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			console := newFakeConsole()
			console.promptErr = tt.promptErr

			w := doRequest(t, newTestRouter(console), http.MethodPost, "/api/session/prompt", tt.body)

			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.want, w.Body.String())
			assert.Len(t, console.prompts, 1)
		})
	}
}

func TestPromptInvalidBody(t *testing.T) {
	console := newFakeConsole()
	w := doRequest(t, newTestRouter(console), http.MethodPost, "/api/session/prompt", "not json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Empty(t, console.prompts)
}

func TestPromptSendsUntrimmedContent(t *testing.T) {
	console := newFakeConsole()
	doRequest(t, newTestRouter(console), http.MethodPost, "/api/session/prompt", `{"content":"  spin "}`)

	assert.Equal(t, []string{"  spin "}, console.prompts)
}

func TestDiagnostics(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		w := doRequest(t, newTestRouter(newFakeConsole()), http.MethodGet, "/api/diagnostics", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"frames":[],"count":0}`, w.Body.String())
	})

	t.Run("frames", func(t *testing.T) {
		console := newFakeConsole()
		console.frames = []ws.DiscardedFrame{
			{At: t0, Reason: `unknown frame type: "thumbnail"`, Frame: `{"type":"thumbnail"}`},
		}

		w := doRequest(t, newTestRouter(console), http.MethodGet, "/api/diagnostics", "")

		require.Equal(t, http.StatusOK, w.Code)
		var resp DiagnosticsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, `{"type":"thumbnail"}`, resp.Frames[0].Frame)
	})
}

func TestCORS(t *testing.T) {
	r := newTestRouter(newFakeConsole())

	w := doRequest(t, r, http.MethodOptions, "/api/session/prompt", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = doRequest(t, r, http.MethodGet, "/api/session", "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStream(t *testing.T) {
	console := newFakeConsole()
	viewers := ws.NewViewerHandler(console, zerolog.Nop())
	gin.SetMode(gin.TestMode)
	srv := httptest.NewServer(NewRouter(console, viewers, zerolog.Nop()))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go viewers.Run(ctx)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/session/stream", nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ws.ViewerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ws.ViewerMessageState, msg.Type)

	var state model.SessionState
	require.NoError(t, json.Unmarshal(msg.Payload, &state))
	assert.Equal(t, "http-test", state.SessionID)

	require.NoError(t, conn.WriteJSON(ws.ViewerMessage{Type: ws.ViewerMessagePrompt, Content: "wave"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ws.ViewerMessageResult, msg.Type)
	require.NotNil(t, msg.Accepted)
	assert.True(t, *msg.Accepted)
}

func TestStreamRequiresUpgrade(t *testing.T) {
	w := doRequest(t, newTestRouter(newFakeConsole()), http.MethodGet, "/api/session/stream", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestToSessionResponseCopiesArtifact(t *testing.T) {
	state := model.NewSessionState("s")
	state.CurrentArtifact = &model.ArtifactReference{URL: "http://x/a.mp4"}

	resp := toSessionResponse(state)
	*resp.Artifact = "changed"

	assert.Equal(t, "http://x/a.mp4", state.CurrentArtifact.URL)
}
