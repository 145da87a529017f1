package cli

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerostick/agent-console/internal/protocol"
)

func TestRootCommand(t *testing.T) {
	cmd := GetRootCmd()

	assert.Equal(t, "agent-console", cmd.Use)
	assert.Equal(t, version, cmd.Version)

	for _, name := range []string{"config", "agent-url", "log-level"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing persistent flag %s", name)
	}

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "repl")
	assert.NotNil(t, serveCmd.Flags().Lookup("listen"))
}

func TestLoadConfigFlags(t *testing.T) {
	cmd := GetRootCmd()
	require.NoError(t, cmd.PersistentFlags().Set("agent-url", "wss://flag-host/ws"))
	t.Cleanup(func() { resetFlag(cmd.PersistentFlags().Lookup("agent-url")) })

	cfg, err := loadConfig(cmd, nil)

	require.NoError(t, err)
	assert.Equal(t, "wss://flag-host/ws", cfg.AgentURL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigRejectsInvalidURL(t *testing.T) {
	t.Setenv("AGENT_CONSOLE_AGENT_URL", "http://localhost:8000/ws")

	_, err := loadConfig(GetRootCmd(), nil)

	assert.Error(t, err)
}

func resetFlag(flag *pflag.Flag) {
	flag.Value.Set(flag.DefValue)
	flag.Changed = false
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitForOutput(t *testing.T, out *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in output:\n%s", want, out.String())
}

func TestReplSession(t *testing.T) {
	conns := make(chan *websocket.Conn, 1)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	defer srv.Close()

	stdin, input := io.Pipe()
	defer input.Close()
	out := &syncBuffer{}

	cmd := GetRootCmd()
	cmd.SetArgs([]string{"repl", "--agent-url", "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", "--log-level", "error"})
	cmd.SetIn(stdin)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	t.Cleanup(func() {
		cmd.SetArgs(nil)
		cmd.SetIn(nil)
		cmd.SetOut(nil)
		cmd.SetErr(nil)
		resetFlag(cmd.PersistentFlags().Lookup("agent-url"))
		resetFlag(cmd.PersistentFlags().Lookup("log-level"))
	})

	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()

	var agent *websocket.Conn
	select {
	case agent = <-conns:
		defer agent.Close()
	case <-time.After(3 * time.Second):
		t.Fatal("repl did not connect to the agent")
	}
	waitForOutput(t, out, "Connected to Agent Server.")

	_, err := io.WriteString(input, "Make a stickman jump\n")
	require.NoError(t, err)

	agent.SetReadDeadline(time.Now().Add(3 * time.Second))
	var prompt protocol.Command
	require.NoError(t, agent.ReadJSON(&prompt))
	assert.Equal(t, "Make a stickman jump", prompt.Content)

	require.NoError(t, agent.WriteJSON(map[string]string{"type": "status", "content": "Agent started..."}))
	require.NoError(t, agent.WriteJSON(map[string]string{"type": "video", "url": "http://localhost:8000/videos/jump.mp4"}))
	waitForOutput(t, out, "-- Generated Animation: http://localhost:8000/videos/jump.mp4")

	_, err = io.WriteString(input, "/status\n")
	require.NoError(t, err)
	waitForOutput(t, out, "-- Online  session ")

	_, err = io.WriteString(input, "/quit\n")
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("repl did not exit")
	}

	output := out.String()
	assert.Contains(t, output, "-- Offline")
	assert.Contains(t, output, "] > Make a stickman jump")
	assert.Contains(t, output, "] Agent started...")
	assert.NotContains(t, output, "\x1b[")
}
