package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zerostick/agent-console/internal/console"
	"github.com/zerostick/agent-console/internal/logger"
	"github.com/zerostick/agent-console/internal/model"
	"github.com/zerostick/agent-console/internal/render"
)

// REPL commands. Any other input is sent to the agent as a prompt.
const (
	cmdQuit        = "/quit"
	cmdStatus      = "/status"
	cmdDiagnostics = "/diagnostics"
	cmdHelp        = "/help"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Talk to the agent from the terminal",
	Long: `Open an interactive session with the agent. Each line is sent as a
prompt; the agent's narration is printed as it arrives. Type /help for the
console commands.`,
	RunE: runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

// lockedWriter serializes writes from the printer and the input loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func runRepl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	// Logs go to the log file only; the terminal belongs to the transcript.
	log, err := logger.New(cfg.Log, io.Discard)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	stdout := cmd.OutOrStdout()
	out := &lockedWriter{w: stdout}
	r := render.New(stdout, isTerminal(stdout))
	printer := render.NewPrinter(out, r)

	c := newConsole(cfg, log)
	updates, cancel := c.Subscribe()
	defer cancel()

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for state := range updates {
			if err := printer.Print(state); err != nil {
				log.Error().Err(err).Msg("Failed to print snapshot")
			}
		}
	}()

	c.Mount()
	defer func() {
		c.Unmount()
		<-printed
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if !handleLine(out, r, c, line) {
				return nil
			}
		}
	}
}

// handleLine runs one line of input. It returns false when the session should end.
func handleLine(out io.Writer, r *render.Renderer, c *console.Console, line string) bool {
	switch strings.TrimSpace(line) {
	case "":
		return true
	case cmdQuit:
		return false
	case cmdHelp:
		fmt.Fprintf(out, "-- %s  %s  %s  %s\n", cmdStatus, cmdDiagnostics, cmdQuit, cmdHelp)
		return true
	case cmdStatus:
		state := c.Snapshot()
		fmt.Fprintf(out, "-- %s  session %s\n", r.Status(state), state.SessionID)
		fmt.Fprintf(out, "-- %s\n", r.Artifact(state))
		return true
	case cmdDiagnostics:
		frames := c.Diagnostics()
		fmt.Fprintf(out, "-- %d discarded frames\n", len(frames))
		for _, f := range frames {
			fmt.Fprintln(out, r.Entry(model.TranscriptEntry{Kind: model.EntryLog, Content: f.Reason + ": " + f.Frame, Timestamp: f.At}))
		}
		return true
	}

	if err := c.Prompt(line); err != nil {
		fmt.Fprintf(out, "-- prompt dropped: %v\n", err)
	}
	return true
}
