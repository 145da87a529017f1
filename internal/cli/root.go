// Package cli implements the agent-console command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zerostick/agent-console/internal/config"
	"github.com/zerostick/agent-console/internal/console"
	"github.com/zerostick/agent-console/internal/logger"
	"github.com/zerostick/agent-console/internal/ws"
)

const version = "0.1.0"

var (
	cfgFile  string
	agentURL string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "agent-console",
	Short: "Operator console for a remote animation agent",
	Long: `agent-console keeps a session open with a remote animation agent over
WebSocket, reconnecting whenever the link drops. Prompts are submitted from
the terminal (repl) or over HTTP (serve); the agent's narration and the
latest generated animation are shown as they arrive.`,
	Version:      version,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (json, yaml or toml)")
	rootCmd.PersistentFlags().StringVar(&agentURL, "agent-url", "", "agent WebSocket endpoint (default ws://localhost:8000/ws)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadConfig reads the configuration. Flags set on the command line win
// over the environment, which wins over the config file.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	loader := config.NewLoader(cfgFile)

	flags := map[string]string{
		config.KeyAgentURL: "agent-url",
		config.KeyLogLevel: "log-level",
	}
	for key, name := range bindings {
		flags[key] = name
	}
	for key, name := range flags {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.Root().PersistentFlags().Lookup(name)
		}
		if err := loader.BindFlag(key, flag); err != nil {
			return nil, err
		}
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newConsole creates the session console described by cfg.
func newConsole(cfg *config.Config, log *logger.Logger) *console.Console {
	return console.New(console.Config{
		AgentURL:        cfg.AgentURL,
		DiagnosticsSize: cfg.DiagnosticsSize,
		Dialer:          ws.NewWebSocketDialer().WithDeadlines(cfg.WriteWait, cfg.PongWait),
		Logger:          log.Logger,
	})
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
