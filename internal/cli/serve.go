package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/zerostick/agent-console/api/handlers"
	"github.com/zerostick/agent-console/internal/config"
	"github.com/zerostick/agent-console/internal/logger"
	"github.com/zerostick/agent-console/internal/ws"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the console over HTTP",
	Long: `Serve the console session over HTTP. Browsers read the session at
/api/session, submit prompts to /api/session/prompt and receive live
snapshots from the /api/session/stream WebSocket.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "HTTP listen address (default :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{config.KeyListenAddr: "listen"})
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := newConsole(cfg, log)
	viewers := ws.NewViewerHandler(c, log.Logger)
	viewersDone := make(chan struct{})
	go func() {
		defer close(viewersDone)
		viewers.Run(ctx)
	}()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handlers.NewRouter(c, viewers, log.Component("http")),
	}

	c.Mount()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info().Str("addr", cfg.ListenAddr).Str("agent_url", cfg.AgentURL).Msg("Starting server")

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down server...")
	}

	// Unmounting closes the snapshot stream, which disconnects the viewers.
	c.Unmount()
	<-viewersDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("failed to shut down server: %w", err)
	}
	return serveErr
}
