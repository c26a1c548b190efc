package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"

	"github.com/foldersmith/foldersmith/internal/slackbot"
	"github.com/foldersmith/foldersmith/pkg/config"
	"github.com/foldersmith/foldersmith/pkg/logging"
	"github.com/foldersmith/foldersmith/pkg/metrics"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the Slack events endpoint",
	Long: `Serve the Slack Events API endpoint, a health check and Prometheus
metrics until interrupted.

Endpoints:
  server.events_path   Slack event callbacks (default /slack/events)
  /healthz             liveness
  server.metrics_path  Prometheus metrics (default /metrics)

On SIGINT or SIGTERM the server stops accepting requests and waits for
running clones to reply before exiting.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateServer(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc, err := newService(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		bot := slackbot.NewHandler(cfg.Slack.SigningSecret, svc.orch, slack.New(cfg.Slack.BotToken),
			slackbot.WithCloneTimeout(cfg.Slack.CloneTimeout))
		srv := &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           newServeMux(cfg, bot),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logging.Info("listening", map[string]any{
				"addr":     srv.Addr,
				"backends": cfg.Backends,
			})
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve: %w", err)
			}
		case <-ctx.Done():
			logging.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			bot.Wait()
		}
		return nil
	},
}

func newServeMux(cfg *config.Config, events http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(cfg.Server.EventsPath, events)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})
	if cfg.Server.MetricsPath != "" {
		mux.Handle(cfg.Server.MetricsPath, metrics.Default().Handler())
	}
	return mux
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
