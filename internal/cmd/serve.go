package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/selfie2snap/selfie2snap/internal/api"
	"github.com/selfie2snap/selfie2snap/internal/config"
	"github.com/selfie2snap/selfie2snap/internal/event"
	"github.com/selfie2snap/selfie2snap/internal/eventsink"
	"github.com/selfie2snap/selfie2snap/internal/gallery"
	"github.com/selfie2snap/selfie2snap/internal/logging"
	"github.com/selfie2snap/selfie2snap/internal/session"
	"github.com/selfie2snap/selfie2snap/internal/sse"
	"github.com/selfie2snap/selfie2snap/internal/store"
)

const (
	sessionIdleTimeout = 30 * time.Minute
	sessionSweepEvery  = time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API. Clients create a session, upload a left and a right
portrait, pick options and submit. Job progress streams over
Server-Sent Events (/v1/jobs/:id/events) or a WebSocket (/v1/jobs/:id/ws).

Editing generation.max_concurrent in the config file takes effect
without a restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	logger, err := newLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gin.SetMode(cfg.Server.Mode)
	return serve(ctx, cfg, logger)
}

// serve wires every component and blocks until ctx is cancelled or the
// HTTP server fails.
func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	bus := event.NewBus()

	orch, err := newOrchestrator(ctx, cfg, bus, logger)
	if err != nil {
		return err
	}
	defer orch.Close()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	rec := store.NewRecorder(st, orch, bus, logger)
	defer rec.Close()

	gal := gallery.New(bus, st, logger)
	defer gal.Close()

	prefs, err := openSettings(ctx, cfg.Paths, bus, logger)
	if err != nil {
		return err
	}
	defaults, err := sessionDefaults(cfg.Generation)
	if err != nil {
		return err
	}
	sessions := session.NewManager(orch, bus, defaults, prefs, logger)

	if cfg.Events.AMQPURL != "" {
		sink, err := eventsink.Dial(cfg.Events.AMQPURL, cfg.Events.Exchange, eventsink.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to connect event sink: %w", err)
		}
		defer sink.Close()
		sink.Attach(bus)
	}

	hub := sse.NewHub(logger)
	defer bus.Unsubscribe(sse.Forward(bus, hub))

	watchConfig(orch, logger)

	srv := api.New(api.Deps{
		Sessions: sessions,
		Jobs:     orch,
		Gallery:  gal,
		Hub:      hub,
		Store:    st,
		Settings: prefs,
		Logger:   logger,
	}, api.WithMaxUploadBytes(cfg.Server.MaxUploadBytes()))

	logger.Info("selfie2snap starting",
		"addr", cfg.Server.Addr,
		"provider", cfg.Provider.Backend,
		"store", cfg.Store.Backend,
		"max_concurrent", cfg.Generation.MaxConcurrent)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sweepSessions(gctx, sessions, logger)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout())
	})
	return g.Wait()
}

// sweepSessions drops idle sessions until ctx is cancelled.
func sweepSessions(ctx context.Context, sessions *session.Manager, logger *logging.Logger) {
	ticker := time.NewTicker(sessionSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(sessionIdleTimeout); n > 0 {
				logger.Info("swept idle sessions", "count", n, "remaining", sessions.Len())
			}
		}
	}
}
