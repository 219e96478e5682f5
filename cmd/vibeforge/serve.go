package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"vibeforge/internal/config"
	"vibeforge/internal/generation"
	"vibeforge/internal/hub"
	"vibeforge/internal/orchestrator"
	"vibeforge/internal/sandbox"
	"vibeforge/internal/server"
	"vibeforge/internal/store"
	"vibeforge/internal/workspace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vibeforge HTTP server",
	Long: `Starts the orchestration service: the response pipeline on
POST /api/respond and the live event stream on GET /api/events.

The config file is watched while the server runs; changing logging.level
takes effect without a restart.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyLogLevel(cfg)

	st, err := store.Open(cfg.Store.DatabasePath, logger.Named("store"))
	if err != nil {
		return err
	}
	defer st.Close()

	sb, err := sandbox.NewLocal(cfg.Sandbox.Root, logger.Named("sandbox"))
	if err != nil {
		return err
	}
	ws, err := workspace.New(cfg.Workspace.Root, logger.Named("workspace"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen, err := generation.NewClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model, logger.Named("generation"))
	if err != nil {
		return err
	}

	commandTimeout, _ := cfg.CommandTimeout()
	generationTimeout, _ := cfg.GenerationTimeout()

	events := hub.New(logger.Named("hub"))
	orch := orchestrator.New(gen, sb, ws, st, st, events, orchestrator.Config{
		CommandTimeout:    commandTimeout,
		GenerationTimeout: generationTimeout,
	}, logger.Named("orchestrator"))

	srv := server.New(orch, events, st, st, logger.Named("server"))
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		events.Run(gctx)
		return nil
	})
	g.Go(func() error {
		watcher := config.NewWatcher(configPath, applyLogLevel, logger.Named("config"))
		return watcher.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func applyLogLevel(cfg *config.Config) {
	if verbose {
		return // --verbose wins over config
	}
	switch cfg.Logging.Level {
	case "debug":
		logLevel.SetLevel(zapcore.DebugLevel)
	case "warn":
		logLevel.SetLevel(zapcore.WarnLevel)
	case "error":
		logLevel.SetLevel(zapcore.ErrorLevel)
	case "info", "":
		logLevel.SetLevel(zapcore.InfoLevel)
	}
}
