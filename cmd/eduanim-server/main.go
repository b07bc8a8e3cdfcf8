package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/apresai/eduanim/internal/config"
	"github.com/apresai/eduanim/internal/observability"
	"github.com/apresai/eduanim/internal/server"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "eduanim-server",
		Short:        "Serve the video generation API and web UI",
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	return cmd
}

func serve(ctx context.Context, configPath string) error {
	logger := observability.InitLogger()
	logger.Info("eduanim server starting", "version", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		return fmt.Errorf("load config: %w", err)
	}

	tp, err := observability.InitTracer(ctx, "eduanim-server", version, cfg.Environment)
	if err != nil {
		logger.Warn("Failed to init tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("Tracer shutdown error", "error", err)
			}
		}()
	}

	srv, closeFn, err := server.Build(ctx, cfg, version, logger)
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		return fmt.Errorf("create server: %w", err)
	}
	defer closeFn()

	if err := srv.Start(ctx); err != nil {
		logger.Error("Server error", "error", err)
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}
