package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/drblury/routeflow/internal/runtime"
	loggingpkg "github.com/drblury/routeflow/internal/runtime/logging"
	"github.com/drblury/routeflow/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the trigger routes and run the consumer until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		slogger, err := setupLogger(cmd.OutOrStdout(), cfg.LogLevel)
		if err != nil {
			return err
		}
		logger := loggingpkg.NewSlogServiceLogger(slogger)

		if cfg.TracingEnabled {
			shutdown, err := telemetry.InitTracer(cfg.ServiceName, cmd.ErrOrStderr(), logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error("Failed to shut down tracer", err, nil)
				}
			}()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := runtime.NewService(ctx, cfg, logger, runtime.ServiceDependencies{})
		if err != nil {
			return err
		}
		defer func() {
			if err := svc.Close(); err != nil {
				logger.Error("Failed to close service", err, nil)
			}
		}()

		logger.Info("routeflow starting", loggingpkg.LogFields{
			"transport": cfg.PubSubSystem,
			"trigger":   cfg.TriggerAddress,
			"consumer":  cfg.ConsumerEnabled,
		})
		if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info("routeflow stopped", nil)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
