package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/drblury/routeflow/internal/runtime/config"
	loggingpkg "github.com/drblury/routeflow/internal/runtime/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "routeflow",
	Short: "Chain REST calls and route the results through a message broker",
	Long: "routeflow serves the combinedApi and apiKafka trigger routes and consumes the " +
		"correlation topic, calling the users and posts endpoints for every run.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default "+config.DefaultFile+" when present)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := loggingpkg.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger := loggingpkg.NewJSONSlog(w, lvl)
	slog.SetDefault(logger)
	return logger, nil
}
