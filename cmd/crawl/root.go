package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Harvey-AU/knowledge-crawler/internal/config"
	"github.com/Harvey-AU/knowledge-crawler/internal/db"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "(devel)"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Build and size knowledge bases by crawling websites",
		Long: `crawl fetches a site breadth-first to a bounded depth, stores every
HTML page it finds and records how many pages each run extracted.

Storage, crawl defaults and logging are read from the same environment
variables and .env files as the HTTP service.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewPredictCmd())
	cmd.AddCommand(NewTrainCmd())
	cmd.AddCommand(NewPagesCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// environment is the configuration and storage shared by every subcommand
type environment struct {
	cfg *config.Config
	db  *db.DB
}

// openEnvironment loads configuration, configures logging and opens storage.
func openEnvironment(ctx context.Context, cmd *cobra.Command) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	setupLogging(cmd, cfg.LogLevel, verbose)

	database, err := db.InitWithRetry(ctx, cfg.DB, db.RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
		Jitter:          true,
	})
	if err != nil {
		return nil, err
	}

	return &environment{cfg: cfg, db: database}, nil
}

func (e *environment) Close() {
	if err := e.db.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database")
	}
}

// setupLogging writes human-readable logs to the command's error stream
func setupLogging(cmd *cobra.Command, levelName string, verbose bool) {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.WarnLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
		With().
		Timestamp().
		Logger()
}
