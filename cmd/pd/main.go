// Command pd is the projectdash CLI: it maintains a local replica of the
// remote tracker and pushes single-field issue edits back through it.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/projectdash/projectdash/internal/config"
	"github.com/projectdash/projectdash/internal/engine"
	"github.com/projectdash/projectdash/internal/linear"
	"github.com/projectdash/projectdash/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "pd",
	Short: "Local replica of your tracker's projects and issues",
	Long: `projectdash keeps a queryable local copy of users, projects, issues,
and workflow states from the remote tracker, and lets you edit issues
locally with write-through to the remote.

Credentials come from LINEAR_API_KEY (a .env file is honored).`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(issueCmd)
}

// withEngine loads the environment and settings, opens the replica
// store, initializes the engine, and hands control to fn.
func withEngine(fn func(ctx context.Context, eng *engine.Engine, cfg config.Config) error) error {
	// Missing .env is fine; the environment may carry the key already.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := log.New(&lumberjack.Logger{
		Filename:   "projectdash.log",
		MaxSize:    5, // megabytes
		MaxBackups: 3,
	}, "[pd] ", log.LstdFlags)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	eng := engine.New(cfg, st, linear.NewClient(cfg.APIKey), logger)
	if err := eng.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	return fn(ctx, eng, cfg)
}
