package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/projectdash/projectdash/internal/config"
	"github.com/projectdash/projectdash/internal/engine"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the local replica from the remote tracker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *engine.Engine, cfg config.Config) error {
			err := eng.Sync(ctx)
			fmt.Println(eng.SyncStatusSummary())
			for _, line := range eng.SyncDiagnosticLines() {
				fmt.Println("  " + line)
			}
			return err
		})
	},
}
