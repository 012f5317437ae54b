package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/projectdash/projectdash/internal/config"
	"github.com/projectdash/projectdash/internal/engine"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync attempts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *engine.Engine, cfg config.Config) error {
			lines := eng.LatestSyncHistoryLines(historyLimit)
			if len(lines) == 0 {
				fmt.Println("no sync attempts recorded")
				return nil
			}
			for _, line := range lines {
				fmt.Println(line)
			}
			return nil
		})
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of attempts to show (0 for all)")
}
