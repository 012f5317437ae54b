package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/projectdash/projectdash/internal/config"
	"github.com/projectdash/projectdash/internal/engine"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cached replica and the most recent sync outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *engine.Engine, cfg config.Config) error {
			state := eng.State()
			fmt.Printf("config: %s\n", cfg.Source)
			fmt.Printf("replica: %d users, %d projects, %d issues, %d teams\n",
				len(state.Users), len(state.Projects), len(state.Issues), len(state.WorkflowStatesByTeam))
			if state.LastSyncAt != "" {
				fmt.Printf("last sync: %s\n", state.LastSyncAt)
			}

			for _, project := range eng.Projects() {
				fmt.Printf("%-20s %-10s issues:%-3d in-progress:%-3d blocked:%-3d due:%s\n",
					project.Name, project.Status, project.IssuesCount,
					project.InProgressCount, project.BlockedCount, project.DueDate)
			}

			for _, status := range cfg.KanbanStatuses {
				issues := eng.IssuesByStatus(status)
				if len(issues) == 0 {
					continue
				}
				fmt.Printf("\n%s (%d)\n", status, len(issues))
				for _, issue := range issues {
					assignee := "Unassigned"
					if issue.Assignee != nil {
						assignee = issue.Assignee.Name
					}
					fmt.Printf("  %-12s %-30s %s, %dpt\n", issue.ID, issue.Title, assignee, issue.Points)
				}
			}
			return nil
		})
	},
}
