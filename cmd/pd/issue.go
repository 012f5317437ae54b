package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/projectdash/projectdash/internal/config"
	"github.com/projectdash/projectdash/internal/engine"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Edit a cached issue and write the change through to the remote",
}

var issueStatusCmd = &cobra.Command{
	Use:   "status <issue-id>",
	Short: "Advance an issue to the next status in the configured cycle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(func(ctx context.Context, eng *engine.Engine, cfg config.Config) (bool, string) {
			return eng.CycleIssueStatus(ctx, args[0], cfg.KanbanStatuses)
		})
	},
}

var issueAssignCmd = &cobra.Command{
	Use:   "assign <issue-id>",
	Short: "Advance an issue's assignee through the known users",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(func(ctx context.Context, eng *engine.Engine, cfg config.Config) (bool, string) {
			return eng.CycleIssueAssignee(ctx, args[0])
		})
	},
}

var issuePointsCmd = &cobra.Command{
	Use:   "points <issue-id>",
	Short: "Advance an issue's estimate, wrapping past the maximum",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(func(ctx context.Context, eng *engine.Engine, cfg config.Config) (bool, string) {
			return eng.CycleIssuePoints(ctx, args[0], cfg.PointsStep, cfg.PointsMax)
		})
	},
}

func init() {
	issueCmd.AddCommand(issueStatusCmd)
	issueCmd.AddCommand(issueAssignCmd)
	issueCmd.AddCommand(issuePointsCmd)
}

// runMutation executes one write-through edit and reports its message.
// A failed mutation is a non-zero exit but its message still prints.
func runMutation(mutate func(ctx context.Context, eng *engine.Engine, cfg config.Config) (bool, string)) error {
	return withEngine(func(ctx context.Context, eng *engine.Engine, cfg config.Config) error {
		ok, message := mutate(ctx, eng, cfg)
		fmt.Println(message)
		if !ok {
			return fmt.Errorf("update rejected")
		}
		return nil
	})
}
