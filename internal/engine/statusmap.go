package engine

import (
	"fmt"
	"strings"

	"github.com/projectdash/projectdash/internal/config"
	"github.com/projectdash/projectdash/internal/types"
)

// resolveStateID maps a logical status name to the workflow-state id of
// the issue's team: configured overrides first (matched against state id
// or state name), then a case-insensitive name match. Returns the state
// id, or "" plus a warning describing why no mapping exists. Pure: no
// network, no state mutation.
func resolveStateID(cfg *config.Config, statesByTeam map[string][]types.WorkflowState, issue *types.Issue, status string) (string, string) {
	statusKey := strings.ToLower(strings.TrimSpace(status))
	teamStates := statesByTeam[issue.TeamID]

	if mapped, ok := cfg.StatusMapping(statusKey); ok {
		mappedKey := strings.ToLower(mapped)
		for _, state := range teamStates {
			if state.ID == mapped || strings.ToLower(state.Name) == mappedKey {
				return state.ID, ""
			}
		}
		if len(teamStates) > 0 {
			return "", fmt.Sprintf("configured mapping '%s' not found for team workflow states", mapped)
		}
		return "", fmt.Sprintf("configured mapping '%s' could not be validated (no team workflow states cached)", mapped)
	}

	for _, state := range teamStates {
		if strings.ToLower(state.Name) == statusKey {
			return state.ID, ""
		}
	}

	if issue.TeamID == "" {
		return "", fmt.Sprintf("no team id on %s; unable to map status '%s' to a workflow state id", issue.ID, status)
	}
	if len(teamStates) == 0 {
		return "", fmt.Sprintf("no workflow states cached for team %s; run sync to populate state mapping", issue.TeamID)
	}
	return "", fmt.Sprintf(
		"no mapping for status '%s' in team %s; add linear_status_mappings.%s in %s",
		status, issue.TeamID, statusKey, config.DefaultConfigFile,
	)
}
