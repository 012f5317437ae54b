package engine

import (
	"strings"
	"testing"

	"github.com/projectdash/projectdash/internal/config"
	"github.com/projectdash/projectdash/internal/types"
)

func TestResolveStateID(t *testing.T) {
	states := map[string][]types.WorkflowState{
		"t1": {
			{ID: "s1", Name: "Todo", TeamID: "t1"},
			{ID: "s2", Name: "In Progress", TeamID: "t1"},
		},
	}

	tests := []struct {
		name        string
		mappings    map[string]string
		issue       types.Issue
		status      string
		wantStateID string
		wantWarning string
	}{
		{
			name:        "convention match is case-insensitive",
			issue:       types.Issue{ID: "PROJ-1", TeamID: "t1"},
			status:      "in progress",
			wantStateID: "s2",
		},
		{
			name:        "configured mapping by state id",
			mappings:    map[string]string{"in progress": "s1"},
			issue:       types.Issue{ID: "PROJ-1", TeamID: "t1"},
			status:      "In Progress",
			wantStateID: "s1",
		},
		{
			name:        "configured mapping by state name",
			mappings:    map[string]string{"done": "in progress"},
			issue:       types.Issue{ID: "PROJ-1", TeamID: "t1"},
			status:      "Done",
			wantStateID: "s2",
		},
		{
			name:        "configured mapping not in team states",
			mappings:    map[string]string{"done": "s99"},
			issue:       types.Issue{ID: "PROJ-1", TeamID: "t1"},
			status:      "Done",
			wantWarning: "configured mapping 's99' not found for team workflow states",
		},
		{
			name:        "configured mapping with no cached states",
			mappings:    map[string]string{"done": "s99"},
			issue:       types.Issue{ID: "PROJ-1", TeamID: "t-unknown"},
			status:      "Done",
			wantWarning: "configured mapping 's99' could not be validated (no team workflow states cached)",
		},
		{
			name:        "issue without team id",
			issue:       types.Issue{ID: "PROJ-1"},
			status:      "In Progress",
			wantWarning: "no team id on PROJ-1; unable to map status 'In Progress' to a workflow state id",
		},
		{
			name:        "team with no cached states",
			issue:       types.Issue{ID: "PROJ-1", TeamID: "t2"},
			status:      "In Progress",
			wantWarning: "no workflow states cached for team t2; run sync to populate state mapping",
		},
		{
			name:        "no mapping for status",
			issue:       types.Issue{ID: "PROJ-1", TeamID: "t1"},
			status:      "Blocked",
			wantWarning: "no mapping for status 'Blocked' in team t1; add linear_status_mappings.blocked in projectdash.config.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			for key, value := range tt.mappings {
				cfg.StatusMappings[strings.ToLower(key)] = value
			}
			stateID, warning := resolveStateID(&cfg, states, &tt.issue, tt.status)
			if stateID != tt.wantStateID {
				t.Errorf("stateID = %q, want %q", stateID, tt.wantStateID)
			}
			if warning != tt.wantWarning {
				t.Errorf("warning = %q\nwant      %q", warning, tt.wantWarning)
			}
		})
	}
}

func TestNextStatus(t *testing.T) {
	statuses := []string{"Todo", "In Progress", "Review", "Done"}
	tests := []struct {
		current string
		want    string
	}{
		{"Todo", "In Progress"},
		{"In Progress", "Review"},
		{"Done", "Todo"},
		{"Someday", "Todo"},
	}
	for _, tt := range tests {
		if got := nextStatus(tt.current, statuses); got != tt.want {
			t.Errorf("nextStatus(%q) = %q, want %q", tt.current, got, tt.want)
		}
	}
}

func TestNextPoints(t *testing.T) {
	tests := []struct {
		current, step, max, want int
	}{
		{0, 1, 13, 1},
		{12, 1, 13, 13},
		{13, 1, 13, 0},
		{12, 2, 13, 0},
		{0, 3, 13, 3},
	}
	for _, tt := range tests {
		if got := nextPoints(tt.current, tt.step, tt.max); got != tt.want {
			t.Errorf("nextPoints(%d, %d, %d) = %d, want %d", tt.current, tt.step, tt.max, got, tt.want)
		}
	}
}
