// Package types defines the entities held in the local replica of the
// remote tracker: users, projects, issues, workflow states, and sync
// history entries.
package types

import (
	"fmt"
	"time"
)

// User is a tracker member referenced by issue assignments.
// Users are rebuilt from issue assignees on every sync.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Project aggregates the issues that belong to it. The counts are derived
// during sync from the issue set; the project row is not independently
// authoritative.
type Project struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	IssuesCount     int    `json:"issues_count"`
	InProgressCount int    `json:"in_progress_count"`
	BlockedCount    int    `json:"blocked_count"`
	DueDate         string `json:"due_date"`
	Cycle           string `json:"cycle"`
}

// WorkflowState is a remote, team-scoped status object. It is distinct
// from the logical status label shown locally: multiple teams may carry
// differently named states for the same logical status.
type WorkflowState struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"` // unstarted, started, completed, ...
	TeamID  string `json:"team_id"`
	TeamKey string `json:"team_key,omitempty"`
}

// Issue is the locally cached copy of a remote issue. ID is the
// human-facing key (e.g. "PROJ-245"); LinearID is the opaque remote
// identifier used for mutations.
type Issue struct {
	ID          string    `json:"id"`
	LinearID    string    `json:"linear_id,omitempty"`
	Title       string    `json:"title"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	StateID     string    `json:"state_id,omitempty"`
	TeamID      string    `json:"team_id,omitempty"`
	Assignee    *User     `json:"assignee,omitempty"`
	Points      int       `json:"points"`
	ProjectID   string    `json:"project_id,omitempty"`
	DueDate     string    `json:"due_date,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the fields required for an issue to be persisted.
func (i *Issue) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("id is required")
	}
	if i.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// SetDefaults applies defaults for optional fields so cached rows behave
// consistently regardless of which path created them.
func (i *Issue) SetDefaults() {
	if i.Status == "" {
		i.Status = "Todo"
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now()
	}
}

// AssigneeID returns the assignee's user id, or "" when unassigned.
func (i *Issue) AssigneeID() string {
	if i.Assignee == nil {
		return ""
	}
	return i.Assignee.ID
}

// RemoteID returns the identifier to use for remote mutations: the opaque
// remote id when known, otherwise the human-facing key.
func (i *Issue) RemoteID() string {
	if i.LinearID != "" {
		return i.LinearID
	}
	return i.ID
}

// Sync attempt results.
const (
	SyncResultSuccess = "success"
	SyncResultFailed  = "failed"
	SyncResultSyncing = "syncing"
	SyncResultIdle    = "idle"
)

// SyncAttempt records the outcome of one sync run: when it happened, how
// it ended, and a per-pipeline-step diagnostics map ("ok: ..." or
// "failed: ...").
type SyncAttempt struct {
	Seq         int64             `json:"seq"`
	CreatedAt   string            `json:"created_at"`
	Result      string            `json:"result"`
	Summary     string            `json:"summary"`
	Diagnostics map[string]string `json:"diagnostics,omitempty"`
}
