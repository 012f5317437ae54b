package engine

import (
	"context"
	"fmt"

	"github.com/projectdash/projectdash/internal/linear"
	"github.com/projectdash/projectdash/internal/types"
)

// Mutation failure prefixes.
const (
	statusFailurePrefix   = "Status update failed"
	assigneeFailurePrefix = "Assignee update failed"
	estimateFailurePrefix = "Estimate update failed"
)

// nextStatus picks the status after current in the configured cycle. A
// current status not present in the cycle resets to the first entry.
func nextStatus(current string, statuses []string) string {
	for i, status := range statuses {
		if status == current {
			return statuses[(i+1)%len(statuses)]
		}
	}
	return statuses[0]
}

// nextAssignee picks the assignee after current in the cycle
// [unassigned, users...]. nil means unassigned on both sides.
func nextAssignee(current *types.User, users []types.User) *types.User {
	currentIndex := 0
	if current != nil {
		for i := range users {
			if users[i].ID == current.ID {
				currentIndex = i + 1
				break
			}
		}
	}
	nextIndex := (currentIndex + 1) % (len(users) + 1)
	if nextIndex == 0 {
		return nil
	}
	user := users[nextIndex-1]
	return &user
}

// nextPoints advances the estimate by step, wrapping to 0 past max.
func nextPoints(current, step, max int) int {
	next := current + step
	if next > max {
		return 0
	}
	return next
}

// CycleIssueStatus advances an issue to the next status in the given
// cycle, resolves the team's workflow-state id, and writes the change
// through to the remote. Mapping failures roll back the local change
// without any remote call.
func (e *Engine) CycleIssueStatus(ctx context.Context, issueID string, statuses []string) (bool, string) {
	issue := e.IssueByID(issueID)
	if issue == nil {
		return false, fmt.Sprintf("Issue not found: %s", issueID)
	}
	if len(statuses) == 0 {
		return false, "No configured statuses"
	}

	next := nextStatus(issue.Status, statuses)
	previousStatus := issue.Status
	previousStateID := issue.StateID

	issue.Status = next
	stateID, warning := resolveStateID(&e.cfg, e.state.WorkflowStatesByTeam, issue, next)
	if stateID == "" {
		issue.Status = previousStatus
		issue.StateID = previousStateID
		if warning == "" {
			warning = fmt.Sprintf("no workflow state mapping for status '%s'", next)
		}
		return false, fmt.Sprintf("%s: %s", statusFailurePrefix, warning)
	}
	issue.StateID = stateID

	ok, message := e.writeThrough(ctx, issue,
		func() {
			issue.Status = previousStatus
			issue.StateID = previousStateID
		},
		func() error {
			return e.client.UpdateIssueStatus(ctx, issue.RemoteID(), issue.StateID)
		},
		statusFailurePrefix,
	)
	if !ok {
		return false, message
	}
	if warning != "" {
		return true, fmt.Sprintf("%s moved to %s (warning: %s)", issue.ID, next, warning)
	}
	return true, fmt.Sprintf("%s moved to %s", issue.ID, next)
}

// CycleIssueAssignee advances an issue's assignee through
// [unassigned, all known users] and writes the change through.
func (e *Engine) CycleIssueAssignee(ctx context.Context, issueID string) (bool, string) {
	issue := e.IssueByID(issueID)
	if issue == nil {
		return false, fmt.Sprintf("Issue not found: %s", issueID)
	}

	previousAssignee := issue.Assignee
	issue.Assignee = nextAssignee(issue.Assignee, e.state.Users)

	ok, message := e.writeThrough(ctx, issue,
		func() {
			issue.Assignee = previousAssignee
		},
		func() error {
			return e.client.UpdateIssueAssignee(ctx, issue.RemoteID(), issue.AssigneeID())
		},
		assigneeFailurePrefix,
	)
	if !ok {
		return false, message
	}
	name := "Unassigned"
	if issue.Assignee != nil {
		name = issue.Assignee.Name
	}
	return true, fmt.Sprintf("%s assigned to %s", issue.ID, name)
}

// CycleIssuePoints advances an issue's estimate by step, wrapping to 0
// past max, and writes the change through. Non-positive step/max fall
// back to the defaults (1 and 13).
func (e *Engine) CycleIssuePoints(ctx context.Context, issueID string, step, max int) (bool, string) {
	issue := e.IssueByID(issueID)
	if issue == nil {
		return false, fmt.Sprintf("Issue not found: %s", issueID)
	}
	if step <= 0 {
		step = 1
	}
	if max <= 0 {
		max = 13
	}

	previousPoints := issue.Points
	issue.Points = nextPoints(issue.Points, step, max)

	ok, message := e.writeThrough(ctx, issue,
		func() {
			issue.Points = previousPoints
		},
		func() error {
			return e.client.UpdateIssueEstimate(ctx, issue.RemoteID(), issue.Points)
		},
		estimateFailurePrefix,
	)
	if !ok {
		return false, message
	}
	return true, fmt.Sprintf("%s estimate set to %d", issue.ID, issue.Points)
}

// writeThrough finishes an optimistic mutation: push the change remotely,
// and on remote failure restore the previous field values, reconcile
// conflict-class rejections, and report a classified reason. On remote
// success the issue is persisted; a persistence failure also rolls back,
// so the in-memory issue is never ahead of durable storage.
func (e *Engine) writeThrough(ctx context.Context, issue *types.Issue, restore func(), push func() error, prefix string) (bool, string) {
	if err := push(); err != nil {
		restore()
		reconcileSuffix := ""
		if linear.ShouldReconcile(err) {
			reconcileSuffix = e.reconcileAfterConflict(ctx, issue)
		}
		return false, fmt.Sprintf("%s: %s%s", prefix, linear.FormatFailure(err), reconcileSuffix)
	}

	if err := e.store.SaveIssues(ctx, []*types.Issue{issue}); err != nil {
		restore()
		return false, fmt.Sprintf("%s: %v", prefix, err)
	}
	return true, ""
}
