package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/projectdash/projectdash/internal/linear"
	"github.com/projectdash/projectdash/internal/types"
)

// Pipeline step keys recorded in sync diagnostics.
const (
	stepAuth           = "auth"
	stepProjects       = "projects"
	stepWorkflowStates = "workflow_states"
	stepIssues         = "issues"
	stepPersist        = "persist"
	stepReload         = "reload"
	stepUnexpected     = "unexpected"
)

// errSyncFailed marks a handled pipeline failure; details live in the
// state's diagnostics and LastSyncError.
var errSyncFailed = errors.New("sync failed")

// Sync runs the full refresh pipeline: auth check, fetch projects,
// workflow states and issues, aggregate, persist, reload. The pipeline
// is strictly sequential and aborts on the first failure; whatever
// happens, one SyncAttempt is recorded and the in-progress flag is
// cleared. A panic is recorded under the "unexpected" step and then
// propagated.
func (e *Engine) Sync(ctx context.Context) error {
	e.state.SyncInProgress = true
	e.state.LastSyncError = ""
	e.state.LastSyncResult = types.SyncResultSyncing
	e.state.SyncDiagnostics = map[string]string{}
	e.state.LastSyncCounts = map[string]int{}

	defer func() {
		if r := recover(); r != nil {
			e.state.LastSyncError = fmt.Sprint(r)
			e.state.LastSyncResult = types.SyncResultFailed
			e.state.SyncDiagnostics[stepUnexpected] = fmt.Sprintf("failed: %v", r)
			e.recordSyncHistory(ctx)
			e.state.SyncInProgress = false
			panic(r)
		}
		e.recordSyncHistory(ctx)
		e.state.SyncInProgress = false
	}()

	if !e.cfg.HasCredential() {
		return e.failSync(stepAuth, "LINEAR_API_KEY not set", "LINEAR_API_KEY not set")
	}

	e.logger.Printf("sync: testing connection")
	viewer, err := e.client.Me(ctx)
	if err != nil {
		return e.failSync(stepAuth, fmt.Sprintf("auth failed: %v", err), err.Error())
	}
	e.logger.Printf("sync: authenticated as %s", viewer.Name)
	e.state.SyncDiagnostics[stepAuth] = fmt.Sprintf("ok: %s", viewer.Name)

	e.logger.Printf("sync: fetching projects")
	projectNodes, err := e.client.Projects(ctx)
	if err != nil {
		return e.failSync(stepProjects, fmt.Sprintf("projects fetch failed: %v", err), err.Error())
	}
	e.state.SyncDiagnostics[stepProjects] = fmt.Sprintf("ok: %d", len(projectNodes))

	e.logger.Printf("sync: fetching workflow states")
	teamNodes, err := e.client.TeamWorkflowStates(ctx)
	if err != nil {
		return e.failSync(stepWorkflowStates, fmt.Sprintf("workflow states fetch failed: %v", err), err.Error())
	}
	e.state.SyncDiagnostics[stepWorkflowStates] = fmt.Sprintf("ok: %d teams", len(teamNodes))

	e.logger.Printf("sync: fetching issues")
	issueNodes, err := e.client.Issues(ctx)
	if err != nil {
		return e.failSync(stepIssues, fmt.Sprintf("issues fetch failed: %v", err), err.Error())
	}
	e.state.SyncDiagnostics[stepIssues] = fmt.Sprintf("ok: %d", len(issueNodes))

	e.state.WorkflowStatesByTeam = workflowStatesByTeam(teamNodes)

	users, issues := buildIssues(issueNodes)
	projects := buildProjects(projectNodes, issues)

	if err := e.persistReplica(ctx, users, projects, issues); err != nil {
		return e.failSync(stepPersist, fmt.Sprintf("persist failed: %v", err), err.Error())
	}
	e.state.SyncDiagnostics[stepPersist] = "ok"

	if err := e.LoadFromCache(ctx); err != nil {
		return e.failSync(stepReload, fmt.Sprintf("reload failed: %v", err), err.Error())
	}
	e.state.SyncDiagnostics[stepReload] = "ok"

	e.state.LastSyncCounts = map[string]int{
		"users":    len(e.state.Users),
		"projects": len(e.state.Projects),
		"issues":   len(e.state.Issues),
		"teams":    len(e.state.WorkflowStatesByTeam),
	}
	e.state.LastSyncAt = time.Now().Format(timestampLayout)
	e.state.LastSyncResult = types.SyncResultSuccess
	e.logger.Printf("sync: complete (%s)", e.syncSummaryCore())
	return nil
}

// failSync records a handled pipeline failure under the given step and
// stops the pipeline.
func (e *Engine) failSync(step, summary, detail string) error {
	e.state.LastSyncError = summary
	e.state.LastSyncResult = types.SyncResultFailed
	e.state.SyncDiagnostics[step] = fmt.Sprintf("failed: %s", detail)
	e.logger.Printf("sync: %s", summary)
	return fmt.Errorf("%w: %s", errSyncFailed, summary)
}

// persistReplica writes the freshly built replica in a fixed order:
// users, projects, issues, then the flattened workflow states.
func (e *Engine) persistReplica(ctx context.Context, users []types.User, projects []types.Project, issues []*types.Issue) error {
	if err := e.store.SaveUsers(ctx, users); err != nil {
		return err
	}
	if err := e.store.SaveProjects(ctx, projects); err != nil {
		return err
	}
	if err := e.store.SaveIssues(ctx, issues); err != nil {
		return err
	}
	return e.store.SaveWorkflowStates(ctx, flattenWorkflowStates(e.state.WorkflowStatesByTeam))
}

// workflowStatesByTeam maps the remote team nodes to the per-team cache,
// dropping states without an id or name.
func workflowStatesByTeam(teams []linear.TeamNode) map[string][]types.WorkflowState {
	byTeam := map[string][]types.WorkflowState{}
	for _, team := range teams {
		if team.ID == "" {
			continue
		}
		states := make([]types.WorkflowState, 0, len(team.States))
		for _, state := range team.States {
			if state.ID == "" || state.Name == "" {
				continue
			}
			stateType := state.Type
			if stateType == "" {
				stateType = "unstarted"
			}
			states = append(states, types.WorkflowState{
				ID:      state.ID,
				Name:    state.Name,
				Type:    stateType,
				TeamID:  team.ID,
				TeamKey: team.Key,
			})
		}
		byTeam[team.ID] = states
	}
	return byTeam
}

func flattenWorkflowStates(byTeam map[string][]types.WorkflowState) []types.WorkflowState {
	var flattened []types.WorkflowState
	for _, states := range byTeam {
		flattened = append(flattened, states...)
	}
	return flattened
}

// buildIssues maps remote issue nodes into replica issues and collects
// their assignees as the user set, deduplicated by id.
func buildIssues(nodes []linear.IssueNode) ([]types.User, []*types.Issue) {
	seen := map[string]types.User{}
	var users []types.User
	issues := make([]*types.Issue, 0, len(nodes))

	for i := range nodes {
		node := &nodes[i]
		issue := issueFromNode(node)
		if node.Assignee != nil {
			user, ok := seen[node.Assignee.ID]
			if !ok {
				user = types.User{
					ID:        node.Assignee.ID,
					Name:      node.Assignee.Name,
					AvatarURL: node.Assignee.AvatarURL,
				}
				seen[user.ID] = user
				users = append(users, user)
			}
			assignee := user
			issue.Assignee = &assignee
		}
		issues = append(issues, issue)
	}
	return users, issues
}

// issueFromNode maps one remote issue node to a replica issue. The
// assignee is attached by the caller.
func issueFromNode(node *linear.IssueNode) *types.Issue {
	issue := &types.Issue{
		ID:          node.Identifier,
		LinearID:    node.ID,
		Title:       node.Title,
		Priority:    formatPriority(node.Priority),
		Status:      "Todo",
		TeamID:      node.TeamID,
		Points:      int(node.Estimate),
		ProjectID:   node.ProjectID,
		DueDate:     node.DueDate,
		Description: node.Description,
		CreatedAt:   node.CreatedAt,
	}
	if node.State != nil {
		issue.Status = node.State.Name
		issue.StateID = node.State.ID
	}
	issue.SetDefaults()
	return issue
}

// formatPriority renders the remote numeric priority as the label stored
// locally: whole numbers lose the trailing ".0".
func formatPriority(priority float64) string {
	return strconv.FormatFloat(priority, 'f', -1, 64)
}

// buildProjects maps remote project nodes to replica projects with
// aggregate counts derived from the issue set.
func buildProjects(nodes []linear.ProjectNode, issues []*types.Issue) []types.Project {
	byProject := map[string][]*types.Issue{}
	for _, issue := range issues {
		if issue.ProjectID != "" {
			byProject[issue.ProjectID] = append(byProject[issue.ProjectID], issue)
		}
	}

	projects := make([]types.Project, 0, len(nodes))
	for _, node := range nodes {
		projectIssues := byProject[node.ID]
		inProgress := 0
		blocked := 0
		for _, issue := range projectIssues {
			if issue.Status == "In Progress" || issue.Status == "Review" {
				inProgress++
			}
			if strings.Contains(strings.ToLower(issue.Status), "blocked") {
				blocked++
			}
		}
		status := node.State
		if status == "" {
			status = "Active"
		}
		dueDate := node.TargetDate
		if dueDate == "" {
			dueDate = "N/A"
		}
		projects = append(projects, types.Project{
			ID:              node.ID,
			Name:            node.Name,
			Status:          status,
			IssuesCount:     len(projectIssues),
			InProgressCount: inProgress,
			BlockedCount:    blocked,
			DueDate:         dueDate,
			Cycle:           "Current",
		})
	}
	return projects
}
