// Package engine owns the local replica of the remote tracker and keeps
// it consistent: a pull-sync coordinator that refreshes the replica with
// per-step diagnostics, and a mutation coordinator that applies issue
// edits locally first, pushes them remotely, and rolls back or reconciles
// when the push fails.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/projectdash/projectdash/internal/config"
	"github.com/projectdash/projectdash/internal/linear"
	"github.com/projectdash/projectdash/internal/types"
)

// Store is the persistence surface the engine requires. *store.Store
// satisfies it.
type Store interface {
	InitSchema(ctx context.Context) error
	SaveUsers(ctx context.Context, users []types.User) error
	SaveProjects(ctx context.Context, projects []types.Project) error
	SaveIssues(ctx context.Context, issues []*types.Issue) error
	SaveWorkflowStates(ctx context.Context, states []types.WorkflowState) error
	GetUsers(ctx context.Context) ([]types.User, error)
	GetProjects(ctx context.Context) ([]types.Project, error)
	GetIssues(ctx context.Context) ([]*types.Issue, error)
	GetWorkflowStates(ctx context.Context) ([]types.WorkflowState, error)
	AppendSyncHistory(ctx context.Context, attempt types.SyncAttempt) error
	GetSyncHistory(ctx context.Context, limit int) ([]types.SyncAttempt, error)
}

// State is the process-scoped snapshot the engine owns. It transitions
// only at defined points: Initialize, LoadFromCache, Sync, and the
// mutation operations. Callers are expected to serialize access; the
// engine takes no locks.
type State struct {
	Users                []types.User
	Projects             []types.Project
	Issues               []*types.Issue
	WorkflowStatesByTeam map[string][]types.WorkflowState

	Initialized    bool
	SyncInProgress bool

	LastSyncAt      string
	LastSyncError   string
	LastSyncResult  string
	SyncDiagnostics map[string]string
	LastSyncCounts  map[string]int

	// SyncHistory mirrors the persisted history, newest first. Refreshed
	// after every append and every LoadFromCache.
	SyncHistory []types.SyncAttempt
}

// Engine coordinates the local store, the remote client, and the
// in-memory state.
type Engine struct {
	cfg    config.Config
	store  Store
	client linear.Client
	logger *log.Logger
	state  State
}

// New creates an engine. If logger is nil, a default stderr logger is
// used.
func New(cfg config.Config, st Store, client linear.Client, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	return &Engine{
		cfg:    cfg,
		store:  st,
		client: client,
		logger: logger,
		state:  newState(),
	}
}

func newState() State {
	return State{
		WorkflowStatesByTeam: map[string][]types.WorkflowState{},
		LastSyncResult:       types.SyncResultIdle,
		SyncDiagnostics:      map[string]string{},
		LastSyncCounts:       map[string]int{},
	}
}

// State returns the engine's snapshot. The pointer is owned by the
// engine; readers must not retain it across engine calls.
func (e *Engine) State() *State {
	return &e.state
}

// Initialize resets the state, creates the store schema, and loads the
// cached replica. When seeding is enabled and the replica is empty, demo
// data is seeded and reloaded.
func (e *Engine) Initialize(ctx context.Context) error {
	e.state = newState()
	if err := e.store.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := e.LoadFromCache(ctx); err != nil {
		return err
	}
	e.state.Initialized = true

	if len(e.state.Users) == 0 && e.cfg.SeedMockData {
		if err := e.SeedMockData(ctx); err != nil {
			return err
		}
		if err := e.LoadFromCache(ctx); err != nil {
			return err
		}
	}
	return nil
}

// LoadFromCache replaces the in-memory snapshot with exactly what the
// local store holds right now.
func (e *Engine) LoadFromCache(ctx context.Context) error {
	users, err := e.store.GetUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}
	projects, err := e.store.GetProjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to load projects: %w", err)
	}
	issues, err := e.store.GetIssues(ctx)
	if err != nil {
		return fmt.Errorf("failed to load issues: %w", err)
	}
	states, err := e.store.GetWorkflowStates(ctx)
	if err != nil {
		return fmt.Errorf("failed to load workflow states: %w", err)
	}
	history, err := e.store.GetSyncHistory(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to load sync history: %w", err)
	}

	byTeam := map[string][]types.WorkflowState{}
	for _, state := range states {
		byTeam[state.TeamID] = append(byTeam[state.TeamID], state)
	}

	e.state.Users = users
	e.state.Projects = projects
	e.state.Issues = issues
	e.state.WorkflowStatesByTeam = byTeam
	e.state.SyncHistory = history
	return nil
}

// Projects returns the cached projects.
func (e *Engine) Projects() []types.Project {
	return e.state.Projects
}

// Issues returns the cached issues.
func (e *Engine) Issues() []*types.Issue {
	return e.state.Issues
}

// IssuesByStatus returns cached issues whose logical status matches.
func (e *Engine) IssuesByStatus(status string) []*types.Issue {
	var matched []*types.Issue
	for _, issue := range e.state.Issues {
		if issue.Status == status {
			matched = append(matched, issue)
		}
	}
	return matched
}

// IssueByID finds a cached issue by its human-facing key.
func (e *Engine) IssueByID(issueID string) *types.Issue {
	for _, issue := range e.state.Issues {
		if issue.ID == issueID {
			return issue
		}
	}
	return nil
}

// SyncHistory returns up to limit recent attempts, newest first, from the
// in-memory mirror.
func (e *Engine) SyncHistory(limit int) []types.SyncAttempt {
	if limit <= 0 || limit > len(e.state.SyncHistory) {
		limit = len(e.state.SyncHistory)
	}
	return e.state.SyncHistory[:limit]
}

// LatestSyncHistoryLines renders the most recent attempts as one-line
// summaries for quick display.
func (e *Engine) LatestSyncHistoryLines(limit int) []string {
	entries := e.SyncHistory(limit)
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		timestamp := entry.CreatedAt
		if timestamp == "" {
			timestamp = "?"
		}
		result := entry.Result
		if result == "" {
			result = "?"
		}
		lines = append(lines, fmt.Sprintf("%s | %s | %s", timestamp, result, entry.Summary))
	}
	return lines
}

// SyncStatusSummary is the single-line status of the most recent sync,
// or "syncing" while one is in flight.
func (e *Engine) SyncStatusSummary() string {
	if e.state.SyncInProgress {
		return types.SyncResultSyncing
	}
	return e.syncSummaryCore()
}

// SyncDiagnosticLines renders the per-step diagnostics of the most
// recent sync as "step: outcome" lines.
func (e *Engine) SyncDiagnosticLines() []string {
	lines := make([]string, 0, len(e.state.SyncDiagnostics))
	for _, step := range diagnosticStepOrder {
		if status, ok := e.state.SyncDiagnostics[step]; ok {
			lines = append(lines, fmt.Sprintf("%s: %s", step, status))
		}
	}
	return lines
}

// diagnosticStepOrder fixes the display order of pipeline steps.
var diagnosticStepOrder = []string{
	stepAuth, stepProjects, stepWorkflowStates, stepIssues,
	stepPersist, stepReload, stepUnexpected,
}

func (e *Engine) syncSummaryCore() string {
	if e.state.LastSyncResult == types.SyncResultSuccess {
		return fmt.Sprintf("success u:%d p:%d i:%d t:%d",
			e.countOr("users", len(e.state.Users)),
			e.countOr("projects", len(e.state.Projects)),
			e.countOr("issues", len(e.state.Issues)),
			e.countOr("teams", len(e.state.WorkflowStatesByTeam)),
		)
	}
	if e.state.LastSyncError != "" {
		return fmt.Sprintf("failed: %s", e.state.LastSyncError)
	}
	return e.state.LastSyncResult
}

func (e *Engine) countOr(key string, fallback int) int {
	if count, ok := e.state.LastSyncCounts[key]; ok {
		return count
	}
	return fallback
}

// recordSyncHistory appends the current sync outcome to the persisted
// history and refreshes the in-memory mirror. Terminal results only;
// append failures are swallowed so a diagnostics write never masks the
// outcome it describes.
func (e *Engine) recordSyncHistory(ctx context.Context) {
	if e.state.LastSyncResult == types.SyncResultSyncing {
		return
	}
	diagnostics := make(map[string]string, len(e.state.SyncDiagnostics))
	for step, status := range e.state.SyncDiagnostics {
		diagnostics[step] = status
	}
	attempt := types.SyncAttempt{
		CreatedAt:   time.Now().Format(timestampLayout),
		Result:      e.state.LastSyncResult,
		Summary:     e.syncSummaryCore(),
		Diagnostics: diagnostics,
	}
	if err := e.store.AppendSyncHistory(ctx, attempt); err != nil {
		e.logger.Printf("failed to record sync history: %v", err)
		return
	}
	history, err := e.store.GetSyncHistory(ctx, 0)
	if err != nil {
		e.logger.Printf("failed to reload sync history: %v", err)
		return
	}
	e.state.SyncHistory = history
}

// timestampLayout matches the human-readable timestamps stored in the
// sync history.
const timestampLayout = "2006-01-02 15:04:05"

// SeedMockData writes a small demo dataset into the store. Only used for
// local development flows behind the seed_mock_data setting.
func (e *Engine) SeedMockData(ctx context.Context) error {
	users := []types.User{
		{ID: "1", Name: "Bob"},
		{ID: "2", Name: "Alice"},
		{ID: "3", Name: "Dave"},
		{ID: "4", Name: "Sarah"},
		{ID: "5", Name: "Me"},
	}
	projects := []types.Project{
		{ID: "1", Name: "Acme Corp", Status: "Synced", IssuesCount: 12, InProgressCount: 5, BlockedCount: 2, DueDate: "2024-02-28", Cycle: "Jan Q1"},
		{ID: "2", Name: "DevTools", Status: "Synced", IssuesCount: 8, InProgressCount: 3, BlockedCount: 0, DueDate: "2024-03-15", Cycle: "Feb Q1"},
		{ID: "3", Name: "Web Redesign", Status: "Synced", IssuesCount: 7, InProgressCount: 2, BlockedCount: 1, DueDate: "2024-03-30", Cycle: "Design"},
	}
	issues := []*types.Issue{
		{ID: "PROJ-245", Title: "Fix Login Bug", Priority: "High", Status: "In Progress", Assignee: &users[1], Points: 5, ProjectID: "1", DueDate: "2024-02-24"},
		{ID: "PROJ-234", Title: "UI Fix", Priority: "Medium", Status: "In Progress", Assignee: &users[1], Points: 3, ProjectID: "1", DueDate: "2024-02-25"},
		{ID: "PROJ-251", Title: "CSS Bug", Priority: "Low", Status: "Todo", Assignee: &users[1], Points: 2, ProjectID: "1", DueDate: "2024-02-26"},
		{ID: "PROJ-234-B", Title: "Backend Sync", Priority: "High", Status: "In Progress", Assignee: &users[0], Points: 5, ProjectID: "1", DueDate: "2024-02-27"},
		{ID: "PROJ-246", Title: "Schema Update", Priority: "Medium", Status: "Todo", Assignee: &users[0], Points: 2, ProjectID: "2", DueDate: "2024-03-05"},
		{ID: "PROJ-251-B", Title: "API Refactor", Priority: "Medium", Status: "In Progress", Assignee: &users[2], Points: 3, ProjectID: "2", DueDate: "2024-03-07"},
		{ID: "PROJ-243", Title: "Write Tests", Priority: "Low", Status: "Review", Assignee: &users[2], Points: 2, ProjectID: "2", DueDate: "2024-03-09"},
		{ID: "PROJ-246-B", Title: "DB Setup", Priority: "Low", Status: "Done", Assignee: &users[3], Points: 3, ProjectID: "2", DueDate: "2024-03-12"},
		{ID: "PROJ-250", Title: "Migration", Priority: "Medium", Status: "Todo", Assignee: &users[3], Points: 2, ProjectID: "3", DueDate: "2024-03-16"},
		{ID: "PROJ-244", Title: "Doc Update", Priority: "Low", Status: "Review", Assignee: &users[3], Points: 2, ProjectID: "3", DueDate: "2024-03-18"},
		{ID: "PROJ-245-B", Title: "Core Refactor", Priority: "High", Status: "In Progress", Assignee: &users[4], Points: 5, ProjectID: "3", DueDate: "2024-03-19"},
		{ID: "PROJ-235", Title: "Plugin System", Priority: "Medium", Status: "Todo", Assignee: &users[4], Points: 3, ProjectID: "3", DueDate: "2024-03-21"},
		{ID: "PROJ-233", Title: "Fast Sync", Priority: "High", Status: "Todo", Assignee: &users[4], Points: 2, ProjectID: "3", DueDate: "2024-03-23"},
	}
	for _, issue := range issues {
		issue.SetDefaults()
	}

	if err := e.store.SaveUsers(ctx, users); err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}
	if err := e.store.SaveProjects(ctx, projects); err != nil {
		return fmt.Errorf("failed to seed projects: %w", err)
	}
	if err := e.store.SaveIssues(ctx, issues); err != nil {
		return fmt.Errorf("failed to seed issues: %w", err)
	}
	return nil
}
