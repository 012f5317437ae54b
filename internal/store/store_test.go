package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/projectdash/projectdash/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "replica.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return s
}

func TestUsersRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	users := []types.User{
		{ID: "u1", Name: "Alice", AvatarURL: "https://example.com/a.png"},
		{ID: "u2", Name: "Bob"},
	}
	if err := s.SaveUsers(ctx, users); err != nil {
		t.Fatalf("SaveUsers: %v", err)
	}

	got, err := s.GetUsers(ctx)
	if err != nil {
		t.Fatalf("GetUsers: %v", err)
	}
	if diff := cmp.Diff(users, got); diff != "" {
		t.Errorf("users mismatch (-want +got):\n%s", diff)
	}

	// Upsert replaces, never duplicates.
	users[0].Name = "Alice B"
	if err := s.SaveUsers(ctx, users[:1]); err != nil {
		t.Fatalf("SaveUsers: %v", err)
	}
	got, err = s.GetUsers(ctx)
	if err != nil {
		t.Fatalf("GetUsers: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Alice B" {
		t.Errorf("after upsert: %+v", got)
	}
}

func TestProjectsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	projects := []types.Project{
		{ID: "p1", Name: "Acme", Status: "Active", IssuesCount: 12, InProgressCount: 5, BlockedCount: 2, DueDate: "2026-09-01", Cycle: "Current"},
		{ID: "p2", Name: "DevTools", Status: "Active", DueDate: "N/A", Cycle: "Current"},
	}
	if err := s.SaveProjects(ctx, projects); err != nil {
		t.Fatalf("SaveProjects: %v", err)
	}
	got, err := s.GetProjects(ctx)
	if err != nil {
		t.Fatalf("GetProjects: %v", err)
	}
	if diff := cmp.Diff(projects, got); diff != "" {
		t.Errorf("projects mismatch (-want +got):\n%s", diff)
	}
}

func TestIssuesRoundTripWithAssigneeJoin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := types.User{ID: "u1", Name: "Alice", AvatarURL: "https://example.com/a.png"}
	if err := s.SaveUsers(ctx, []types.User{alice}); err != nil {
		t.Fatalf("SaveUsers: %v", err)
	}

	created := time.Date(2026, 8, 20, 12, 30, 0, 0, time.UTC)
	issues := []*types.Issue{
		{
			ID: "PROJ-1", LinearID: "lin-1", Title: "Fix login", Priority: "2",
			Status: "In Progress", StateID: "s2", TeamID: "t1",
			Assignee: &alice, Points: 5, ProjectID: "p1",
			DueDate: "2026-08-30", Description: "auth flow broken",
			CreatedAt: created,
		},
		{ID: "PROJ-2", Title: "Unassigned one", Status: "Todo"},
	}
	if err := s.SaveIssues(ctx, issues); err != nil {
		t.Fatalf("SaveIssues: %v", err)
	}

	got, err := s.GetIssues(ctx)
	if err != nil {
		t.Fatalf("GetIssues: %v", err)
	}
	if diff := cmp.Diff(issues, got); diff != "" {
		t.Errorf("issues mismatch (-want +got):\n%s", diff)
	}
	if got[1].Assignee != nil {
		t.Errorf("unassigned issue came back with assignee %+v", got[1].Assignee)
	}
}

func TestSaveIssuesRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveIssues(context.Background(), []*types.Issue{{ID: "PROJ-1"}})
	if err == nil {
		t.Fatal("expected validation error for missing title")
	}
}

func TestWorkflowStatesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	states := []types.WorkflowState{
		{ID: "s1", Name: "Todo", Type: "unstarted", TeamID: "t1", TeamKey: "PROJ"},
		{ID: "s2", Name: "In Progress", Type: "started", TeamID: "t1", TeamKey: "PROJ"},
		{ID: "s3", Name: "Backlog", Type: "backlog", TeamID: "t2"},
	}
	if err := s.SaveWorkflowStates(ctx, states); err != nil {
		t.Fatalf("SaveWorkflowStates: %v", err)
	}
	got, err := s.GetWorkflowStates(ctx)
	if err != nil {
		t.Fatalf("GetWorkflowStates: %v", err)
	}
	if diff := cmp.Diff(states, got); diff != "" {
		t.Errorf("workflow states mismatch (-want +got):\n%s", diff)
	}
}

func TestReplicaSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replica.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	if err := s.SaveUsers(ctx, []types.User{{ID: "u1", Name: "Alice"}}); err != nil {
		t.Fatalf("SaveUsers: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if err := reopened.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema on reopen: %v", err)
	}
	users, err := reopened.GetUsers(ctx)
	if err != nil {
		t.Fatalf("GetUsers: %v", err)
	}
	if len(users) != 1 || users[0].Name != "Alice" {
		t.Errorf("users after reopen: %+v", users)
	}
}

func TestSyncHistoryPrunesToLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < HistoryLimit+5; i++ {
		attempt := types.SyncAttempt{
			CreatedAt:   fmt.Sprintf("2026-08-23 10:00:%02d", i),
			Result:      types.SyncResultFailed,
			Summary:     fmt.Sprintf("failed: attempt %d", i),
			Diagnostics: map[string]string{"auth": "failed: LINEAR_API_KEY not set"},
		}
		if err := s.AppendSyncHistory(ctx, attempt); err != nil {
			t.Fatalf("AppendSyncHistory: %v", err)
		}
	}

	got, err := s.GetSyncHistory(ctx, 0)
	if err != nil {
		t.Fatalf("GetSyncHistory: %v", err)
	}
	if len(got) != HistoryLimit {
		t.Fatalf("history entries = %d, want %d", len(got), HistoryLimit)
	}
	if got[0].Summary != fmt.Sprintf("failed: attempt %d", HistoryLimit+4) {
		t.Errorf("newest entry = %q, want the last appended attempt", got[0].Summary)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Seq >= got[i-1].Seq {
			t.Fatalf("history not newest-first at index %d: %d >= %d", i, got[i].Seq, got[i-1].Seq)
		}
	}
	if got[0].Diagnostics["auth"] != "failed: LINEAR_API_KEY not set" {
		t.Errorf("diagnostics round-trip: %+v", got[0].Diagnostics)
	}
}

func TestGetSyncHistoryHonorsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		attempt := types.SyncAttempt{
			CreatedAt: fmt.Sprintf("2026-08-23 11:00:%02d", i),
			Result:    types.SyncResultSuccess,
			Summary:   "success u:1 p:1 i:1 t:1",
		}
		if err := s.AppendSyncHistory(ctx, attempt); err != nil {
			t.Fatalf("AppendSyncHistory: %v", err)
		}
	}

	got, err := s.GetSyncHistory(ctx, 2)
	if err != nil {
		t.Fatalf("GetSyncHistory: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("entries = %d, want 2", len(got))
	}
}
