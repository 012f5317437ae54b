package engine

import (
	"context"

	"github.com/projectdash/projectdash/internal/linear"
	"github.com/projectdash/projectdash/internal/types"
)

// Suffixes appended to mutation failure messages when reconciliation
// recovered fresher state.
const (
	refetchedSuffix = " (re-fetched latest issue)"
	resyncedSuffix  = " (triggered full re-sync)"
)

// reconcileAfterConflict recovers the replica after a conflict-class
// remote rejection: refetch the single issue when its remote id is
// known, otherwise fall back to a full re-sync. Returns the suffix to
// append to the failure message, or "" when no recovery was achieved.
// Never fails: errors and panics inside recovery are absorbed, the
// caller still reports the original rejection.
func (e *Engine) reconcileAfterConflict(ctx context.Context, issue *types.Issue) string {
	if !e.cfg.HasCredential() {
		return ""
	}

	if issue.LinearID != "" {
		node, err := e.client.Issue(ctx, issue.LinearID)
		if err == nil && node != nil {
			if err := e.applyRemoteIssue(ctx, node); err == nil {
				return refetchedSuffix
			}
			e.logger.Printf("reconcile: failed to apply refetched issue %s", issue.ID)
		}
	}

	// Full re-sync fallback. A surprising side effect of a single-field
	// edit failure, but it is how stale replicas recover when the issue
	// itself cannot be refetched.
	func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Printf("reconcile: re-sync panicked: %v", r)
			}
		}()
		_ = e.Sync(ctx)
	}()
	if e.state.LastSyncResult == types.SyncResultSuccess {
		return resyncedSuffix
	}
	return ""
}

// applyRemoteIssue replaces the cached issue with a freshly fetched
// remote version, creating its assignee user if unseen, and persists
// both.
func (e *Engine) applyRemoteIssue(ctx context.Context, node *linear.IssueNode) error {
	fresh := issueFromNode(node)
	if node.Assignee != nil {
		var existing *types.User
		for i := range e.state.Users {
			if e.state.Users[i].ID == node.Assignee.ID {
				existing = &e.state.Users[i]
				break
			}
		}
		if existing == nil {
			e.state.Users = append(e.state.Users, types.User{
				ID:        node.Assignee.ID,
				Name:      node.Assignee.Name,
				AvatarURL: node.Assignee.AvatarURL,
			})
			existing = &e.state.Users[len(e.state.Users)-1]
		}
		assignee := *existing
		fresh.Assignee = &assignee
	}

	replaced := false
	for i, cached := range e.state.Issues {
		if cached.ID == fresh.ID || (cached.LinearID != "" && cached.LinearID == fresh.LinearID) {
			e.state.Issues[i] = fresh
			replaced = true
			break
		}
	}
	if !replaced {
		e.state.Issues = append(e.state.Issues, fresh)
	}

	if err := e.store.SaveUsers(ctx, e.state.Users); err != nil {
		return err
	}
	return e.store.SaveIssues(ctx, []*types.Issue{fresh})
}
