// Package store is the local replica database.
//
// It wraps an embedded SQLite database (ncruces/go-sqlite3, WAL mode) and
// exposes typed batch upserts and full-table reads for each entity
// collection, plus the capacity-bounded sync history log. All writes that
// belong to one logical operation run inside a single transaction.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/projectdash/projectdash/internal/types"
)

// HistoryLimit is the maximum number of persisted sync attempts. Older
// rows are deleted in the same transaction as each append.
const HistoryLimit = 20

// Store wraps the SQLite connection for the local replica.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the replica database at the given path. The
// caller must Close it. WAL mode keeps reads cheap while a sync writes.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// InitSchema creates the replica tables. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		avatar_url TEXT
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT,
		issues_count INTEGER NOT NULL DEFAULT 0,
		in_progress_count INTEGER NOT NULL DEFAULT 0,
		blocked_count INTEGER NOT NULL DEFAULT 0,
		due_date TEXT,
		cycle TEXT
	);

	CREATE TABLE IF NOT EXISTS issues (
		id TEXT PRIMARY KEY,
		linear_id TEXT,
		title TEXT NOT NULL,
		priority TEXT,
		status TEXT,
		state_id TEXT,
		team_id TEXT,
		assignee_id TEXT,
		points INTEGER NOT NULL DEFAULT 0,
		due_date TEXT,
		project_id TEXT,
		description TEXT,
		created_at TEXT
	);

	CREATE TABLE IF NOT EXISTS workflow_states (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT,
		team_id TEXT NOT NULL,
		team_key TEXT
	);

	CREATE TABLE IF NOT EXISTS sync_history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT NOT NULL,
		result TEXT NOT NULL,
		summary TEXT,
		diagnostics TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_issues_project ON issues(project_id);
	CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
	CREATE INDEX IF NOT EXISTS idx_issues_assignee ON issues(assignee_id);
	CREATE INDEX IF NOT EXISTS idx_workflow_states_team ON workflow_states(team_id);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveUsers upserts the given users as one transaction.
func (s *Store) SaveUsers(ctx context.Context, users []types.User) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		query := `
		INSERT INTO users (id, name, avatar_url)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			avatar_url = excluded.avatar_url
		`
		for _, user := range users {
			if _, err := tx.ExecContext(ctx, query, user.ID, user.Name, nullString(user.AvatarURL)); err != nil {
				return fmt.Errorf("failed to upsert user %s: %w", user.ID, err)
			}
		}
		return nil
	})
}

// SaveProjects upserts the given projects as one transaction.
func (s *Store) SaveProjects(ctx context.Context, projects []types.Project) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		query := `
		INSERT INTO projects (id, name, status, issues_count, in_progress_count, blocked_count, due_date, cycle)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			issues_count = excluded.issues_count,
			in_progress_count = excluded.in_progress_count,
			blocked_count = excluded.blocked_count,
			due_date = excluded.due_date,
			cycle = excluded.cycle
		`
		for _, project := range projects {
			_, err := tx.ExecContext(ctx, query,
				project.ID,
				project.Name,
				project.Status,
				project.IssuesCount,
				project.InProgressCount,
				project.BlockedCount,
				project.DueDate,
				project.Cycle,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert project %s: %w", project.ID, err)
			}
		}
		return nil
	})
}

// SaveIssues upserts the given issues as one transaction.
func (s *Store) SaveIssues(ctx context.Context, issues []*types.Issue) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		query := `
		INSERT INTO issues (
			id, linear_id, title, priority, status, state_id, team_id,
			assignee_id, points, due_date, project_id, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			linear_id = excluded.linear_id,
			title = excluded.title,
			priority = excluded.priority,
			status = excluded.status,
			state_id = excluded.state_id,
			team_id = excluded.team_id,
			assignee_id = excluded.assignee_id,
			points = excluded.points,
			due_date = excluded.due_date,
			project_id = excluded.project_id,
			description = excluded.description,
			created_at = excluded.created_at
		`
		for _, issue := range issues {
			if err := issue.Validate(); err != nil {
				return fmt.Errorf("invalid issue: %w", err)
			}
			_, err := tx.ExecContext(ctx, query,
				issue.ID,
				nullString(issue.LinearID),
				issue.Title,
				issue.Priority,
				issue.Status,
				nullString(issue.StateID),
				nullString(issue.TeamID),
				nullString(issue.AssigneeID()),
				issue.Points,
				nullString(issue.DueDate),
				nullString(issue.ProjectID),
				nullString(issue.Description),
				timeToNullString(issue.CreatedAt),
			)
			if err != nil {
				return fmt.Errorf("failed to upsert issue %s: %w", issue.ID, err)
			}
		}
		return nil
	})
}

// SaveWorkflowStates upserts the given workflow states as one transaction.
func (s *Store) SaveWorkflowStates(ctx context.Context, states []types.WorkflowState) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		query := `
		INSERT INTO workflow_states (id, name, type, team_id, team_key)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			team_id = excluded.team_id,
			team_key = excluded.team_key
		`
		for _, state := range states {
			_, err := tx.ExecContext(ctx, query,
				state.ID,
				state.Name,
				state.Type,
				state.TeamID,
				nullString(state.TeamKey),
			)
			if err != nil {
				return fmt.Errorf("failed to upsert workflow state %s: %w", state.ID, err)
			}
		}
		return nil
	})
}

// GetUsers reads all users.
func (s *Store) GetUsers(ctx context.Context) ([]types.User, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, name, avatar_url FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		var user types.User
		var avatar sql.NullString
		if err := rows.Scan(&user.ID, &user.Name, &avatar); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.AvatarURL = avatar.String
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// GetProjects reads all projects.
func (s *Store) GetProjects(ctx context.Context) ([]types.Project, error) {
	query := `
	SELECT id, name, status, issues_count, in_progress_count, blocked_count, due_date, cycle
	FROM projects
	ORDER BY id
	`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []types.Project
	for rows.Next() {
		var project types.Project
		err := rows.Scan(
			&project.ID,
			&project.Name,
			&project.Status,
			&project.IssuesCount,
			&project.InProgressCount,
			&project.BlockedCount,
			&project.DueDate,
			&project.Cycle,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

// GetIssues reads all issues, joining users so each issue carries its
// resolved assignee.
func (s *Store) GetIssues(ctx context.Context) ([]*types.Issue, error) {
	query := `
	SELECT i.id, i.linear_id, i.title, i.priority, i.status, i.state_id,
	       i.team_id, i.assignee_id, i.points, i.due_date, i.project_id,
	       i.description, i.created_at,
	       u.name, u.avatar_url
	FROM issues i
	LEFT JOIN users u ON i.assignee_id = u.id
	ORDER BY i.id
	`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	var issues []*types.Issue
	for rows.Next() {
		var issue types.Issue
		var linearID, stateID, teamID, assigneeID, dueDate, projectID sql.NullString
		var description, createdAt, userName, userAvatar sql.NullString

		err := rows.Scan(
			&issue.ID,
			&linearID,
			&issue.Title,
			&issue.Priority,
			&issue.Status,
			&stateID,
			&teamID,
			&assigneeID,
			&issue.Points,
			&dueDate,
			&projectID,
			&description,
			&createdAt,
			&userName,
			&userAvatar,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}

		issue.LinearID = linearID.String
		issue.StateID = stateID.String
		issue.TeamID = teamID.String
		issue.DueDate = dueDate.String
		issue.ProjectID = projectID.String
		issue.Description = description.String
		issue.CreatedAt = nullStringToTime(createdAt)
		if assigneeID.Valid {
			issue.Assignee = &types.User{
				ID:        assigneeID.String,
				Name:      userName.String,
				AvatarURL: userAvatar.String,
			}
		}

		issues = append(issues, &issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issues: %w", err)
	}
	return issues, nil
}

// GetWorkflowStates reads all workflow states.
func (s *Store) GetWorkflowStates(ctx context.Context) ([]types.WorkflowState, error) {
	query := `SELECT id, name, type, team_id, team_key FROM workflow_states ORDER BY team_id, id`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow states: %w", err)
	}
	defer rows.Close()

	var states []types.WorkflowState
	for rows.Next() {
		var state types.WorkflowState
		var teamKey sql.NullString
		if err := rows.Scan(&state.ID, &state.Name, &state.Type, &state.TeamID, &teamKey); err != nil {
			return nil, fmt.Errorf("failed to scan workflow state: %w", err)
		}
		state.TeamKey = teamKey.String
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow states: %w", err)
	}
	return states, nil
}

// AppendSyncHistory appends one attempt and prunes everything but the
// most recent HistoryLimit rows, in the same transaction.
func (s *Store) AppendSyncHistory(ctx context.Context, attempt types.SyncAttempt) error {
	diagnostics, err := json.Marshal(attempt.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sync_history (created_at, result, summary, diagnostics) VALUES (?, ?, ?, ?)`,
			attempt.CreatedAt, attempt.Result, attempt.Summary, string(diagnostics),
		)
		if err != nil {
			return fmt.Errorf("failed to append sync history: %w", err)
		}

		prune := `
		DELETE FROM sync_history
		WHERE seq NOT IN (
			SELECT seq FROM sync_history ORDER BY seq DESC LIMIT ?
		)
		`
		if _, err := tx.ExecContext(ctx, prune, HistoryLimit); err != nil {
			return fmt.Errorf("failed to prune sync history: %w", err)
		}
		return nil
	})
}

// GetSyncHistory reads the most recent attempts, newest first. A limit
// of 0 or less means HistoryLimit.
func (s *Store) GetSyncHistory(ctx context.Context, limit int) ([]types.SyncAttempt, error) {
	if limit <= 0 {
		limit = HistoryLimit
	}
	query := `
	SELECT seq, created_at, result, summary, diagnostics
	FROM sync_history
	ORDER BY seq DESC
	LIMIT ?
	`
	rows, err := s.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync history: %w", err)
	}
	defer rows.Close()

	var attempts []types.SyncAttempt
	for rows.Next() {
		var attempt types.SyncAttempt
		var diagnostics sql.NullString
		err := rows.Scan(&attempt.Seq, &attempt.CreatedAt, &attempt.Result, &attempt.Summary, &diagnostics)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync history: %w", err)
		}
		if diagnostics.Valid && diagnostics.String != "" && diagnostics.String != "null" {
			if err := json.Unmarshal([]byte(diagnostics.String), &attempt.Diagnostics); err != nil {
				return nil, fmt.Errorf("failed to unmarshal diagnostics: %w", err)
			}
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync history: %w", err)
	}
	return attempts, nil
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nullString converts "" to NULL so optional columns stay queryable with
// IS NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeToNullString converts a time to a nullable RFC3339 string for SQL.
func timeToNullString(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// nullStringToTime parses a nullable RFC3339 string.
func nullStringToTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
