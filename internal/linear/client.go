// Package linear is a thin client for the remote tracker's GraphQL API.
//
// Responses are mapped into typed node structs at this boundary; nothing
// above this package sees raw GraphQL payloads. Application-level
// rejections surface as *APIError, transport problems as wrapped errors.
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultEndpoint is the production GraphQL endpoint.
const DefaultEndpoint = "https://api.linear.app/graphql"

// PageSize is the cursor pagination window for list queries.
const PageSize = 100

// Viewer identifies the authenticated user.
type Viewer struct {
	ID    string
	Name  string
	Email string
}

// ProjectNode is one project as returned by the remote API.
type ProjectNode struct {
	ID         string
	Name       string
	TargetDate string
	State      string
}

// StateNode is one workflow state within a team.
type StateNode struct {
	ID   string
	Name string
	Type string
}

// UserNode is an assignee reference embedded in an issue.
type UserNode struct {
	ID        string
	Name      string
	AvatarURL string
}

// IssueNode is one issue as returned by the remote API, flattened from
// the nested GraphQL shape.
type IssueNode struct {
	ID          string
	Identifier  string
	Title       string
	Priority    float64
	State       *StateNode
	DueDate     string
	ProjectID   string
	TeamID      string
	Assignee    *UserNode
	Estimate    float64
	Description string
	CreatedAt   time.Time
}

// TeamNode is one team with its workflow states.
type TeamNode struct {
	ID     string
	Key    string
	Name   string
	States []StateNode
}

// Client is the remote surface the engine consumes. The list methods
// paginate to exhaustion internally.
type Client interface {
	Me(ctx context.Context) (*Viewer, error)
	Projects(ctx context.Context) ([]ProjectNode, error)
	Issues(ctx context.Context) ([]IssueNode, error)
	TeamWorkflowStates(ctx context.Context) ([]TeamNode, error)

	// Issue fetches a single issue by remote id. Returns (nil, nil) when
	// the issue does not exist.
	Issue(ctx context.Context, remoteID string) (*IssueNode, error)

	UpdateIssueStatus(ctx context.Context, remoteID, stateID string) error
	// UpdateIssueAssignee with assigneeID == "" unassigns the issue.
	UpdateIssueAssignee(ctx context.Context, remoteID, assigneeID string) error
	UpdateIssueEstimate(ctx context.Context, remoteID string, points int) error
}

// HTTPClient implements Client over net/http.
type HTTPClient struct {
	Endpoint string
	APIKey   string
	HTTP     *http.Client
}

// NewClient creates a client against the production endpoint.
func NewClient(apiKey string) *HTTPClient {
	return &HTTPClient{
		Endpoint: DefaultEndpoint,
		APIKey:   apiKey,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
		Type string `json:"type"`
	} `json:"extensions"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// query posts one GraphQL document and decodes the data payload into out.
func (c *HTTPClient) query(ctx context.Context, query string, variables map[string]any, out any) error {
	if c.APIKey == "" {
		return fmt.Errorf("LINEAR_API_KEY is not set")
	}

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed: %s: %s", resp.Status, bytes.TrimSpace(raw))
	}

	var envelope graphqlResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		first := envelope.Errors[0]
		message := first.Message
		if message == "" {
			message = "unknown Linear API error"
		}
		return &APIError{
			Message: message,
			Code:    first.Extensions.Code,
			Type:    first.Extensions.Type,
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	return nil
}

// Me implements Client.Me.
func (c *HTTPClient) Me(ctx context.Context) (*Viewer, error) {
	const doc = `
	query {
	  viewer {
	    id
	    name
	    email
	  }
	}`

	var data struct {
		Viewer Viewer `json:"viewer"`
	}
	if err := c.query(ctx, doc, nil, &data); err != nil {
		return nil, err
	}
	return &data.Viewer, nil
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// Projects implements Client.Projects, following cursor pagination until
// exhausted or no cursor is returned.
func (c *HTTPClient) Projects(ctx context.Context) ([]ProjectNode, error) {
	const doc = `
	query($first: Int!, $after: String) {
	  projects(first: $first, after: $after) {
	    nodes {
	      id
	      name
	      targetDate
	      state
	    }
	    pageInfo {
	      hasNextPage
	      endCursor
	    }
	  }
	}`

	var projects []ProjectNode
	after := ""
	for {
		var data struct {
			Projects struct {
				Nodes []struct {
					ID         string `json:"id"`
					Name       string `json:"name"`
					TargetDate string `json:"targetDate"`
					State      string `json:"state"`
				} `json:"nodes"`
				PageInfo pageInfo `json:"pageInfo"`
			} `json:"projects"`
		}
		if err := c.query(ctx, doc, pageVariables(after), &data); err != nil {
			return nil, err
		}
		for _, node := range data.Projects.Nodes {
			projects = append(projects, ProjectNode{
				ID:         node.ID,
				Name:       node.Name,
				TargetDate: node.TargetDate,
				State:      node.State,
			})
		}
		if !data.Projects.PageInfo.HasNextPage || data.Projects.PageInfo.EndCursor == "" {
			return projects, nil
		}
		after = data.Projects.PageInfo.EndCursor
	}
}

// issueWire is the nested GraphQL issue shape shared by the list and
// single-issue queries.
type issueWire struct {
	ID         string     `json:"id"`
	Identifier string     `json:"identifier"`
	Title      string     `json:"title"`
	Priority   float64    `json:"priority"`
	State      *StateNode `json:"state"`
	DueDate    string     `json:"dueDate"`
	Project    *struct {
		ID string `json:"id"`
	} `json:"project"`
	Team *struct {
		ID string `json:"id"`
	} `json:"team"`
	Assignee *struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatarUrl"`
	} `json:"assignee"`
	Estimate    *float64 `json:"estimate"`
	Description string   `json:"description"`
	CreatedAt   string   `json:"createdAt"`
}

func (w *issueWire) toNode() IssueNode {
	node := IssueNode{
		ID:          w.ID,
		Identifier:  w.Identifier,
		Title:       w.Title,
		Priority:    w.Priority,
		State:       w.State,
		DueDate:     w.DueDate,
		Description: w.Description,
	}
	if w.Project != nil {
		node.ProjectID = w.Project.ID
	}
	if w.Team != nil {
		node.TeamID = w.Team.ID
	}
	if w.Assignee != nil {
		node.Assignee = &UserNode{
			ID:        w.Assignee.ID,
			Name:      w.Assignee.Name,
			AvatarURL: w.Assignee.AvatarURL,
		}
	}
	if w.Estimate != nil {
		node.Estimate = *w.Estimate
	}
	if w.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, w.CreatedAt); err == nil {
			node.CreatedAt = t
		}
	}
	return node
}

const issueFields = `
	      id
	      identifier
	      title
	      priority
	      state {
	        id
	        name
	        type
	      }
	      dueDate
	      project {
	        id
	      }
	      team {
	        id
	      }
	      assignee {
	        id
	        name
	        avatarUrl
	      }
	      estimate
	      description
	      createdAt`

// Issues implements Client.Issues.
func (c *HTTPClient) Issues(ctx context.Context) ([]IssueNode, error) {
	doc := `
	query($first: Int!, $after: String) {
	  issues(first: $first, after: $after) {
	    nodes {` + issueFields + `
	    }
	    pageInfo {
	      hasNextPage
	      endCursor
	    }
	  }
	}`

	var issues []IssueNode
	after := ""
	for {
		var data struct {
			Issues struct {
				Nodes    []issueWire `json:"nodes"`
				PageInfo pageInfo    `json:"pageInfo"`
			} `json:"issues"`
		}
		if err := c.query(ctx, doc, pageVariables(after), &data); err != nil {
			return nil, err
		}
		for i := range data.Issues.Nodes {
			issues = append(issues, data.Issues.Nodes[i].toNode())
		}
		if !data.Issues.PageInfo.HasNextPage || data.Issues.PageInfo.EndCursor == "" {
			return issues, nil
		}
		after = data.Issues.PageInfo.EndCursor
	}
}

// TeamWorkflowStates implements Client.TeamWorkflowStates.
func (c *HTTPClient) TeamWorkflowStates(ctx context.Context) ([]TeamNode, error) {
	const doc = `
	query($first: Int!, $after: String) {
	  teams(first: $first, after: $after) {
	    nodes {
	      id
	      key
	      name
	      states {
	        nodes {
	          id
	          name
	          type
	        }
	      }
	    }
	    pageInfo {
	      hasNextPage
	      endCursor
	    }
	  }
	}`

	var teams []TeamNode
	after := ""
	for {
		var data struct {
			Teams struct {
				Nodes []struct {
					ID     string `json:"id"`
					Key    string `json:"key"`
					Name   string `json:"name"`
					States struct {
						Nodes []StateNode `json:"nodes"`
					} `json:"states"`
				} `json:"nodes"`
				PageInfo pageInfo `json:"pageInfo"`
			} `json:"teams"`
		}
		if err := c.query(ctx, doc, pageVariables(after), &data); err != nil {
			return nil, err
		}
		for _, node := range data.Teams.Nodes {
			teams = append(teams, TeamNode{
				ID:     node.ID,
				Key:    node.Key,
				Name:   node.Name,
				States: node.States.Nodes,
			})
		}
		if !data.Teams.PageInfo.HasNextPage || data.Teams.PageInfo.EndCursor == "" {
			return teams, nil
		}
		after = data.Teams.PageInfo.EndCursor
	}
}

// Issue implements Client.Issue.
func (c *HTTPClient) Issue(ctx context.Context, remoteID string) (*IssueNode, error) {
	doc := `
	query($id: String!) {
	  issue(id: $id) {` + issueFields + `
	  }
	}`

	var data struct {
		Issue *issueWire `json:"issue"`
	}
	if err := c.query(ctx, doc, map[string]any{"id": remoteID}, &data); err != nil {
		return nil, err
	}
	if data.Issue == nil {
		return nil, nil
	}
	node := data.Issue.toNode()
	return &node, nil
}

// UpdateIssueStatus implements Client.UpdateIssueStatus.
func (c *HTTPClient) UpdateIssueStatus(ctx context.Context, remoteID, stateID string) error {
	const doc = `
	mutation($id: String!, $stateId: String!) {
	  issueUpdate(id: $id, input: { stateId: $stateId }) {
	    success
	  }
	}`
	return c.mutate(ctx, doc, map[string]any{"id": remoteID, "stateId": stateID})
}

// UpdateIssueAssignee implements Client.UpdateIssueAssignee.
func (c *HTTPClient) UpdateIssueAssignee(ctx context.Context, remoteID, assigneeID string) error {
	const doc = `
	mutation($id: String!, $assigneeId: String) {
	  issueUpdate(id: $id, input: { assigneeId: $assigneeId }) {
	    success
	  }
	}`
	variables := map[string]any{"id": remoteID}
	if assigneeID == "" {
		variables["assigneeId"] = nil
	} else {
		variables["assigneeId"] = assigneeID
	}
	return c.mutate(ctx, doc, variables)
}

// UpdateIssueEstimate implements Client.UpdateIssueEstimate.
func (c *HTTPClient) UpdateIssueEstimate(ctx context.Context, remoteID string, points int) error {
	const doc = `
	mutation($id: String!, $estimate: Float) {
	  issueUpdate(id: $id, input: { estimate: $estimate }) {
	    success
	  }
	}`
	return c.mutate(ctx, doc, map[string]any{"id": remoteID, "estimate": points})
}

// mutate runs an issueUpdate mutation and converts success=false into
// ErrRejected so every mutation failure is an error to the caller.
func (c *HTTPClient) mutate(ctx context.Context, doc string, variables map[string]any) error {
	var data struct {
		IssueUpdate struct {
			Success bool `json:"success"`
		} `json:"issueUpdate"`
	}
	if err := c.query(ctx, doc, variables, &data); err != nil {
		return err
	}
	if !data.IssueUpdate.Success {
		return ErrRejected
	}
	return nil
}

func pageVariables(after string) map[string]any {
	variables := map[string]any{"first": PageSize}
	if after != "" {
		variables["after"] = after
	}
	return variables
}
