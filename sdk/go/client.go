package intakelinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Intakeline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Request represents the API request model (partial).
type Request struct {
	ID                  string              `json:"id"`
	ClientID            string              `json:"client_id"`
	RequestType         string              `json:"request_type"`
	Title               string              `json:"title"`
	Status              string              `json:"status"`
	RequiredDepartments []string            `json:"required_departments,omitempty"`
	EstimatedDuration   string              `json:"estimated_duration,omitempty"`
	Assignments         map[string][]string `json:"assignments,omitempty"`
}

// Project represents a converted project.
type Project struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	ClientID        string `json:"client_id"`
	Category        string `json:"category"`
	Status          string `json:"status"`
	ActiveSprint    int    `json:"active_sprint"`
	TotalSprints    int    `json:"total_sprints"`
	SourceRequestID string `json:"source_request_id,omitempty"`
}

// Task represents a project task.
type Task struct {
	Num          int64   `json:"num"`
	ProjectID    string  `json:"project_id"`
	Name         string  `json:"name"`
	SprintNumber int     `json:"sprint_number"`
	Status       string  `json:"status"`
	Priority     string  `json:"priority"`
	AssignedTo   []int64 `json:"assigned_to,omitempty"`
	DependsOn    *int64  `json:"depends_on,omitempty"`
}

// Conversion is the result of a final approval.
type Conversion struct {
	Request Request `json:"request"`
	Project Project `json:"project"`
}

// SprintAdvance reports a sprint transition.
type SprintAdvance struct {
	Project Project `json:"project"`
	Message string  `json:"message"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateRequest submits a new intake request.
func (c *Client) CreateRequest(ctx context.Context, requestType, title, description string, requirements []string) (Request, error) {
	body := map[string]any{
		"request_type": requestType,
		"title":        title,
		"description":  description,
		"requirements": requirements,
	}
	var resp Request
	err := c.do(ctx, http.MethodPost, "requests", body, &resp)
	return resp, err
}

// GetRequest fetches a request by id.
func (c *Client) GetRequest(ctx context.Context, id string) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodGet, "requests/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// GenerateWorkflow asks the planner to break the request into tasks.
func (c *Client) GenerateWorkflow(ctx context.Context, id string) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodPost, "requests/"+url.PathEscape(id)+"/workflow", nil, &resp)
	return resp, err
}

// AssignEmployees staffs workflow tasks.
func (c *Client) AssignEmployees(ctx context.Context, id string, assignments map[string][]string) (Request, error) {
	body := map[string]any{"assignments": assignments}
	var resp Request
	err := c.do(ctx, http.MethodPost, "requests/"+url.PathEscape(id)+"/assignments", body, &resp)
	return resp, err
}

// ApproveDepartment records a department-level approval. Department may be
// empty when the caller's authority resolves to a single pending entry.
func (c *Client) ApproveDepartment(ctx context.Context, id, department string) (Request, error) {
	body := map[string]any{"department": department}
	var resp Request
	err := c.do(ctx, http.MethodPost, "requests/"+url.PathEscape(id)+"/approvals/approve", body, &resp)
	return resp, err
}

// RejectDepartment records a department-level rejection.
func (c *Client) RejectDepartment(ctx context.Context, id, department string) (Request, error) {
	body := map[string]any{"department": department}
	var resp Request
	err := c.do(ctx, http.MethodPost, "requests/"+url.PathEscape(id)+"/approvals/reject", body, &resp)
	return resp, err
}

// Approve converts a fully approved, fully staffed request into a project.
func (c *Client) Approve(ctx context.Context, id string) (Conversion, error) {
	var resp Conversion
	err := c.do(ctx, http.MethodPost, "requests/"+url.PathEscape(id)+"/approve", nil, &resp)
	return resp, err
}

// Reject rejects a request.
func (c *Client) Reject(ctx context.Context, id, notes string) (Request, error) {
	body := map[string]any{"review_notes": notes}
	var resp Request
	err := c.do(ctx, http.MethodPost, "requests/"+url.PathEscape(id)+"/reject", body, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ProjectTasks lists tasks for a project, optionally filtered by sprint.
func (c *Client) ProjectTasks(ctx context.Context, id string, sprint int) ([]Task, error) {
	var resp struct {
		Items []Task `json:"items"`
	}
	endpoint := "projects/" + url.PathEscape(id) + "/tasks"
	if sprint > 0 {
		endpoint = fmt.Sprintf("%s?sprint=%d", endpoint, sprint)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// SetTaskStatus updates a task's status.
func (c *Client) SetTaskStatus(ctx context.Context, num int64, status string) (Task, error) {
	body := map[string]any{"status": status}
	var resp Task
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("tasks/%d", num), body, &resp)
	return resp, err
}

// AdvanceSprint moves a project to its next sprint.
func (c *Client) AdvanceSprint(ctx context.Context, id string) (SprintAdvance, error) {
	var resp SprintAdvance
	err := c.do(ctx, http.MethodPost, "projects/"+url.PathEscape(id)+"/sprint/advance", nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
