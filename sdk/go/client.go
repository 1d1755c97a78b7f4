package opsboardsdk

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

// Client is a minimal Opsboard HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// StageCounts holds per-stage item tallies.
type StageCounts struct {
	Tasks     int `json:"tasks"`
	Incidents int `json:"incidents"`
}

// Stage represents a board column.
type Stage struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"projectId"`
	Name      string       `json:"name"`
	Color     string       `json:"color,omitempty"`
	Order     int          `json:"order"`
	StageType string       `json:"stageType"`
	Count     *StageCounts `json:"_count,omitempty"`
}

// Task represents the API task model (partial).
type Task struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"projectId"`
	Title      string  `json:"title"`
	Status     string  `json:"status"`
	StageID    *string `json:"stageId"`
	AssigneeID *string `json:"assigneeId"`
}

// Incident represents the API incident model (partial).
type Incident struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"projectId"`
	Title      string  `json:"title"`
	Status     string  `json:"status"`
	StageID    *string `json:"stageId"`
	ReporterID string  `json:"reporterId"`
}

// ResourceRequest represents the API resource request model (partial).
type ResourceRequest struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"projectId"`
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	StageID     *string `json:"stageId"`
	RequesterID string  `json:"requesterId"`
	Notes       string  `json:"notes,omitempty"`
}

// Comment represents a resource request comment.
type Comment struct {
	ID        string `json:"id"`
	RequestID string `json:"requestId"`
	UserID    string `json:"userId"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// Activity represents an audit log row.
type Activity struct {
	ID        int64           `json:"id"`
	TS        string          `json:"ts"`
	Type      string          `json:"type"`
	ProjectID string          `json:"projectId,omitempty"`
	ItemKind  string          `json:"itemKind"`
	ItemID    string          `json:"itemId,omitempty"`
	UserID    string          `json:"userId"`
	Payload   json.RawMessage `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ActivityPage wraps activity listings with the cursor for the next page.
type ActivityPage struct {
	Activities []Activity `json:"activities"`
	NextCursor int64      `json:"nextCursor,omitempty"`
}

// ListStages returns the board columns, optionally filtered by stage type.
func (c *Client) ListStages(ctx context.Context, stageType string) ([]Stage, error) {
	endpoint := c.projectPath("stages")
	if stageType != "" {
		endpoint = fmt.Sprintf("%s?stageType=%s", endpoint, url.QueryEscape(stageType))
	}
	var resp struct {
		Stages []Stage `json:"stages"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Stages, err
}

// CreateStage appends a stage column of the given type.
func (c *Client) CreateStage(ctx context.Context, name, color, stageType string) (Stage, error) {
	body := map[string]any{
		"name":      name,
		"color":     color,
		"stageType": stageType,
	}
	var resp struct {
		Stage Stage `json:"stage"`
	}
	err := c.do(ctx, http.MethodPost, c.projectPath("stages"), body, &resp)
	return resp.Stage, err
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, title, description string) (Task, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
	}
	var resp struct {
		Task Task `json:"task"`
	}
	err := c.do(ctx, http.MethodPost, c.projectPath("tasks"), body, &resp)
	return resp.Task, err
}

// MoveTask moves a task onto a stage; a nil stageID takes it off the board.
func (c *Client) MoveTask(ctx context.Context, taskID string, stageID *string) (Task, error) {
	var resp struct {
		Task Task `json:"task"`
	}
	endpoint := c.projectPath(fmt.Sprintf("tasks/%s/move", url.PathEscape(taskID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"stageId": stageID}, &resp)
	return resp.Task, err
}

// MoveIncident moves an incident onto a stage; a nil stageID takes it off
// the board.
func (c *Client) MoveIncident(ctx context.Context, incidentID string, stageID *string) (Incident, error) {
	var resp struct {
		Incident Incident `json:"incident"`
	}
	endpoint := c.projectPath(fmt.Sprintf("incidents/%s/move", url.PathEscape(incidentID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"stageId": stageID}, &resp)
	return resp.Incident, err
}

// MoveResourceRequest moves a resource request onto a stage; a nil stageID
// takes it off the board.
func (c *Client) MoveResourceRequest(ctx context.Context, requestID string, stageID *string) (ResourceRequest, error) {
	var resp struct {
		ResourceRequest ResourceRequest `json:"resourceRequest"`
	}
	endpoint := c.projectPath(fmt.Sprintf("resource-requests/%s/move", url.PathEscape(requestID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"stageId": stageID}, &resp)
	return resp.ResourceRequest, err
}

// CreateComment comments on a resource request.
func (c *Client) CreateComment(ctx context.Context, requestID, content string) (Comment, error) {
	var resp struct {
		Comment Comment `json:"comment"`
	}
	endpoint := c.projectPath(fmt.Sprintf("resource-requests/%s/comments", url.PathEscape(requestID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"content": content}, &resp)
	return resp.Comment, err
}

// ListComments returns a request's comments, oldest first.
func (c *Client) ListComments(ctx context.Context, requestID string) ([]Comment, error) {
	var resp struct {
		Comments []Comment `json:"comments"`
	}
	endpoint := c.projectPath(fmt.Sprintf("resource-requests/%s/comments", url.PathEscape(requestID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Comments, err
}

// UpdateComment replaces a comment's content. The server enforces that only
// the author or an elevated role may do this.
func (c *Client) UpdateComment(ctx context.Context, requestID, commentID, content string) (Comment, error) {
	var resp struct {
		Comment Comment `json:"comment"`
	}
	endpoint := c.projectPath(fmt.Sprintf("resource-requests/%s/comments/%s", url.PathEscape(requestID), url.PathEscape(commentID)))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"content": content}, &resp)
	return resp.Comment, err
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, requestID, commentID string) error {
	endpoint := c.projectPath(fmt.Sprintf("resource-requests/%s/comments/%s", url.PathEscape(requestID), url.PathEscape(commentID)))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// Activity returns recent audit rows, newest first.
func (c *Client) Activity(ctx context.Context, limit int) ([]Activity, error) {
	page, err := c.ActivityPage(ctx, limit, 0)
	return page.Activities, err
}

// ActivityPage returns a paginated activity listing.
func (c *Client) ActivityPage(ctx context.Context, limit int, cursor int64) (ActivityPage, error) {
	endpoint := c.projectPath("activity")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor > 0 {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%d", endpoint, sep, cursor)
	}
	var resp ActivityPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
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

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
