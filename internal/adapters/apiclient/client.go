package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/taskmaster/taskflow/internal/domain/entities"
	"github.com/taskmaster/taskflow/internal/ports"
)

const defaultTimeout = 10 * time.Second

// Client talks to a running taskflow server so that short-lived commands
// change tasks through the process that owns the store.
type Client struct {
	baseURL string
	client  *http.Client
}

// StatusError is returned for responses the client has no mapping for.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

type errorResponse struct {
	Message string `json:"message"`
}

type listResponse struct {
	Data []entities.Task `json:"data"`
}

// New creates a client for the server at baseURL
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// URL returns the server's base URL
func (c *Client) URL() string {
	return c.baseURL
}

// Ping checks that the server is up and its storage is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/ready", nil, nil)
}

func (c *Client) Add(ctx context.Context, req ports.CreateTaskRequest) (*entities.Task, error) {
	var task entities.Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// List returns tasks in insertion order
func (c *Client) List(ctx context.Context) ([]entities.Task, error) {
	return c.list(ctx, "/api/v1/tasks?view=raw")
}

// Sorted returns tasks in display order
func (c *Client) Sorted(ctx context.Context) ([]entities.Task, error) {
	return c.list(ctx, "/api/v1/tasks")
}

func (c *Client) DueSoon(ctx context.Context) ([]entities.Task, error) {
	return c.list(ctx, "/api/v1/tasks/due-soon")
}

func (c *Client) StartingSoon(ctx context.Context) ([]entities.Task, error) {
	return c.list(ctx, "/api/v1/tasks/starting-soon")
}

func (c *Client) Overdue(ctx context.Context) ([]entities.Task, error) {
	return c.list(ctx, "/api/v1/tasks/overdue")
}

func (c *Client) ToggleComplete(ctx context.Context, id string) (*entities.Task, bool, error) {
	return c.taskAction(ctx, http.MethodPost, taskPath(id)+"/toggle-complete", nil)
}

func (c *Client) TogglePriority(ctx context.Context, id string) (*entities.Task, bool, error) {
	return c.taskAction(ctx, http.MethodPost, taskPath(id)+"/toggle-priority", nil)
}

func (c *Client) Update(ctx context.Context, id string, req ports.UpdateTaskRequest) (*entities.Task, bool, error) {
	return c.taskAction(ctx, http.MethodPatch, taskPath(id), req)
}

// Delete reports false when no task has id
func (c *Client) Delete(ctx context.Context, id string) (bool, error) {
	err := c.do(ctx, http.MethodDelete, taskPath(id), nil, nil)
	if errors.Is(err, entities.ErrTaskNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ClearCompleted returns how many tasks were removed
func (c *Client) ClearCompleted(ctx context.Context) (int, error) {
	var resp ports.ClearCompletedResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks/clear-completed", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Cleared, nil
}

// Replace swaps the server's whole collection for tasks
func (c *Client) Replace(ctx context.Context, tasks []entities.Task) (int, error) {
	if tasks == nil {
		tasks = []entities.Task{}
	}
	var resp listResponse
	if err := c.do(ctx, http.MethodPut, "/api/v1/tasks", tasks, &resp); err != nil {
		return 0, err
	}
	return len(resp.Data), nil
}

func (c *Client) Stats(ctx context.Context) (entities.Stats, error) {
	var stats entities.Stats
	err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &stats)
	return stats, err
}

func (c *Client) list(ctx context.Context, path string) ([]entities.Task, error) {
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) taskAction(ctx context.Context, method, path string, body interface{}) (*entities.Task, bool, error) {
	var task entities.Task
	err := c.do(ctx, method, path, body, &task)
	if errors.Is(err, entities.ErrTaskNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, err
	}
	return &task, true, nil
}

func taskPath(id string) string {
	return "/api/v1/tasks/" + url.PathEscape(id)
}

// do sends body as JSON and decodes a 2xx response into out. A 400 comes
// back as a *entities.ValidationError and a 404 as entities.ErrTaskNotFound.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errorResponse
		_ = json.Unmarshal(respBody, &apiErr)
		switch resp.StatusCode {
		case http.StatusBadRequest:
			return entities.NewValidationError("", apiErr.Message)
		case http.StatusNotFound:
			return entities.ErrTaskNotFound
		default:
			return &StatusError{Code: resp.StatusCode, Message: apiErr.Message}
		}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
