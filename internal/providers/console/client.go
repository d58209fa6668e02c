package console

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/teemow/toolbridge/internal/authcore"
)

// Client is a typed REST client for the console backend's JSON API. It
// authenticates by sending the session token as a cookie, the same way
// the browser UI does.
type Client struct {
	baseURL    string
	cookieName string
	token      string
	httpClient *http.Client
}

// NewClient builds a console client from credentials.
func NewClient(cfg Config, creds *authcore.Credentials) *Client {
	cookieName := creds.Scope
	if cookieName == "" {
		cookieName = defaultCookieName
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		cookieName: cookieName,
		token:      creds.AccessToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// User is the account behind the session.
type User struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Teams []string `json:"teams,omitempty"`
}

// Project is a console project summary.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Deployment is one rollout of a project.
type Deployment struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// LogEntry is one line of deployment output.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Whoami returns the account behind the session. Also the cheapest probe
// for whether the session is still alive.
func (c *Client) Whoami(ctx context.Context) (*User, error) {
	var user User
	if err := c.get(ctx, "/api/v1/whoami", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListProjects returns the projects visible to the session.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var out struct {
		Projects []Project `json:"projects"`
	}
	if err := c.get(ctx, "/api/v1/projects", nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

// ListDeployments returns the recent deployments of a project.
func (c *Client) ListDeployments(ctx context.Context, projectID string) ([]Deployment, error) {
	var out struct {
		Deployments []Deployment `json:"deployments"`
	}
	path := fmt.Sprintf("/api/v1/projects/%s/deployments", url.PathEscape(projectID))
	if err := c.get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Deployments, nil
}

// GetLogs returns up to limit recent log lines for a deployment.
func (c *Client) GetLogs(ctx context.Context, deploymentID string, limit int) ([]LogEntry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	var out struct {
		Entries []LogEntry `json:"entries"`
	}
	path := fmt.Sprintf("/api/v1/deployments/%s/logs", url.PathEscape(deploymentID))
	if err := c.get(ctx, path, q, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.AddCookie(&http.Cookie{Name: c.cookieName, Value: c.token})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("console request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("console session rejected: %w", authcore.ErrNotAuthenticated)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("console returned %s for %s", resp.Status, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding console response: %w", err)
	}
	return nil
}
