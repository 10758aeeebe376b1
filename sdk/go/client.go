package talentlinesdk

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

// Client is a minimal Talentline HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Role represents the API role model.
type Role struct {
	ID           string  `json:"id"`
	TenantID     string  `json:"tenant_id"`
	Title        string  `json:"title"`
	Requirements *string `json:"requirements,omitempty"`
	Status       string  `json:"status"`
	MinPipeline  int     `json:"min_pipeline"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// Candidate represents the API candidate model (partial).
type Candidate struct {
	ID        string  `json:"id"`
	RoleID    string  `json:"role_id"`
	Name      string  `json:"name"`
	Company   string  `json:"company,omitempty"`
	Email     *string `json:"email,omitempty"`
	FitScore  *int    `json:"fit_score,omitempty"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// EngagementEvent represents one engagement log entry.
type EngagementEvent struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts"`
	CandidateID string         `json:"candidate_id"`
	Kind        string         `json:"kind"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// CycleSummary represents one orchestration cycle result.
type CycleSummary struct {
	StartedAt         string `json:"started_at"`
	FinishedAt        string `json:"finished_at"`
	RolesProcessed    int    `json:"roles_processed"`
	CandidatesCreated int    `json:"candidates_created"`
	SendsDispatched   int    `json:"sends_dispatched"`
	Conflicts         int    `json:"conflicts"`
	Failures          int    `json:"failures"`
	DegradedRoles     int    `json:"degraded_roles"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateRole creates a role.
func (c *Client) CreateRole(ctx context.Context, tenantID, title, requirements string, minPipeline int) (Role, error) {
	body := map[string]any{
		"tenant_id":    tenantID,
		"title":        title,
		"min_pipeline": minPipeline,
	}
	if requirements != "" {
		body["requirements"] = requirements
	}
	var resp Role
	err := c.do(ctx, http.MethodPost, "v0/roles", body, &resp)
	return resp, err
}

// Roles lists roles, optionally filtered by tenant and status.
func (c *Client) Roles(ctx context.Context, tenantID, status string) ([]Role, error) {
	endpoint := "v0/roles"
	q := url.Values{}
	if tenantID != "" {
		q.Set("tenant_id", tenantID)
	}
	if status != "" {
		q.Set("status", status)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Role
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// RoleCandidates lists the candidates attached to a role.
func (c *Client) RoleCandidates(ctx context.Context, roleID string) ([]Candidate, error) {
	var resp []Candidate
	endpoint := fmt.Sprintf("v0/roles/%s/candidates", url.PathEscape(roleID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AdvanceCandidate moves a candidate from one status to another. The server
// rejects the call if the current status no longer matches from.
func (c *Client) AdvanceCandidate(ctx context.Context, candidateID, from, to string) (Candidate, error) {
	body := map[string]any{"from": from, "to": to}
	var resp Candidate
	endpoint := fmt.Sprintf("v0/candidates/%s/status", url.PathEscape(candidateID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// IngestEvent reports a provider signal for a candidate.
func (c *Client) IngestEvent(ctx context.Context, candidateID, kind string, payload map[string]any) error {
	body := map[string]any{"kind": kind}
	if payload != nil {
		body["payload"] = payload
	}
	endpoint := fmt.Sprintf("v0/events/%s", url.PathEscape(candidateID))
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

// EngagementLog returns recent engagement events for a candidate.
func (c *Client) EngagementLog(ctx context.Context, candidateID string, limit int) ([]EngagementEvent, error) {
	endpoint := fmt.Sprintf("v0/candidates/%s/events", url.PathEscape(candidateID))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []EngagementEvent
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// RunCycle triggers one orchestration cycle and returns its summary.
func (c *Client) RunCycle(ctx context.Context) (CycleSummary, error) {
	var resp CycleSummary
	err := c.do(ctx, http.MethodPost, "v0/cycles", nil, &resp)
	return resp, err
}

// LatestCycle returns the most recent completed cycle summary.
func (c *Client) LatestCycle(ctx context.Context) (CycleSummary, error) {
	var resp CycleSummary
	err := c.do(ctx, http.MethodGet, "v0/cycles/latest", nil, &resp)
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
