// Package client is a typed client for the shared-plan REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	api "github.com/dailycompanion/companion/internal/http"
	"github.com/dailycompanion/companion/internal/notify"
	"github.com/dailycompanion/companion/internal/sharedplan"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client calls one server as one user.
type Client struct {
	baseURL *url.URL
	token   string
	hc      *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the session token sent as a bearer header.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default 30s-timeout client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", baseURL)
	}
	c := &Client{baseURL: u, hc: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out)
	return out, err
}

// ListPlans returns the plans the caller owns or belongs to.
func (c *Client) ListPlans(ctx context.Context) ([]sharedplan.PlanView, error) {
	var out api.PlansResponse
	err := c.do(ctx, http.MethodGet, "/api/shared-plans", nil, nil, &out)
	return out.Plans, err
}

// CreatePlan creates a plan owned by the caller.
func (c *Client) CreatePlan(ctx context.Context, name, description string) (sharedplan.PlanView, error) {
	var out api.PlanResponse
	err := c.do(ctx, http.MethodPost, "/api/shared-plans", nil,
		api.CreatePlanRequest{Name: name, Description: description}, &out)
	return out.Plan, err
}

// GetPlan returns one plan with the caller's role and permissions.
func (c *Client) GetPlan(ctx context.Context, planID string) (sharedplan.PlanView, error) {
	var out api.PlanResponse
	err := c.do(ctx, http.MethodGet, planPath(planID, ""), nil, nil, &out)
	return out.Plan, err
}

// UpdatePlan renames or re-describes a plan.
func (c *Client) UpdatePlan(ctx context.Context, planID string, req api.UpdatePlanRequest) (sharedplan.PlanView, error) {
	var out api.PlanResponse
	err := c.do(ctx, http.MethodPatch, planPath(planID, ""), nil, req, &out)
	return out.Plan, err
}

// DeletePlan deletes a plan and everything in it.
func (c *Client) DeletePlan(ctx context.Context, planID string) error {
	return c.do(ctx, http.MethodDelete, planPath(planID, ""), nil, nil, nil)
}

// ListInvitations returns a plan's invitations.
func (c *Client) ListInvitations(ctx context.Context, planID string) ([]sharedplan.Invitation, error) {
	var out api.InvitationsResponse
	err := c.do(ctx, http.MethodGet, planPath(planID, "/invitations"), nil, nil, &out)
	return out.Invitations, err
}

// Invite offers userID membership of a plan with role.
func (c *Client) Invite(ctx context.Context, planID, userID, role string) (sharedplan.Invitation, error) {
	var out api.InvitationResponse
	err := c.do(ctx, http.MethodPost, planPath(planID, "/invitations"), nil,
		api.CreateInvitationRequest{UserID: userID, Role: role}, &out)
	return out.Invitation, err
}

// CancelInvitation withdraws a pending invitation.
func (c *Client) CancelInvitation(ctx context.Context, planID, invitationID string) error {
	return c.do(ctx, http.MethodDelete, planPath(planID, "/invitations"), nil,
		api.CancelInvitationRequest{InvitationID: invitationID}, nil)
}

// MyInvitations returns invitations pending for the caller.
func (c *Client) MyInvitations(ctx context.Context) ([]sharedplan.Invitation, error) {
	var out api.InvitationsResponse
	err := c.do(ctx, http.MethodGet, "/api/shared-plans/invitations", nil, nil, &out)
	return out.Invitations, err
}

// RespondInvitation accepts or declines an invitation addressed to the
// caller. action is "accept" or "decline".
func (c *Client) RespondInvitation(ctx context.Context, invitationID, action string) (sharedplan.Invitation, error) {
	var out api.InvitationResponse
	err := c.do(ctx, http.MethodPatch, "/api/shared-plans/invitations", nil,
		api.RespondInvitationRequest{InvitationID: invitationID, Action: action}, &out)
	return out.Invitation, err
}

// ListTasks returns a plan's tasks.
func (c *Client) ListTasks(ctx context.Context, planID string) ([]sharedplan.Task, error) {
	var out api.TasksResponse
	err := c.do(ctx, http.MethodGet, planPath(planID, "/tasks"), nil, nil, &out)
	return out.Tasks, err
}

// AddTask creates a task.
func (c *Client) AddTask(ctx context.Context, planID string, req api.CreateTaskRequest) (sharedplan.Task, error) {
	var out api.TaskResponse
	err := c.do(ctx, http.MethodPost, planPath(planID, "/tasks"), nil, req, &out)
	return out.Task, err
}

// UpdateTask patches a task. Use api.Some or api.Null for AssignedTo.
func (c *Client) UpdateTask(ctx context.Context, planID string, req api.UpdateTaskRequest) (sharedplan.Task, error) {
	var out api.TaskResponse
	err := c.do(ctx, http.MethodPatch, planPath(planID, "/tasks"), nil, req, &out)
	return out.Task, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, planID, taskID string) error {
	return c.do(ctx, http.MethodDelete, planPath(planID, "/tasks"), nil,
		api.DeleteTaskRequest{TaskID: taskID}, nil)
}

// Messages returns discussion messages newer than since (zero for all),
// at most limit (0 for the server default), oldest first.
func (c *Client) Messages(ctx context.Context, planID string, since time.Time, limit int) ([]sharedplan.Message, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out api.MessagesResponse
	err := c.do(ctx, http.MethodGet, planPath(planID, "/messages"), q, nil, &out)
	return out.Messages, err
}

// PostMessage appends to a plan's discussion.
func (c *Client) PostMessage(ctx context.Context, planID, content string) (sharedplan.Message, error) {
	var out api.MessageResponse
	err := c.do(ctx, http.MethodPost, planPath(planID, "/messages"), nil,
		api.PostMessageRequest{Content: content}, &out)
	return out.Message, err
}

// UpdateMemberRole changes a member's role.
func (c *Client) UpdateMemberRole(ctx context.Context, planID, userID, role string) (sharedplan.Member, error) {
	var out api.MemberResponse
	err := c.do(ctx, http.MethodPatch, planPath(planID, "/members/"+url.PathEscape(userID)), nil,
		api.UpdateMemberRequest{Role: role}, &out)
	return out.Member, err
}

// RemoveMember removes a member; a member may remove themself.
func (c *Client) RemoveMember(ctx context.Context, planID, userID string) error {
	return c.do(ctx, http.MethodDelete, planPath(planID, "/members/"+url.PathEscape(userID)), nil, nil, nil)
}

// Notifications returns the caller's notifications.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]notify.Notification, error) {
	var q url.Values
	if unreadOnly {
		q = url.Values{"unread": {"true"}}
	}
	var out api.NotificationsResponse
	err := c.do(ctx, http.MethodGet, "/api/notifications", q, nil, &out)
	return out.Notifications, err
}

// MarkNotificationsRead marks ids read, or all unread when ids is empty.
func (c *Client) MarkNotificationsRead(ctx context.Context, ids ...string) (int, error) {
	var out api.MarkNotificationsResponse
	err := c.do(ctx, http.MethodPatch, "/api/notifications", nil, api.MarkNotificationsRequest{IDs: ids}, &out)
	return out.Updated, err
}

func planPath(planID, suffix string) string {
	return "/api/shared-plans/" + url.PathEscape(planID) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	// path segments are already escaped.
	u := c.baseURL.JoinPath(path)
	u.RawQuery = query.Encode()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var er api.ErrorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&er); err == nil {
			apiErr.Message = er.Error
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
