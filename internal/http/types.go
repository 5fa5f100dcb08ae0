// Package http serves the shared-plan REST API.
package http

import (
	"bytes"
	"encoding/json"

	"github.com/dailycompanion/companion/internal/notify"
	"github.com/dailycompanion/companion/internal/sharedplan"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version,omitempty"`
}

// SuccessResponse acknowledges a mutation that returns no resource.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// CreatePlanRequest is the body of POST /api/shared-plans.
type CreatePlanRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdatePlanRequest is the body of PATCH /api/shared-plans/:id.
type UpdatePlanRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// PlanResponse wraps a single plan.
type PlanResponse struct {
	Plan sharedplan.PlanView `json:"plan"`
}

// PlansResponse wraps a plan list.
type PlansResponse struct {
	Plans []sharedplan.PlanView `json:"plans"`
}

// CreateInvitationRequest is the body of POST /api/shared-plans/:id/invitations.
type CreateInvitationRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// RespondInvitationRequest is the body of PATCH /api/shared-plans/invitations.
type RespondInvitationRequest struct {
	InvitationID string `json:"invitationId"`
	Action       string `json:"action"`
}

// CancelInvitationRequest is the optional body of
// DELETE /api/shared-plans/:id/invitations.
type CancelInvitationRequest struct {
	InvitationID string `json:"invitationId"`
}

// InvitationResponse wraps a single invitation.
type InvitationResponse struct {
	Invitation sharedplan.Invitation `json:"invitation"`
}

// InvitationsResponse wraps an invitation list.
type InvitationsResponse struct {
	Invitations []sharedplan.Invitation `json:"invitations"`
}

// CreateTaskRequest is the body of POST /api/shared-plans/:id/tasks.
type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	AssignedTo  *string `json:"assignedTo,omitempty"`
}

// UpdateTaskRequest is the body of PATCH /api/shared-plans/:id/tasks.
// AssignedTo distinguishes an absent key from an explicit null.
type UpdateTaskRequest struct {
	TaskID      string           `json:"taskId"`
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Status      *string          `json:"status,omitempty"`
	AssignedTo  Optional[string] `json:"assignedTo,omitzero"`
}

// DeleteTaskRequest is the optional body of DELETE /api/shared-plans/:id/tasks.
type DeleteTaskRequest struct {
	TaskID string `json:"taskId"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Task sharedplan.Task `json:"task"`
}

// TasksResponse wraps a task list.
type TasksResponse struct {
	Tasks []sharedplan.Task `json:"tasks"`
}

// PostMessageRequest is the body of POST /api/shared-plans/:id/messages.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// MessageResponse wraps a single message.
type MessageResponse struct {
	Message sharedplan.Message `json:"message"`
}

// MessagesResponse wraps a message list.
type MessagesResponse struct {
	Messages []sharedplan.Message `json:"messages"`
}

// UpdateMemberRequest is the body of PATCH /api/shared-plans/:id/members/:userId.
type UpdateMemberRequest struct {
	Role string `json:"role"`
}

// MemberResponse wraps a single member.
type MemberResponse struct {
	Member sharedplan.Member `json:"member"`
}

// NotificationsResponse wraps a notification list.
type NotificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
}

// MarkNotificationsRequest is the body of PATCH /api/notifications. An empty
// ids list marks everything read.
type MarkNotificationsRequest struct {
	IDs []string `json:"ids"`
}

// MarkNotificationsResponse reports how many notifications changed.
type MarkNotificationsResponse struct {
	Updated int `json:"updated"`
}

// Optional is a JSON field that records whether it was present. A present
// null leaves Value nil with Set true.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// UnmarshalJSON is only invoked for keys present in the input.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// IsZero reports whether the field was absent, so omitzero drops it.
func (o Optional[T]) IsZero() bool { return !o.Set }

// MarshalJSON encodes a null value as null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Null returns a set Optional holding null.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}
