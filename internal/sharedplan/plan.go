// Package sharedplan implements collaborative plans: an owner, role-bearing
// members, an invitation workflow, delegated tasks and a plan discussion.
//
// Every Service method takes the acting user's ID explicitly and recomputes
// that user's permissions from the current plan state.
package sharedplan

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Role is a user's effective role on a plan.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
	// RoleNone is returned for users with no relationship to the plan.
	RoleNone Role = ""
)

// ParseMemberRole parses a role that may be stored on a member or an
// invitation. Owner is not a member role.
func ParseMemberRole(s string) (Role, error) {
	switch Role(s) {
	case RoleEditor, RoleViewer:
		return Role(s), nil
	default:
		return RoleNone, invalid("role must be %q or %q", RoleEditor, RoleViewer)
	}
}

// TaskStatus is the progress state of a plan task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// ParseTaskStatus parses a task status.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case TaskPending, TaskInProgress, TaskCompleted:
		return TaskStatus(s), nil
	default:
		return "", invalid("status must be one of %q, %q, %q", TaskPending, TaskInProgress, TaskCompleted)
	}
}

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

// Plan is a collaborative plan with embedded members and tasks.
type Plan struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"ownerId"`
	Members     []Member  `json:"members"`
	Tasks       []Task    `json:"tasks"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Member is a non-owner participant.
type Member struct {
	UserID   string    `json:"userId"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Task is a delegated work item inside a plan.
type Task struct {
	ID          string     `json:"id"`
	PlanID      string     `json:"planId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	AssignedTo  *string    `json:"assignedTo"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

// Invitation offers a user membership of a plan with a given role.
type Invitation struct {
	ID          string           `json:"id"`
	PlanID      string           `json:"planId"`
	PlanName    string           `json:"planName,omitempty"`
	InvitedBy   string           `json:"invitedBy"`
	InvitedUser string           `json:"invitedUser"`
	Role        Role             `json:"role"`
	Status      InvitationStatus `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Message is an append-only discussion entry.
type Message struct {
	ID        string    `json:"id"`
	PlanID    string    `json:"planId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Member returns the member entry for userID.
func (p *Plan) Member(userID string) (Member, bool) {
	for _, m := range p.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// Participant reports whether userID is the owner or a member.
func (p *Plan) Participant(userID string) bool {
	if p.OwnerID == userID {
		return true
	}
	_, ok := p.Member(userID)
	return ok
}

// Task returns the task with id.
func (p *Plan) Task(id string) (Task, bool) {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// SetStatus moves the task to status, keeping CompletedAt set exactly while
// the task is completed. Re-completing keeps the original timestamp.
func (t *Task) SetStatus(status TaskStatus, now time.Time) {
	switch {
	case status == TaskCompleted && t.Status != TaskCompleted:
		ts := now
		t.CompletedAt = &ts
	case status != TaskCompleted:
		t.CompletedAt = nil
	}
	t.Status = status
}

const (
	maxNameLen        = 200
	maxDescriptionLen = 2000
)

// cleanText trims s and enforces a rune limit. required rejects empty input.
func cleanText(field, s string, limit int, required bool) (string, error) {
	s = strings.TrimSpace(s)
	if !utf8.ValidString(s) {
		return "", invalid("%s must be valid UTF-8", field)
	}
	if required && s == "" {
		return "", invalid("%s is required", field)
	}
	if utf8.RuneCountInString(s) > limit {
		return "", invalid("%s must be at most %d characters", field, limit)
	}
	return s, nil
}

func (r Role) String() string {
	if r == RoleNone {
		return "none"
	}
	return string(r)
}
