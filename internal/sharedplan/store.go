package sharedplan

import (
	"context"
	"time"
)

// Store persists plans and their child records.
//
// Missing records are reported with errors wrapping ErrNotFound. Methods that
// touch more than one row are atomic.
type Store interface {
	CreatePlan(ctx context.Context, p Plan) error
	// GetPlan returns the plan with its members and tasks.
	GetPlan(ctx context.Context, id string) (Plan, error)
	// ListPlansForUser returns plans owned by or shared with userID, most
	// recently updated first. Tasks are not loaded.
	ListPlansForUser(ctx context.Context, userID string) ([]Plan, error)
	UpdatePlanDetails(ctx context.Context, id, name, description string, at time.Time) error
	// DeletePlan removes the plan and every member, task, invitation and
	// message that belongs to it.
	DeletePlan(ctx context.Context, id string) error

	UpdateMemberRole(ctx context.Context, planID, userID string, role Role, at time.Time) error
	// RemoveMember deletes the member and clears it as assignee of the
	// plan's tasks.
	RemoveMember(ctx context.Context, planID, userID string, at time.Time) error

	CreateTask(ctx context.Context, t Task) error
	UpdateTask(ctx context.Context, t Task) error
	DeleteTask(ctx context.Context, planID, taskID string, at time.Time) error

	// CreateInvitation fails with ErrDuplicateInvitation while another
	// pending invitation exists for the same plan and user.
	CreateInvitation(ctx context.Context, inv Invitation) error
	// GetInvitation and the list methods fill Invitation.PlanName.
	GetInvitation(ctx context.Context, id string) (Invitation, error)
	ListInvitationsByPlan(ctx context.Context, planID string) ([]Invitation, error)
	ListPendingInvitationsForUser(ctx context.Context, userID string) ([]Invitation, error)
	// AcceptInvitation marks the invitation accepted and adds m as a member.
	// It fails with ErrInvitationNotPending or ErrAlreadyMember.
	AcceptInvitation(ctx context.Context, invitationID string, m Member, at time.Time) error
	// DeclineInvitation fails with ErrInvitationNotPending.
	DeclineInvitation(ctx context.Context, invitationID string, at time.Time) error
	// DeletePendingInvitation fails with ErrInvitationNotPending.
	DeletePendingInvitation(ctx context.Context, invitationID string) error

	// AppendMessage stores m and returns its stored timestamp, which is
	// strictly later than every earlier message of the plan.
	AppendMessage(ctx context.Context, m Message) (time.Time, error)
	// ListMessages returns messages oldest first. With a zero since it is
	// the most recent limit messages; otherwise the first limit messages
	// created strictly after since.
	ListMessages(ctx context.Context, planID string, since time.Time, limit int) ([]Message, error)
}
