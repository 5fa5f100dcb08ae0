package sharedplan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dailycompanion/companion/internal/events"
	"github.com/dailycompanion/companion/internal/logging"
	"github.com/dailycompanion/companion/internal/notify"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Invitation responses.
const (
	ActionAccept  = "accept"
	ActionDecline = "decline"
)

// CreateInvitation invites userID to the plan with role. Requires manage
// permission. At most one invitation per plan and user may be pending.
func (s *Service) CreateInvitation(ctx context.Context, actor, planID, userID, role string) (inv Invitation, err error) {
	ctx, _, done := s.begin(ctx, "invitation.create", planID)
	defer func() { done(err) }()

	plan, err := s.authorize(ctx, planID, actor, ActionManage, "You don't have permission to invite members")
	if err != nil {
		return Invitation{}, err
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Invitation{}, invalid("userId is required")
	}
	if !logging.ValidID(userID) {
		return Invitation{}, invalid("userId is not a valid user identifier")
	}
	invRole, err := ParseMemberRole(role)
	if err != nil {
		return Invitation{}, err
	}
	if userID == plan.OwnerID {
		return Invitation{}, invalid("User is already the owner of this plan")
	}
	if _, ok := plan.Member(userID); ok {
		return Invitation{}, invalid("User is already a member of this plan")
	}

	now := s.now().UTC()
	inv = Invitation{
		ID:          uuid.New().String(),
		PlanID:      plan.ID,
		PlanName:    plan.Name,
		InvitedBy:   actor,
		InvitedUser: userID,
		Role:        invRole,
		Status:      InvitationPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		if errors.Is(err, ErrDuplicateInvitation) {
			return Invitation{}, invalid("An invitation is already pending for this user")
		}
		return Invitation{}, s.storeErr(err, "Plan not found", "creating invitation")
	}

	invitationsTotal.WithLabelValues("created").Inc()
	s.logger.Info(ctx, "invitation created",
		zap.String("invitation", inv.ID),
		zap.String("invitee", userID),
		zap.String("role", string(invRole)),
	)
	s.emit(ctx, events.InvitationCreated, plan.ID, actor, inv)
	s.sendNotification(ctx, notify.Notification{
		UserID:  userID,
		Kind:    notify.InvitationReceived,
		PlanID:  plan.ID,
		ActorID: actor,
		Message: fmt.Sprintf("%s invited you to join %q as %s", actor, plan.Name, invRole),
	})
	return inv, nil
}

// ListInvitations returns every invitation of the plan, newest first.
// Requires manage permission.
func (s *Service) ListInvitations(ctx context.Context, actor, planID string) (list []Invitation, err error) {
	ctx, _, done := s.begin(ctx, "invitation.list", planID)
	defer func() { done(err) }()

	if _, err := s.authorize(ctx, planID, actor, ActionManage, "You don't have permission to view invitations"); err != nil {
		return nil, err
	}
	list, err = s.store.ListInvitationsByPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}
	return list, nil
}

// ListMyInvitations returns the pending invitations addressed to actor.
func (s *Service) ListMyInvitations(ctx context.Context, actor string) (list []Invitation, err error) {
	ctx, _, done := s.begin(ctx, "invitation.list_mine", "")
	defer func() { done(err) }()

	list, err = s.store.ListPendingInvitationsForUser(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}
	return list, nil
}

// RespondInvitation accepts or declines an invitation addressed to actor.
// Accepting adds actor as a member with the invited role and notifies the
// inviter; the invitation record is kept with status accepted.
func (s *Service) RespondInvitation(ctx context.Context, actor, invitationID, action string) (inv Invitation, err error) {
	ctx, span, done := s.begin(ctx, "invitation.respond", "")
	defer func() { done(err) }()
	span.SetAttributes(attribute.String("invitation.id", invitationID), attribute.String("action", action))

	if action != ActionAccept && action != ActionDecline {
		return Invitation{}, invalid("action must be %q or %q", ActionAccept, ActionDecline)
	}
	if invitationID == "" {
		return Invitation{}, invalid("invitationId is required")
	}

	inv, err = s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return Invitation{}, s.storeErr(err, "Invitation not found", "loading invitation")
	}
	ctx = logging.WithPlanID(ctx, inv.PlanID)
	span.SetAttributes(attribute.String("plan.id", inv.PlanID))

	if inv.InvitedUser != actor {
		return Invitation{}, forbidden("This invitation is not addressed to you")
	}
	if inv.Status != InvitationPending {
		return Invitation{}, invalid("Invitation has already been %s", inv.Status)
	}

	now := s.now().UTC()
	switch action {
	case ActionAccept:
		role, err := ParseMemberRole(string(inv.Role))
		if err != nil {
			return Invitation{}, err
		}
		member := Member{UserID: actor, Role: role, JoinedAt: now}
		if err := s.store.AcceptInvitation(ctx, inv.ID, member, now); err != nil {
			return Invitation{}, s.respondErr(err)
		}
		inv.Status = InvitationAccepted
		inv.UpdatedAt = now

		invitationsTotal.WithLabelValues("accepted").Inc()
		s.logger.Info(ctx, "invitation accepted", zap.String("invitation", inv.ID))
		s.emit(ctx, events.MemberJoined, inv.PlanID, actor, member)
		s.sendNotification(ctx, notify.Notification{
			UserID:  inv.InvitedBy,
			Kind:    notify.InvitationAccepted,
			PlanID:  inv.PlanID,
			ActorID: actor,
			Message: fmt.Sprintf("%s accepted your invitation to %q", actor, inv.PlanName),
		})

	case ActionDecline:
		if err := s.store.DeclineInvitation(ctx, inv.ID, now); err != nil {
			return Invitation{}, s.respondErr(err)
		}
		inv.Status = InvitationDeclined
		inv.UpdatedAt = now

		invitationsTotal.WithLabelValues("declined").Inc()
		s.emit(ctx, events.InvitationDeclined, inv.PlanID, actor, map[string]string{"invitationId": inv.ID})
	}

	return inv, nil
}

func (s *Service) respondErr(err error) error {
	switch {
	case errors.Is(err, ErrInvitationNotPending):
		return invalid("Invitation has already been responded to")
	case errors.Is(err, ErrAlreadyMember):
		return invalid("You are already a member of this plan")
	default:
		return s.storeErr(err, "Invitation not found", "responding to invitation")
	}
}

// CancelInvitation deletes a pending invitation of the plan. Requires manage
// permission. Unlike a decline, nothing of the invitation is kept.
func (s *Service) CancelInvitation(ctx context.Context, actor, planID, invitationID string) (err error) {
	ctx, span, done := s.begin(ctx, "invitation.cancel", planID)
	defer func() { done(err) }()
	span.SetAttributes(attribute.String("invitation.id", invitationID))

	if _, err := s.authorize(ctx, planID, actor, ActionManage, "You don't have permission to cancel invitations"); err != nil {
		return err
	}
	if invitationID == "" {
		return invalid("invitationId is required")
	}

	inv, err := s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return s.storeErr(err, "Invitation not found", "loading invitation")
	}
	if inv.PlanID != planID {
		return notFound("Invitation not found")
	}
	if err := s.store.DeletePendingInvitation(ctx, invitationID); err != nil {
		if errors.Is(err, ErrInvitationNotPending) {
			return invalid("Only pending invitations can be cancelled")
		}
		return s.storeErr(err, "Invitation not found", "cancelling invitation")
	}

	invitationsTotal.WithLabelValues("cancelled").Inc()
	s.emit(ctx, events.InvitationCancelled, planID, actor, map[string]string{"invitationId": invitationID})
	return nil
}
