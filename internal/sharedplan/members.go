package sharedplan

import (
	"context"

	"github.com/dailycompanion/companion/internal/events"
	"go.opentelemetry.io/otel/attribute"
)

// UpdateMemberRole changes a member's role. Owner only.
func (s *Service) UpdateMemberRole(ctx context.Context, actor, planID, userID, role string) (member Member, err error) {
	ctx, span, done := s.begin(ctx, "member.update", planID)
	defer func() { done(err) }()
	span.SetAttributes(attribute.String("member.id", userID))

	plan, err := s.authorize(ctx, planID, actor, ActionDelete, "Only the plan owner can change member roles")
	if err != nil {
		return Member{}, err
	}
	newRole, err := ParseMemberRole(role)
	if err != nil {
		return Member{}, err
	}
	member, ok := plan.Member(userID)
	if !ok {
		return Member{}, notFound("Member not found")
	}
	if member.Role == newRole {
		return member, nil
	}

	if err := s.store.UpdateMemberRole(ctx, planID, userID, newRole, s.now().UTC()); err != nil {
		return Member{}, s.storeErr(err, "Member not found", "updating member role")
	}
	member.Role = newRole

	s.emit(ctx, events.MemberUpdated, planID, actor, member)
	return member, nil
}

// RemoveMember removes userID from the plan. The owner may remove any
// member; a member may remove only themself. The owner cannot leave.
// Tasks assigned to the removed member become unassigned.
func (s *Service) RemoveMember(ctx context.Context, actor, planID, userID string) (err error) {
	ctx, span, done := s.begin(ctx, "member.remove", planID)
	defer func() { done(err) }()
	span.SetAttributes(attribute.String("member.id", userID))

	plan, err := s.authorize(ctx, planID, actor, ActionView, "You are not a member of this plan")
	if err != nil {
		return err
	}
	if userID == plan.OwnerID {
		return invalid("The plan owner cannot leave or be removed from the plan")
	}
	if actor != plan.OwnerID && actor != userID {
		return forbidden("Only the plan owner can remove other members")
	}
	if _, ok := plan.Member(userID); !ok {
		return notFound("Member not found")
	}

	if err := s.store.RemoveMember(ctx, planID, userID, s.now().UTC()); err != nil {
		return s.storeErr(err, "Member not found", "removing member")
	}

	s.emit(ctx, events.MemberRemoved, planID, actor, map[string]string{"userId": userID})
	return nil
}
