// Package events publishes plan changes over NATS so connected clients can be
// pushed updates instead of polling.
//
// Plan events go to subjects of the form:
//
//	plans.<planID>.<type>      e.g. plans.4b1d....message.posted
//
// Notifications go to notifications.<userID>.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Type is a plan event type.
type Type string

const (
	PlanUpdated         Type = "plan.updated"
	PlanDeleted         Type = "plan.deleted"
	MemberJoined        Type = "member.joined"
	MemberUpdated       Type = "member.updated"
	MemberRemoved       Type = "member.removed"
	InvitationCreated   Type = "invitation.created"
	InvitationCancelled Type = "invitation.cancelled"
	InvitationDeclined  Type = "invitation.declined"
	TaskCreated         Type = "task.created"
	TaskUpdated         Type = "task.updated"
	TaskDeleted         Type = "task.deleted"
	MessagePosted       Type = "message.posted"
)

// Event is a change to a plan.
type Event struct {
	Type    Type            `json:"type"`
	PlanID  string          `json:"planId"`
	ActorID string          `json:"actorId"`
	At      time.Time       `json:"at"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// New builds an Event, encoding data as its payload.
func New(typ Type, planID, actorID string, at time.Time, data any) (Event, error) {
	ev := Event{Type: typ, PlanID: planID, ActorID: actorID, At: at}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, fmt.Errorf("encoding %s payload: %w", typ, err)
		}
		ev.Data = raw
	}
	return ev, nil
}

// Publisher emits plan events and user notifications.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	PublishNotification(ctx context.Context, userID string, payload any) error
}

// PlanSubject returns the subject for a plan event.
func PlanSubject(planID string, typ Type) string {
	return fmt.Sprintf("plans.%s.%s", planID, typ)
}

// PlanWildcard matches every event of a plan.
func PlanWildcard(planID string) string {
	return fmt.Sprintf("plans.%s.>", planID)
}

// NotificationSubject returns the subject for a user's notifications.
func NotificationSubject(userID string) string {
	return "notifications." + userID
}

// Nop discards everything. It is used when the event feed is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) PublishNotification(context.Context, string, any) error { return nil }
