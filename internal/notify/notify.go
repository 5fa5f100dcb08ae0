// Package notify stores per-user notifications and pushes them to the
// user's notification subject.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dailycompanion/companion/internal/events"
	"github.com/dailycompanion/companion/internal/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind classifies a notification.
type Kind string

const (
	// InvitationAccepted tells an inviter that their invitation was accepted.
	InvitationAccepted Kind = "invitation_accepted"
	// InvitationReceived tells a user they were invited to a plan.
	InvitationReceived Kind = "invitation_received"
)

const listLimit = 100

// Notification is a message addressed to one user.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Kind      Kind       `json:"kind"`
	PlanID    string     `json:"planId,omitempty"`
	ActorID   string     `json:"actorId,omitempty"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt"`
}

// Store persists notifications.
type Store interface {
	CreateNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error)
	// MarkNotificationsRead marks the given notifications read, or all of the
	// user's unread notifications when ids is empty, and returns the count.
	MarkNotificationsRead(ctx context.Context, userID string, ids []string, at time.Time) (int, error)
}

// Service creates and reads notifications.
type Service struct {
	store     Store
	publisher events.Publisher
	logger    *logging.Logger
	now       func() time.Time
}

// NewService creates a notification service. publisher may be nil.
func NewService(store Store, publisher events.Publisher, logger *logging.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("notification store is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{store: store, publisher: publisher, logger: logger, now: time.Now}, nil
}

// Notify persists n and pushes it to the recipient. Push failures are logged
// and do not fail the call.
func (s *Service) Notify(ctx context.Context, n Notification) (Notification, error) {
	if n.UserID == "" {
		return Notification{}, errors.New("notification recipient is required")
	}
	n.ID = uuid.New().String()
	n.CreatedAt = s.now().UTC()
	n.ReadAt = nil

	if err := s.store.CreateNotification(ctx, n); err != nil {
		return Notification{}, fmt.Errorf("storing notification: %w", err)
	}

	if err := s.publisher.PublishNotification(ctx, n.UserID, n); err != nil {
		s.logger.Warn(ctx, "notification push failed",
			zap.String("notification", n.ID),
			zap.Error(err),
		)
	}
	return n, nil
}

// List returns the user's most recent notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	list, err := s.store.ListNotifications(ctx, userID, unreadOnly, listLimit)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return list, nil
}

// MarkRead marks notifications read. An empty ids marks all of them.
func (s *Service) MarkRead(ctx context.Context, userID string, ids []string) (int, error) {
	n, err := s.store.MarkNotificationsRead(ctx, userID, ids, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	return n, nil
}
