package sharedplan

import (
	"context"
	"fmt"
	"time"

	"github.com/dailycompanion/companion/internal/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageQuery narrows a discussion read. A zero Since returns the latest
// page; a set Since returns the next page after it. Limit defaults to 200
// and is capped at 500.
type MessageQuery struct {
	Since time.Time
	Limit int
}

// PostMessage appends a message to the plan discussion. Any member,
// viewers included, may post.
func (s *Service) PostMessage(ctx context.Context, actor, planID, content string) (msg Message, err error) {
	ctx, _, done := s.begin(ctx, "message.post", planID)
	defer func() { done(err) }()

	plan, err := s.authorize(ctx, planID, actor, ActionChat, "Only plan members can post messages")
	if err != nil {
		return Message{}, err
	}

	text, err := cleanText("content", content, s.maxMessageLength, true)
	if err != nil {
		return Message{}, err
	}
	if s.filter != nil {
		var redacted int
		if text, redacted = s.filter.Filter(text); redacted > 0 {
			messagesRedacted.Add(float64(redacted))
			s.logger.Info(ctx, "redacted credentials from message", zap.Int("regions", redacted))
		}
	}

	msg = Message{
		ID:        uuid.New().String(),
		PlanID:    plan.ID,
		SenderID:  actor,
		Content:   text,
		CreatedAt: s.now().UTC(),
	}
	if msg.CreatedAt, err = s.store.AppendMessage(ctx, msg); err != nil {
		return Message{}, s.storeErr(err, "Plan not found", "posting message")
	}

	messagesPosted.Inc()
	s.emit(ctx, events.MessagePosted, plan.ID, actor, msg)
	return msg, nil
}

// ListMessages returns the plan discussion oldest first. Any member may read.
func (s *Service) ListMessages(ctx context.Context, actor, planID string, q MessageQuery) (msgs []Message, err error) {
	ctx, _, done := s.begin(ctx, "message.list", planID)
	defer func() { done(err) }()

	if _, err := s.authorize(ctx, planID, actor, ActionView, "You are not a member of this plan"); err != nil {
		return nil, err
	}

	limit := q.Limit
	switch {
	case limit <= 0:
		limit = defaultMessageLimit
	case limit > maxMessageLimit:
		limit = maxMessageLimit
	}

	msgs, err = s.store.ListMessages(ctx, planID, q.Since, limit)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}
