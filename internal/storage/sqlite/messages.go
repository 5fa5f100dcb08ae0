package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/dailycompanion/companion/internal/sharedplan"
)

// AppendMessage stores a discussion message and returns the timestamp it
// was stored under. Timestamps are strictly increasing per plan, so a
// message never lands behind a cursor a reader already holds.
func (s *Store) AppendMessage(ctx context.Context, m sharedplan.Message) (time.Time, error) {
	if err := s.ready(ctx); err != nil {
		return time.Time{}, err
	}
	var stored int64
	err := s.sqlDB.QueryRowContext(ctx, `
INSERT INTO plan_messages (id, plan_id, sender_id, content, created_at)
VALUES (?, ?, ?, ?, MAX(?, COALESCE((SELECT MAX(created_at) + 1 FROM plan_messages WHERE plan_id = ?), ?)))
RETURNING created_at`,
		m.ID, m.PlanID, m.SenderID, m.Content, toNanos(m.CreatedAt), m.PlanID, toNanos(m.CreatedAt),
	).Scan(&stored)
	if isForeignKeyConstraintError(err) {
		return time.Time{}, fmt.Errorf("plan %s: %w", m.PlanID, sharedplan.ErrNotFound)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("insert message: %w", err)
	}
	return fromNanos(stored), nil
}

// ListMessages returns one page of a plan discussion, oldest first. With a
// zero since it is the latest limit messages; otherwise it is the first
// limit messages after since, so a reader paging forward misses nothing.
func (s *Store) ListMessages(ctx context.Context, planID string, since time.Time, limit int) ([]sharedplan.Message, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []sharedplan.Message{}, nil
	}

	query := `
SELECT id, plan_id, sender_id, content, created_at
FROM plan_messages
WHERE plan_id = ? AND created_at > ?
ORDER BY created_at ASC, rowid ASC
LIMIT ?`
	if since.IsZero() {
		query = `
SELECT id, plan_id, sender_id, content, created_at
FROM (
    SELECT rowid AS seq, id, plan_id, sender_id, content, created_at
    FROM plan_messages
    WHERE plan_id = ? AND created_at > ?
    ORDER BY created_at DESC, seq DESC
    LIMIT ?
)
ORDER BY created_at ASC, seq ASC`
	}

	rows, err := s.readDB.QueryContext(ctx, query, planID, sinceNanos(since), limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []sharedplan.Message{}
	for rows.Next() {
		var (
			m         sharedplan.Message
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.PlanID, &m.SenderID, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = fromNanos(createdAt)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}
