package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dailycompanion/companion/internal/notify"
)

// CreateNotification stores a notification.
func (s *Store) CreateNotification(ctx context.Context, n notify.Notification) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notifications (id, user_id, kind, plan_id, actor_id, message, created_at, read_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, string(n.Kind), n.PlanID, n.ActorID, n.Message, toNanos(n.CreatedAt), nullTime(n.ReadAt),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notify.Notification, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []notify.Notification{}, nil
	}

	query := `
SELECT id, user_id, kind, plan_id, actor_id, message, created_at, read_at
FROM notifications
WHERE user_id = ?`
	if unreadOnly {
		query += " AND read_at IS NULL"
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"

	rows, err := s.readDB.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	list := []notify.Notification{}
	for rows.Next() {
		var (
			n         notify.Notification
			kind      string
			createdAt int64
			readAt    sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.PlanID, &n.ActorID, &n.Message, &createdAt, &readAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Kind = notify.Kind(kind)
		n.CreatedAt = fromNanos(createdAt)
		n.ReadAt = timePtr(readAt)
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return list, nil
}

// MarkNotificationsRead stamps read_at on unread notifications of the user.
// ids belonging to other users are ignored.
func (s *Store) MarkNotificationsRead(ctx context.Context, userID string, ids []string, at time.Time) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	query := "UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL"
	args := []any{toNanos(at), userID}
	if len(ids) > 0 {
		query += " AND id IN (?" + strings.Repeat(", ?", len(ids)-1) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}

	res, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
