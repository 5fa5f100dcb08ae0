package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dailycompanion/companion/internal/sharedplan"
)

const invitationSelect = `
SELECT i.id, i.plan_id, p.name, i.invited_by, i.invited_user, i.role, i.status, i.created_at, i.updated_at
FROM plan_invitations i
JOIN plans p ON p.id = i.plan_id`

// CreateInvitation inserts a pending invitation.
func (s *Store) CreateInvitation(ctx context.Context, inv sharedplan.Invitation) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO plan_invitations (id, plan_id, invited_by, invited_user, role, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.PlanID, inv.InvitedBy, inv.InvitedUser, string(inv.Role), string(inv.Status),
		toNanos(inv.CreatedAt), toNanos(inv.UpdatedAt),
	)
	switch {
	case err == nil:
		return nil
	case isForeignKeyConstraintError(err):
		return fmt.Errorf("plan %s: %w", inv.PlanID, sharedplan.ErrNotFound)
	case isUniqueConstraintError(err):
		return sharedplan.ErrDuplicateInvitation
	default:
		return fmt.Errorf("insert invitation: %w", err)
	}
}

// GetInvitation returns one invitation with its plan name.
func (s *Store) GetInvitation(ctx context.Context, id string) (sharedplan.Invitation, error) {
	if err := s.ready(ctx); err != nil {
		return sharedplan.Invitation{}, err
	}
	inv, err := scanInvitation(s.readDB.QueryRowContext(ctx, invitationSelect+" WHERE i.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return sharedplan.Invitation{}, fmt.Errorf("invitation %s: %w", id, sharedplan.ErrNotFound)
	}
	if err != nil {
		return sharedplan.Invitation{}, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

// ListInvitationsByPlan returns every invitation of a plan, newest first.
func (s *Store) ListInvitationsByPlan(ctx context.Context, planID string) ([]sharedplan.Invitation, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.queryInvitations(ctx, invitationSelect+" WHERE i.plan_id = ? ORDER BY i.created_at DESC, i.id", planID)
}

// ListPendingInvitationsForUser returns the user's pending invitations,
// newest first.
func (s *Store) ListPendingInvitationsForUser(ctx context.Context, userID string) ([]sharedplan.Invitation, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.queryInvitations(ctx,
		invitationSelect+" WHERE i.invited_user = ? AND i.status = 'pending' ORDER BY i.created_at DESC, i.id", userID)
}

// AcceptInvitation flips a pending invitation to accepted and inserts the
// member in one transaction.
func (s *Store) AcceptInvitation(ctx context.Context, invitationID string, m sharedplan.Member, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, "accept invitation", func(tx *sql.Tx) error {
		planID, err := transitionPending(ctx, tx, invitationID, sharedplan.InvitationAccepted, at)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO plan_members (plan_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)",
			planID, m.UserID, string(m.Role), toNanos(m.JoinedAt),
		)
		if isUniqueConstraintError(err) {
			return sharedplan.ErrAlreadyMember
		}
		if err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
		return touchPlan(ctx, tx, planID, at)
	})
}

// DeclineInvitation marks a pending invitation declined.
func (s *Store) DeclineInvitation(ctx context.Context, invitationID string, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, "decline invitation", func(tx *sql.Tx) error {
		_, err := transitionPending(ctx, tx, invitationID, sharedplan.InvitationDeclined, at)
		return err
	})
}

// DeletePendingInvitation removes an invitation that is still pending.
func (s *Store) DeletePendingInvitation(ctx context.Context, invitationID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, "cancel invitation", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM plan_invitations WHERE id = ? AND status = 'pending'", invitationID)
		if err != nil {
			return fmt.Errorf("delete invitation: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return notPendingOrMissing(ctx, tx, invitationID)
		}
		return nil
	})
}

// transitionPending moves a pending invitation to status and returns its
// plan ID.
func transitionPending(ctx context.Context, tx *sql.Tx, invitationID string, status sharedplan.InvitationStatus, at time.Time) (string, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE plan_invitations SET status = ?, updated_at = ? WHERE id = ? AND status = 'pending'",
		string(status), toNanos(at), invitationID,
	)
	if err != nil {
		return "", fmt.Errorf("update invitation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return "", notPendingOrMissing(ctx, tx, invitationID)
	}

	var planID string
	if err := tx.QueryRowContext(ctx,
		"SELECT plan_id FROM plan_invitations WHERE id = ?", invitationID).Scan(&planID); err != nil {
		return "", fmt.Errorf("get invitation plan: %w", err)
	}
	return planID, nil
}

func notPendingOrMissing(ctx context.Context, tx *sql.Tx, invitationID string) error {
	var status string
	err := tx.QueryRowContext(ctx,
		"SELECT status FROM plan_invitations WHERE id = ?", invitationID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("invitation %s: %w", invitationID, sharedplan.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get invitation status: %w", err)
	}
	return sharedplan.ErrInvitationNotPending
}

func (s *Store) queryInvitations(ctx context.Context, query string, args ...any) ([]sharedplan.Invitation, error) {
	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	invitations := []sharedplan.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitations: %w", err)
	}
	return invitations, nil
}

func scanInvitation(row rowScanner) (sharedplan.Invitation, error) {
	var (
		inv                  sharedplan.Invitation
		role, status         string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&inv.ID, &inv.PlanID, &inv.PlanName, &inv.InvitedBy, &inv.InvitedUser,
		&role, &status, &createdAt, &updatedAt); err != nil {
		return sharedplan.Invitation{}, err
	}
	inv.Role = sharedplan.Role(role)
	inv.Status = sharedplan.InvitationStatus(status)
	inv.CreatedAt = fromNanos(createdAt)
	inv.UpdatedAt = fromNanos(updatedAt)
	return inv, nil
}
