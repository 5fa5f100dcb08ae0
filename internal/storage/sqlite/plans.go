package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dailycompanion/companion/internal/sharedplan"
)

const planColumns = "id, name, description, owner_id, created_at, updated_at"

const taskColumns = "id, plan_id, title, description, status, assigned_to, created_by, created_at, updated_at, completed_at"

// CreatePlan inserts a plan row. Members and tasks are stored separately.
func (s *Store) CreatePlan(ctx context.Context, p sharedplan.Plan) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		"INSERT INTO plans ("+planColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		p.ID, p.Name, p.Description, p.OwnerID, toNanos(p.CreatedAt), toNanos(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

// GetPlan loads a plan with its members and tasks from one snapshot.
func (s *Store) GetPlan(ctx context.Context, id string) (sharedplan.Plan, error) {
	if err := s.ready(ctx); err != nil {
		return sharedplan.Plan{}, err
	}

	var plan sharedplan.Plan
	err := s.readTx(ctx, "get plan", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "SELECT "+planColumns+" FROM plans WHERE id = ?", id)
		p, err := scanPlan(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("plan %s: %w", id, sharedplan.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get plan: %w", err)
		}
		if p.Members, err = loadMembers(ctx, tx, id); err != nil {
			return err
		}
		if p.Tasks, err = loadTasks(ctx, tx, id); err != nil {
			return err
		}
		plan = p
		return nil
	})
	return plan, err
}

// ListPlansForUser returns plans the user owns or belongs to, with members.
func (s *Store) ListPlansForUser(ctx context.Context, userID string) ([]sharedplan.Plan, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var plans []sharedplan.Plan
	err := s.readTx(ctx, "list plans", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
SELECT `+planColumns+`
FROM plans p
WHERE p.owner_id = ?
   OR EXISTS (SELECT 1 FROM plan_members m WHERE m.plan_id = p.id AND m.user_id = ?)
ORDER BY p.updated_at DESC, p.id`, userID, userID)
		if err != nil {
			return fmt.Errorf("list plans: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPlan(rows)
			if err != nil {
				return fmt.Errorf("scan plan: %w", err)
			}
			plans = append(plans, p)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate plans: %w", err)
		}
		rows.Close()

		for i := range plans {
			if plans[i].Members, err = loadMembers(ctx, tx, plans[i].ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plans, nil
}

// UpdatePlanDetails sets the plan name and description.
func (s *Store) UpdatePlanDetails(ctx context.Context, id, name, description string, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		"UPDATE plans SET name = ?, description = ?, updated_at = ? WHERE id = ?",
		name, description, toNanos(at), id,
	)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	return expectRow(res, "plan "+id)
}

// DeletePlan removes the plan. Members, tasks, invitations and messages go
// with it through ON DELETE CASCADE in the same statement.
func (s *Store) DeletePlan(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, "DELETE FROM plans WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	return expectRow(res, "plan "+id)
}

// UpdateMemberRole changes an existing member's role.
func (s *Store) UpdateMemberRole(ctx context.Context, planID, userID string, role sharedplan.Role, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, "update member", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE plan_members SET role = ? WHERE plan_id = ? AND user_id = ?",
			string(role), planID, userID,
		)
		if err != nil {
			return fmt.Errorf("update member role: %w", err)
		}
		if err := expectRow(res, "member "+userID); err != nil {
			return err
		}
		return touchPlan(ctx, tx, planID, at)
	})
}

// RemoveMember deletes the member and unassigns their tasks.
func (s *Store) RemoveMember(ctx context.Context, planID, userID string, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, "remove member", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM plan_members WHERE plan_id = ? AND user_id = ?", planID, userID)
		if err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		if err := expectRow(res, "member "+userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE plan_tasks SET assigned_to = NULL, updated_at = ? WHERE plan_id = ? AND assigned_to = ?",
			toNanos(at), planID, userID,
		); err != nil {
			return fmt.Errorf("unassign tasks: %w", err)
		}
		return touchPlan(ctx, tx, planID, at)
	})
}

// CreateTask inserts a task into an existing plan.
func (s *Store) CreateTask(ctx context.Context, t sharedplan.Task) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, "create task", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO plan_tasks ("+taskColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			t.ID, t.PlanID, t.Title, t.Description, string(t.Status), nullString(t.AssignedTo),
			t.CreatedBy, toNanos(t.CreatedAt), toNanos(t.UpdatedAt), nullTime(t.CompletedAt),
		)
		if isForeignKeyConstraintError(err) {
			return fmt.Errorf("plan %s: %w", t.PlanID, sharedplan.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return touchPlan(ctx, tx, t.PlanID, t.UpdatedAt)
	})
}

// UpdateTask replaces the mutable fields of a task.
func (s *Store) UpdateTask(ctx context.Context, t sharedplan.Task) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, "update task", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE plan_tasks
SET title = ?, description = ?, status = ?, assigned_to = ?, updated_at = ?, completed_at = ?
WHERE id = ? AND plan_id = ?`,
			t.Title, t.Description, string(t.Status), nullString(t.AssignedTo),
			toNanos(t.UpdatedAt), nullTime(t.CompletedAt), t.ID, t.PlanID,
		)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if err := expectRow(res, "task "+t.ID); err != nil {
			return err
		}
		return touchPlan(ctx, tx, t.PlanID, t.UpdatedAt)
	})
}

// DeleteTask removes a task from a plan.
func (s *Store) DeleteTask(ctx context.Context, planID, taskID string, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, "delete task", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM plan_tasks WHERE id = ? AND plan_id = ?", taskID, planID)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		if err := expectRow(res, "task "+taskID); err != nil {
			return err
		}
		return touchPlan(ctx, tx, planID, at)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (sharedplan.Plan, error) {
	var (
		p                    sharedplan.Plan
		createdAt, updatedAt int64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &createdAt, &updatedAt); err != nil {
		return sharedplan.Plan{}, err
	}
	p.CreatedAt = fromNanos(createdAt)
	p.UpdatedAt = fromNanos(updatedAt)
	p.Members = []sharedplan.Member{}
	p.Tasks = []sharedplan.Task{}
	return p, nil
}

func loadMembers(ctx context.Context, q queryer, planID string) ([]sharedplan.Member, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT user_id, role, joined_at FROM plan_members WHERE plan_id = ? ORDER BY joined_at, user_id", planID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []sharedplan.Member{}
	for rows.Next() {
		var (
			m        sharedplan.Member
			role     string
			joinedAt int64
		)
		if err := rows.Scan(&m.UserID, &role, &joinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Role = sharedplan.Role(role)
		m.JoinedAt = fromNanos(joinedAt)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

func loadTasks(ctx context.Context, q queryer, planID string) ([]sharedplan.Task, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM plan_tasks WHERE plan_id = ? ORDER BY created_at, rowid", planID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []sharedplan.Task{}
	for rows.Next() {
		var (
			t                    sharedplan.Task
			status               string
			assignedTo           sql.NullString
			createdAt, updatedAt int64
			completedAt          sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.PlanID, &t.Title, &t.Description, &status, &assignedTo,
			&t.CreatedBy, &createdAt, &updatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = sharedplan.TaskStatus(status)
		t.AssignedTo = stringPtr(assignedTo)
		t.CreatedAt = fromNanos(createdAt)
		t.UpdatedAt = fromNanos(updatedAt)
		t.CompletedAt = timePtr(completedAt)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}
