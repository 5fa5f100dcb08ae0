package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dailycompanion/companion/internal/notify"
	"github.com/dailycompanion/companion/internal/sharedplan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "companion.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedPlan(t *testing.T, store *Store, id, owner string) sharedplan.Plan {
	t.Helper()
	p := sharedplan.Plan{
		ID:        id,
		Name:      "Plan " + id,
		OwnerID:   owner,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
	require.NoError(t, store.CreatePlan(context.Background(), p))
	return p
}

func seedMember(t *testing.T, store *Store, planID, userID string, role sharedplan.Role) {
	t.Helper()
	ctx := context.Background()
	invID := "inv-" + planID + "-" + userID
	require.NoError(t, store.CreateInvitation(ctx, sharedplan.Invitation{
		ID:          invID,
		PlanID:      planID,
		InvitedBy:   "owner",
		InvitedUser: userID,
		Role:        role,
		Status:      sharedplan.InvitationPending,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}))
	require.NoError(t, store.AcceptInvitation(ctx, invID,
		sharedplan.Member{UserID: userID, Role: role, JoinedAt: baseTime}, baseTime))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "companion.db")

	first, err := Open(context.Background(), path)
	require.NoError(t, err)
	seedPlan(t, first, "p1", "owner")
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer second.Close()

	plan, err := second.GetPlan(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "owner", plan.OwnerID)
}

func TestCanceledContext(t *testing.T) {
	store := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.GetPlan(ctx, "p1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNilStore(t *testing.T) {
	var store *Store
	assert.Error(t, store.CreatePlan(context.Background(), sharedplan.Plan{}))
	assert.NoError(t, store.Close())
}

func TestGetPlanNotFound(t *testing.T) {
	store := openTempStore(t)
	_, err := store.GetPlan(context.Background(), "missing")
	assert.ErrorIs(t, err, sharedplan.ErrNotFound)

	err = store.UpdatePlanDetails(context.Background(), "missing", "n", "", baseTime)
	assert.ErrorIs(t, err, sharedplan.ErrNotFound)

	err = store.DeletePlan(context.Background(), "missing")
	assert.ErrorIs(t, err, sharedplan.ErrNotFound)
}

func TestPlanRoundTrip(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedPlan(t, store, "p1", "owner")
	seedMember(t, store, "p1", "bob", sharedplan.RoleEditor)

	later := baseTime.Add(time.Hour)
	require.NoError(t, store.UpdatePlanDetails(ctx, "p1", "Trip", "Summer", later))

	plan, err := store.GetPlan(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Trip", plan.Name)
	assert.Equal(t, "Summer", plan.Description)
	assert.True(t, plan.UpdatedAt.Equal(later))
	assert.True(t, plan.CreatedAt.Equal(baseTime))
	require.Len(t, plan.Members, 1)
	assert.Equal(t, sharedplan.RoleEditor, plan.Members[0].Role)
	assert.Empty(t, plan.Tasks)
}

func TestListPlansForUser(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedPlan(t, store, "own", "alice")
	seedPlan(t, store, "shared", "carol")
	seedPlan(t, store, "other", "carol")
	seedMember(t, store, "shared", "alice", sharedplan.RoleViewer)
	require.NoError(t, store.UpdatePlanDetails(ctx, "shared", "Shared", "", baseTime.Add(time.Minute)))

	plans, err := store.ListPlansForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "shared", plans[0].ID)
	assert.Equal(t, "own", plans[1].ID)
	require.Len(t, plans[0].Members, 1)
	assert.Equal(t, "alice", plans[0].Members[0].UserID)

	plans, err = store.ListPlansForUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestTaskLifecycle(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedPlan(t, store, "p1", "owner")

	bob := "bob"
	task := sharedplan.Task{
		ID:         "t1",
		PlanID:     "p1",
		Title:      "Book flights",
		Status:     sharedplan.TaskPending,
		AssignedTo: &bob,
		CreatedBy:  "owner",
		CreatedAt:  baseTime,
		UpdatedAt:  baseTime,
	}
	require.NoError(t, store.CreateTask(ctx, task))

	done := baseTime.Add(time.Hour)
	task.Status = sharedplan.TaskCompleted
	task.CompletedAt = &done
	task.UpdatedAt = done
	require.NoError(t, store.UpdateTask(ctx, task))

	plan, err := store.GetPlan(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 1)
	got := plan.Tasks[0]
	assert.Equal(t, sharedplan.TaskCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, "bob", *got.AssignedTo)
	assert.True(t, plan.UpdatedAt.Equal(done))

	require.NoError(t, store.DeleteTask(ctx, "p1", "t1", done))
	err = store.DeleteTask(ctx, "p1", "t1", done)
	assert.ErrorIs(t, err, sharedplan.ErrNotFound)
}

func TestTaskCompletionCheckConstraint(t *testing.T) {
	store := openTempStore(t)
	seedPlan(t, store, "p1", "owner")

	err := store.CreateTask(context.Background(), sharedplan.Task{
		ID:        "t1",
		PlanID:    "p1",
		Title:     "Broken",
		Status:    sharedplan.TaskCompleted,
		CreatedBy: "owner",
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	})
	require.Error(t, err)
}

func TestCreateTaskMissingPlan(t *testing.T) {
	store := openTempStore(t)
	err := store.CreateTask(context.Background(), sharedplan.Task{
		ID: "t1", PlanID: "missing", Title: "x", Status: sharedplan.TaskPending,
		CreatedBy: "owner", CreatedAt: baseTime, UpdatedAt: baseTime,
	})
	assert.ErrorIs(t, err, sharedplan.ErrNotFound)
}

func TestMemberRoleUpdateAndRemoval(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedPlan(t, store, "p1", "owner")
	seedMember(t, store, "p1", "bob", sharedplan.RoleViewer)

	bob := "bob"
	require.NoError(t, store.CreateTask(ctx, sharedplan.Task{
		ID: "t1", PlanID: "p1", Title: "Pack", Status: sharedplan.TaskPending, AssignedTo: &bob,
		CreatedBy: "owner", CreatedAt: baseTime, UpdatedAt: baseTime,
	}))

	require.NoError(t, store.UpdateMemberRole(ctx, "p1", "bob", sharedplan.RoleEditor, baseTime))
	plan, err := store.GetPlan(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, sharedplan.RoleEditor, plan.Members[0].Role)

	err = store.UpdateMemberRole(ctx, "p1", "ghost", sharedplan.RoleEditor, baseTime)
	assert.ErrorIs(t, err, sharedplan.ErrNotFound)

	require.NoError(t, store.RemoveMember(ctx, "p1", "bob", baseTime))
	plan, err = store.GetPlan(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, plan.Members)
	require.Len(t, plan.Tasks, 1)
	assert.Nil(t, plan.Tasks[0].AssignedTo)

	err = store.RemoveMember(ctx, "p1", "bob", baseTime)
	assert.ErrorIs(t, err, sharedplan.ErrNotFound)
}

func TestOwnerRoleRejectedForMembers(t *testing.T) {
	store := openTempStore(t)
	seedPlan(t, store, "p1", "owner")
	seedMember(t, store, "p1", "bob", sharedplan.RoleViewer)

	err := store.UpdateMemberRole(context.Background(), "p1", "bob", sharedplan.RoleOwner, baseTime)
	require.Error(t, err)
}

func TestInvitationLifecycle(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedPlan(t, store, "p1", "owner")

	pending := sharedplan.Invitation{
		ID: "i1", PlanID: "p1", InvitedBy: "owner", InvitedUser: "bob",
		Role: sharedplan.RoleEditor, Status: sharedplan.InvitationPending,
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}
	require.NoError(t, store.CreateInvitation(ctx, pending))

	dup := pending
	dup.ID = "i2"
	assert.ErrorIs(t, store.CreateInvitation(ctx, dup), sharedplan.ErrDuplicateInvitation)

	inv, err := store.GetInvitation(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "Plan p1", inv.PlanName)
	assert.Equal(t, sharedplan.InvitationPending, inv.Status)

	mine, err := store.ListPendingInvitationsForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, mine, 1)

	require.NoError(t, store.DeclineInvitation(ctx, "i1", baseTime.Add(time.Minute)))
	assert.ErrorIs(t, store.DeclineInvitation(ctx, "i1", baseTime), sharedplan.ErrInvitationNotPending)
	assert.ErrorIs(t, store.AcceptInvitation(ctx, "i1",
		sharedplan.Member{UserID: "bob", Role: sharedplan.RoleEditor, JoinedAt: baseTime}, baseTime),
		sharedplan.ErrInvitationNotPending)
	assert.ErrorIs(t, store.DeletePendingInvitation(ctx, "i1"), sharedplan.ErrInvitationNotPending)

	mine, err = store.ListPendingInvitationsForUser(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, mine)

	// A declined invitation frees the slot for a new one.
	require.NoError(t, store.CreateInvitation(ctx, dup))
	require.NoError(t, store.DeletePendingInvitation(ctx, "i2"))
	assert.ErrorIs(t, store.DeletePendingInvitation(ctx, "i2"), sharedplan.ErrNotFound)

	all, err := store.ListInvitationsByPlan(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, sharedplan.InvitationDeclined, all[0].Status)
}

func TestAcceptInvitationAlreadyMemberRollsBack(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedPlan(t, store, "p1", "owner")
	seedMember(t, store, "p1", "bob", sharedplan.RoleViewer)

	require.NoError(t, store.CreateInvitation(ctx, sharedplan.Invitation{
		ID: "again", PlanID: "p1", InvitedBy: "owner", InvitedUser: "bob",
		Role: sharedplan.RoleEditor, Status: sharedplan.InvitationPending,
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}))
	err := store.AcceptInvitation(ctx, "again",
		sharedplan.Member{UserID: "bob", Role: sharedplan.RoleEditor, JoinedAt: baseTime}, baseTime)
	assert.ErrorIs(t, err, sharedplan.ErrAlreadyMember)

	inv, err := store.GetInvitation(ctx, "again")
	require.NoError(t, err)
	assert.Equal(t, sharedplan.InvitationPending, inv.Status)
}

func TestAcceptInvitationMissing(t *testing.T) {
	store := openTempStore(t)
	err := store.AcceptInvitation(context.Background(), "missing",
		sharedplan.Member{UserID: "bob", Role: sharedplan.RoleEditor, JoinedAt: baseTime}, baseTime)
	assert.ErrorIs(t, err, sharedplan.ErrNotFound)
}

func TestListMessages(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedPlan(t, store, "p1", "owner")

	for i, content := range []string{"one", "two", "three", "four"} {
		at, err := store.AppendMessage(ctx, sharedplan.Message{
			ID: content, PlanID: "p1", SenderID: "owner", Content: content,
			CreatedAt: baseTime.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		assert.Equal(t, baseTime.Add(time.Duration(i)*time.Second), at)
	}
	// A stamp at or before the newest message is moved just past it.
	at, err := store.AppendMessage(ctx, sharedplan.Message{
		ID: "five", PlanID: "p1", SenderID: "owner", Content: "five", CreatedAt: baseTime.Add(3 * time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(3*time.Second+time.Nanosecond), at)

	all, err := store.ListMessages(ctx, "p1", time.Time{}, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, contents(all))
	assert.Equal(t, at, all[4].CreatedAt)

	latest, err := store.ListMessages(ctx, "p1", time.Time{}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"four", "five"}, contents(latest))

	since, err := store.ListMessages(ctx, "p1", baseTime.Add(time.Second), 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"three", "four", "five"}, contents(since))

	next, err := store.ListMessages(ctx, "p1", baseTime, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, contents(next), "a page after a cursor starts at the oldest")

	none, err := store.ListMessages(ctx, "p1", baseTime.Add(time.Hour), 100)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = store.AppendMessage(ctx, sharedplan.Message{
		ID: "x", PlanID: "missing", SenderID: "owner", Content: "x", CreatedAt: baseTime,
	})
	assert.ErrorIs(t, err, sharedplan.ErrNotFound)
}

func TestMessageTimestampsArePerPlan(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedPlan(t, store, "p1", "owner")
	seedPlan(t, store, "p2", "owner")

	_, err := store.AppendMessage(ctx, sharedplan.Message{
		ID: "a", PlanID: "p1", SenderID: "owner", Content: "a", CreatedAt: baseTime.Add(time.Minute),
	})
	require.NoError(t, err)
	at, err := store.AppendMessage(ctx, sharedplan.Message{
		ID: "b", PlanID: "p2", SenderID: "owner", Content: "b", CreatedAt: baseTime,
	})
	require.NoError(t, err)
	assert.Equal(t, baseTime, at)
}

func contents(msgs []sharedplan.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestDeletePlanCascades(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedPlan(t, store, "p1", "owner")
	seedPlan(t, store, "p2", "owner")
	seedMember(t, store, "p1", "bob", sharedplan.RoleEditor)
	require.NoError(t, store.CreateInvitation(ctx, sharedplan.Invitation{
		ID: "i-carol", PlanID: "p1", InvitedBy: "owner", InvitedUser: "carol",
		Role: sharedplan.RoleViewer, Status: sharedplan.InvitationPending,
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}))
	require.NoError(t, store.CreateTask(ctx, sharedplan.Task{
		ID: "t1", PlanID: "p1", Title: "x", Status: sharedplan.TaskPending,
		CreatedBy: "owner", CreatedAt: baseTime, UpdatedAt: baseTime,
	}))
	_, err := store.AppendMessage(ctx, sharedplan.Message{
		ID: "m1", PlanID: "p1", SenderID: "bob", Content: "hi", CreatedAt: baseTime,
	})
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, sharedplan.Message{
		ID: "m2", PlanID: "p2", SenderID: "owner", Content: "keep", CreatedAt: baseTime,
	})
	require.NoError(t, err)

	require.NoError(t, store.DeletePlan(ctx, "p1"))

	for table, want := range map[string]int{
		"plan_members":     0,
		"plan_tasks":       0,
		"plan_invitations": 0,
		"plan_messages":    1,
	} {
		assert.Equal(t, want, countRows(t, store.sqlDB, table), table)
	}

	pending, err := store.ListPendingInvitationsForUser(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestNotifications(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	for i, id := range []string{"n1", "n2", "n3"} {
		require.NoError(t, store.CreateNotification(ctx, notify.Notification{
			ID: id, UserID: "alice", Kind: notify.InvitationAccepted, PlanID: "p1", ActorID: "bob",
			Message: "bob accepted", CreatedAt: baseTime.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.CreateNotification(ctx, notify.Notification{
		ID: "other", UserID: "bob", Kind: notify.InvitationReceived, Message: "invited", CreatedAt: baseTime,
	}))

	list, err := store.ListNotifications(ctx, "alice", false, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "n3", list[0].ID)
	assert.Nil(t, list[0].ReadAt)

	n, err := store.MarkNotificationsRead(ctx, "alice", []string{"n1", "other"}, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	unread, err := store.ListNotifications(ctx, "alice", true, 10)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	n, err = store.MarkNotificationsRead(ctx, "alice", nil, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	unread, err = store.ListNotifications(ctx, "alice", true, 10)
	require.NoError(t, err)
	assert.Empty(t, unread)

	bobs, err := store.ListNotifications(ctx, "bob", true, 10)
	require.NoError(t, err)
	assert.Len(t, bobs, 1)
}

func TestOpenConfiguresConnections(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	for name, db := range map[string]*sql.DB{"writer": store.sqlDB, "reader": store.readDB} {
		var mode string
		var timeout int
		require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode), name)
		require.NoError(t, db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout), name)
		assert.Equal(t, "wal", mode, name)
		assert.Equal(t, 5000, timeout, name)
	}
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedPlan(t, store, "p1", "owner")
	seedMember(t, store, "p1", "bob", sharedplan.RoleEditor)

	const workers, perWorker = 16, 25
	errs := make(chan error, workers*perWorker*2)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := store.GetPlan(ctx, "p1"); err != nil {
					errs <- err
				}
				if _, err := store.ListPlansForUser(ctx, "bob"); err != nil {
					errs <- err
				}
				err := store.CreateTask(ctx, sharedplan.Task{
					ID: fmt.Sprintf("t-%d-%d", w, i), PlanID: "p1", Title: "task",
					Status: sharedplan.TaskPending, CreatedBy: "bob",
					CreatedAt: baseTime, UpdatedAt: baseTime,
				})
				if err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	plan, err := store.GetPlan(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, plan.Tasks, workers*perWorker)
}
