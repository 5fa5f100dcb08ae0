package sharedplan

import (
	"context"
	"strings"

	"github.com/dailycompanion/companion/internal/events"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// TaskInput holds the fields of a new task.
type TaskInput struct {
	Title       string
	Description string
	AssignedTo  *string
}

// TaskPatch holds optional task changes. AssignTo is applied only when
// Assign is set; a nil AssignTo then clears the assignee.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *string
	Assign      bool
	AssignTo    *string
}

func (p TaskPatch) empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && !p.Assign
}

// ListTasks returns the plan's tasks. Any member may read them.
func (s *Service) ListTasks(ctx context.Context, actor, planID string) (tasks []Task, err error) {
	ctx, _, done := s.begin(ctx, "task.list", planID)
	defer func() { done(err) }()

	plan, err := s.authorize(ctx, planID, actor, ActionView, "You are not a member of this plan")
	if err != nil {
		return nil, err
	}
	return plan.Tasks, nil
}

// AddTask appends a pending task. Requires edit permission.
func (s *Service) AddTask(ctx context.Context, actor, planID string, in TaskInput) (task Task, err error) {
	ctx, span, done := s.begin(ctx, "task.add", planID)
	defer func() { done(err) }()

	plan, err := s.authorize(ctx, planID, actor, ActionEditTasks, "You don't have permission to edit tasks")
	if err != nil {
		return Task{}, err
	}

	title, err := cleanText("title", in.Title, maxNameLen, true)
	if err != nil {
		return Task{}, err
	}
	desc, err := cleanText("description", in.Description, maxDescriptionLen, false)
	if err != nil {
		return Task{}, err
	}
	assignee, err := assigneeOf(&plan, in.AssignedTo)
	if err != nil {
		return Task{}, err
	}

	now := s.now().UTC()
	task = Task{
		ID:          uuid.New().String(),
		PlanID:      plan.ID,
		Title:       title,
		Description: desc,
		Status:      TaskPending,
		AssignedTo:  assignee,
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	span.SetAttributes(attribute.String("task.id", task.ID))

	if err := s.store.CreateTask(ctx, task); err != nil {
		return Task{}, s.storeErr(err, "Plan not found", "creating task")
	}

	s.emit(ctx, events.TaskCreated, plan.ID, actor, task)
	return task, nil
}

// UpdateTask applies patch to a task. Moving to completed stamps
// CompletedAt; moving away clears it. Requires edit permission.
func (s *Service) UpdateTask(ctx context.Context, actor, planID, taskID string, patch TaskPatch) (task Task, err error) {
	ctx, span, done := s.begin(ctx, "task.update", planID)
	defer func() { done(err) }()
	span.SetAttributes(attribute.String("task.id", taskID))

	plan, err := s.authorize(ctx, planID, actor, ActionEditTasks, "You don't have permission to edit tasks")
	if err != nil {
		return Task{}, err
	}
	if taskID == "" {
		return Task{}, invalid("taskId is required")
	}
	task, ok := plan.Task(taskID)
	if !ok {
		return Task{}, notFound("Task not found")
	}
	if patch.empty() {
		return Task{}, invalid("no task fields to update")
	}

	if patch.Title != nil {
		if task.Title, err = cleanText("title", *patch.Title, maxNameLen, true); err != nil {
			return Task{}, err
		}
	}
	if patch.Description != nil {
		if task.Description, err = cleanText("description", *patch.Description, maxDescriptionLen, false); err != nil {
			return Task{}, err
		}
	}
	if patch.Assign {
		if task.AssignedTo, err = assigneeOf(&plan, patch.AssignTo); err != nil {
			return Task{}, err
		}
	}

	now := s.now().UTC()
	if patch.Status != nil {
		status, err := ParseTaskStatus(*patch.Status)
		if err != nil {
			return Task{}, err
		}
		task.SetStatus(status, now)
	}
	task.UpdatedAt = now

	if err := s.store.UpdateTask(ctx, task); err != nil {
		return Task{}, s.storeErr(err, "Task not found", "updating task")
	}

	s.emit(ctx, events.TaskUpdated, plan.ID, actor, task)
	return task, nil
}

// DeleteTask removes a task. Requires edit permission.
func (s *Service) DeleteTask(ctx context.Context, actor, planID, taskID string) (err error) {
	ctx, span, done := s.begin(ctx, "task.delete", planID)
	defer func() { done(err) }()
	span.SetAttributes(attribute.String("task.id", taskID))

	plan, err := s.authorize(ctx, planID, actor, ActionEditTasks, "You don't have permission to edit tasks")
	if err != nil {
		return err
	}
	if taskID == "" {
		return invalid("taskId is required")
	}
	if _, ok := plan.Task(taskID); !ok {
		return notFound("Task not found")
	}
	if err := s.store.DeleteTask(ctx, planID, taskID, s.now().UTC()); err != nil {
		return s.storeErr(err, "Task not found", "deleting task")
	}

	s.emit(ctx, events.TaskDeleted, plan.ID, actor, map[string]string{"taskId": taskID})
	return nil
}

// assigneeOf validates an optional assignee. Blank clears the assignment.
func assigneeOf(p *Plan, userID *string) (*string, error) {
	if userID == nil {
		return nil, nil
	}
	id := strings.TrimSpace(*userID)
	if id == "" {
		return nil, nil
	}
	if !p.Participant(id) {
		return nil, invalid("Assignee %q is not a member of this plan", id)
	}
	return &id, nil
}
