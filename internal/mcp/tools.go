package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dailycompanion/companion/internal/sharedplan"
)

// Tool outputs use plain strings for timestamps and roles so the inferred
// output schemas stay simple.

type planSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	OwnerID     string `json:"owner_id"`
	Role        string `json:"role" jsonschema:"Your role on the plan"`
	Members     int    `json:"members" jsonschema:"Participants including the owner"`
	UpdatedAt   string `json:"updated_at"`
}

type memberOutput struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type taskOutput struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	AssignedTo  string `json:"assigned_to,omitempty"`
	CreatedBy   string `json:"created_by"`
	CompletedAt string `json:"completed_at,omitempty"`
}

type planDetail struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	OwnerID      string         `json:"owner_id"`
	Role         string         `json:"role"`
	CanEditTasks bool           `json:"can_edit_tasks"`
	CanManage    bool           `json:"can_manage"`
	CanDelete    bool           `json:"can_delete"`
	Members      []memberOutput `json:"members"`
	Tasks        []taskOutput   `json:"tasks"`
	TasksDone    int            `json:"tasks_done"`
}

type messageOutput struct {
	ID        string `json:"id"`
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type invitationOutput struct {
	ID        string `json:"id"`
	PlanID    string `json:"plan_id"`
	PlanName  string `json:"plan_name,omitempty"`
	InvitedBy string `json:"invited_by"`
	Role      string `json:"role"`
	Status    string `json:"status"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toTaskOutput(t sharedplan.Task) taskOutput {
	out := taskOutput{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		CreatedBy:   t.CreatedBy,
	}
	if t.AssignedTo != nil {
		out.AssignedTo = *t.AssignedTo
	}
	if t.CompletedAt != nil {
		out.CompletedAt = formatTime(*t.CompletedAt)
	}
	return out
}

func toPlanDetail(v sharedplan.PlanView) planDetail {
	out := planDetail{
		ID:           v.ID,
		Name:         v.Name,
		Description:  v.Description,
		OwnerID:      v.OwnerID,
		Role:         v.Role.String(),
		CanEditTasks: v.Permissions.CanEditTasks,
		CanManage:    v.Permissions.CanManage,
		CanDelete:    v.Permissions.CanDelete,
		Members:      make([]memberOutput, 0, len(v.Members)),
		Tasks:        make([]taskOutput, 0, len(v.Tasks)),
	}
	for _, m := range v.Members {
		out.Members = append(out.Members, memberOutput{UserID: m.UserID, Role: string(m.Role)})
	}
	for _, t := range v.Tasks {
		out.Tasks = append(out.Tasks, toTaskOutput(t))
		if t.Status == sharedplan.TaskCompleted {
			out.TasksDone++
		}
	}
	return out
}

func toMessageOutput(m sharedplan.Message) messageOutput {
	return messageOutput{ID: m.ID, SenderID: m.SenderID, Content: m.Content, CreatedAt: formatTime(m.CreatedAt)}
}

func toInvitationOutput(inv sharedplan.Invitation) invitationOutput {
	return invitationOutput{
		ID:        inv.ID,
		PlanID:    inv.PlanID,
		PlanName:  inv.PlanName,
		InvitedBy: inv.InvitedBy,
		Role:      string(inv.Role),
		Status:    string(inv.Status),
	}
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

// ===== Plans =====

type planListInput struct{}

type planListOutput struct {
	Plans []planSummary `json:"plans"`
}

type planGetInput struct {
	PlanID string `json:"plan_id" jsonschema:"Plan ID"`
}

func (s *Server) registerPlanTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "plan_list",
		Description: "List the plans you own or belong to",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args planListInput) (*mcp.CallToolResult, planListOutput, error) {
		out := planListOutput{Plans: []planSummary{}}
		err := s.instrument(ctx, "plan_list", func(ctx context.Context) error {
			views, err := s.plans.ListPlans(ctx, s.actor)
			if err != nil {
				return err
			}
			for _, v := range views {
				out.Plans = append(out.Plans, planSummary{
					ID:          v.ID,
					Name:        v.Name,
					Description: v.Description,
					OwnerID:     v.OwnerID,
					Role:        v.Role.String(),
					Members:     len(v.Members) + 1,
					UpdatedAt:   formatTime(v.UpdatedAt),
				})
			}
			return nil
		})
		if err != nil {
			return nil, planListOutput{}, err
		}
		return textResult("%d plans", len(out.Plans)), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "plan_get",
		Description: "Get a plan with its members, tasks and your permissions",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args planGetInput) (*mcp.CallToolResult, planDetail, error) {
		var out planDetail
		err := s.instrument(ctx, "plan_get", func(ctx context.Context) error {
			view, err := s.plans.GetPlan(ctx, s.actor, args.PlanID)
			if err != nil {
				return err
			}
			out = toPlanDetail(view)
			return nil
		})
		if err != nil {
			return nil, planDetail{}, err
		}
		return textResult("%s: %d/%d tasks done", out.Name, out.TasksDone, len(out.Tasks)), out, nil
	})
}

// ===== Tasks =====

type taskAddInput struct {
	PlanID      string `json:"plan_id" jsonschema:"Plan ID"`
	Title       string `json:"title" jsonschema:"Task title"`
	Description string `json:"description,omitempty" jsonschema:"Task description"`
	AssignedTo  string `json:"assigned_to,omitempty" jsonschema:"User ID of a plan participant"`
}

type taskUpdateInput struct {
	PlanID      string  `json:"plan_id" jsonschema:"Plan ID"`
	TaskID      string  `json:"task_id" jsonschema:"Task ID"`
	Title       *string `json:"title,omitempty" jsonschema:"New title"`
	Description *string `json:"description,omitempty" jsonschema:"New description"`
	Status      *string `json:"status,omitempty" jsonschema:"pending, in_progress or completed"`
	AssignedTo  *string `json:"assigned_to,omitempty" jsonschema:"New assignee, or empty to unassign"`
}

func (s *Server) registerTaskTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "task_add",
		Description: "Add a task to a plan. Requires the owner or editor role",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args taskAddInput) (*mcp.CallToolResult, taskOutput, error) {
		var out taskOutput
		err := s.instrument(ctx, "task_add", func(ctx context.Context) error {
			in := sharedplan.TaskInput{Title: args.Title, Description: args.Description}
			if args.AssignedTo != "" {
				in.AssignedTo = &args.AssignedTo
			}
			task, err := s.plans.AddTask(ctx, s.actor, args.PlanID, in)
			if err != nil {
				return err
			}
			out = toTaskOutput(task)
			return nil
		})
		if err != nil {
			return nil, taskOutput{}, err
		}
		return textResult("Task added: %s", out.ID), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "task_update",
		Description: "Change a task's title, description, status or assignee. Requires the owner or editor role",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args taskUpdateInput) (*mcp.CallToolResult, taskOutput, error) {
		var out taskOutput
		err := s.instrument(ctx, "task_update", func(ctx context.Context) error {
			patch := sharedplan.TaskPatch{
				Title:       args.Title,
				Description: args.Description,
				Status:      args.Status,
			}
			if args.AssignedTo != nil {
				patch.Assign = true
				if *args.AssignedTo != "" {
					patch.AssignTo = args.AssignedTo
				}
			}
			task, err := s.plans.UpdateTask(ctx, s.actor, args.PlanID, args.TaskID, patch)
			if err != nil {
				return err
			}
			out = toTaskOutput(task)
			return nil
		})
		if err != nil {
			return nil, taskOutput{}, err
		}
		return textResult("Task %s is %s", out.ID, out.Status), out, nil
	})
}

// ===== Messages =====

type messageListInput struct {
	PlanID string `json:"plan_id" jsonschema:"Plan ID"`
	Since  string `json:"since,omitempty" jsonschema:"RFC 3339 timestamp; only later messages are returned"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum messages to return (default 200)"`
}

type messageListOutput struct {
	Messages []messageOutput `json:"messages"`
	// Cursor is the created_at of the newest message, for the next since.
	Cursor string `json:"cursor,omitempty"`
}

type messagePostInput struct {
	PlanID  string `json:"plan_id" jsonschema:"Plan ID"`
	Content string `json:"content" jsonschema:"Message text"`
}

func (s *Server) registerMessageTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "message_list",
		Description: "Read the plan discussion, oldest first",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args messageListInput) (*mcp.CallToolResult, messageListOutput, error) {
		out := messageListOutput{Messages: []messageOutput{}}
		err := s.instrument(ctx, "message_list", func(ctx context.Context) error {
			q := sharedplan.MessageQuery{Limit: args.Limit}
			if args.Since != "" {
				since, err := time.Parse(time.RFC3339Nano, args.Since)
				if err != nil {
					return &sharedplan.Error{Kind: sharedplan.ErrValidation, Msg: "since must be an RFC 3339 timestamp"}
				}
				q.Since = since
			}
			msgs, err := s.plans.ListMessages(ctx, s.actor, args.PlanID, q)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				out.Messages = append(out.Messages, toMessageOutput(m))
			}
			if n := len(msgs); n > 0 {
				out.Cursor = formatTime(msgs[n-1].CreatedAt)
			}
			return nil
		})
		if err != nil {
			return nil, messageListOutput{}, err
		}
		return textResult("%d messages", len(out.Messages)), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "message_post",
		Description: "Post a message to the plan discussion",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args messagePostInput) (*mcp.CallToolResult, messageOutput, error) {
		var out messageOutput
		err := s.instrument(ctx, "message_post", func(ctx context.Context) error {
			msg, err := s.plans.PostMessage(ctx, s.actor, args.PlanID, args.Content)
			if err != nil {
				return err
			}
			out = toMessageOutput(msg)
			return nil
		})
		if err != nil {
			return nil, messageOutput{}, err
		}
		return textResult("Message posted: %s", out.ID), out, nil
	})
}

// ===== Invitations =====

type invitationListInput struct{}

type invitationListOutput struct {
	Invitations []invitationOutput `json:"invitations"`
}

type invitationRespondInput struct {
	InvitationID string `json:"invitation_id" jsonschema:"Invitation ID"`
	Action       string `json:"action" jsonschema:"accept or decline"`
}

func (s *Server) registerInvitationTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "invitation_list",
		Description: "List pending invitations addressed to you",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args invitationListInput) (*mcp.CallToolResult, invitationListOutput, error) {
		out := invitationListOutput{Invitations: []invitationOutput{}}
		err := s.instrument(ctx, "invitation_list", func(ctx context.Context) error {
			list, err := s.plans.ListMyInvitations(ctx, s.actor)
			if err != nil {
				return err
			}
			for _, inv := range list {
				out.Invitations = append(out.Invitations, toInvitationOutput(inv))
			}
			return nil
		})
		if err != nil {
			return nil, invitationListOutput{}, err
		}
		return textResult("%d pending invitations", len(out.Invitations)), out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "invitation_respond",
		Description: "Accept or decline an invitation addressed to you",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args invitationRespondInput) (*mcp.CallToolResult, invitationOutput, error) {
		var out invitationOutput
		err := s.instrument(ctx, "invitation_respond", func(ctx context.Context) error {
			inv, err := s.plans.RespondInvitation(ctx, s.actor, args.InvitationID, args.Action)
			if err != nil {
				return err
			}
			out = toInvitationOutput(inv)
			return nil
		})
		if err != nil {
			return nil, invitationOutput{}, err
		}
		return textResult("Invitation %s", out.Status), out, nil
	})
}
