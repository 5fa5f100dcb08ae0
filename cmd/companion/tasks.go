package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	api "github.com/dailycompanion/companion/internal/http"
	"github.com/dailycompanion/companion/internal/sharedplan"
)

func (a *app) tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Manage plan tasks",
	}

	var addDescription, addAssignee string
	add := &cobra.Command{
		Use:   "add <plan-id> <title>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.CreateTaskRequest{Title: args[1], Description: addDescription}
			if addAssignee != "" {
				req.AssignedTo = &addAssignee
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			task, err := c.AddTask(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return a.printTask(cmd, "Added", task)
		},
	}
	add.Flags().StringVar(&addDescription, "description", "", "task description")
	add.Flags().StringVar(&addAssignee, "assign", "", "assign to a plan participant")

	var title, description, status, assignee string
	update := &cobra.Command{
		Use:   "update <plan-id> <task-id>",
		Short: "Update a task",
		Long: `Update a task's title, description, status or assignee.

Only flags that are given are changed. --assign "" clears the assignee.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.UpdateTaskRequest{TaskID: args[1]}
			flags := cmd.Flags()
			if flags.Changed("title") {
				req.Title = &title
			}
			if flags.Changed("description") {
				req.Description = &description
			}
			if flags.Changed("status") {
				req.Status = &status
			}
			if flags.Changed("assign") {
				req.AssignedTo = assignment(assignee)
			}
			return a.updateTask(cmd, args[0], req)
		},
	}
	update.Flags().StringVar(&title, "title", "", "new title")
	update.Flags().StringVar(&description, "description", "", "new description")
	update.Flags().StringVar(&status, "status", "", "pending, in_progress or completed")
	update.Flags().StringVar(&assignee, "assign", "", "assignee user ID, empty to unassign")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <plan-id>",
			Short: "List a plan's tasks",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.client()
				if err != nil {
					return err
				}
				tasks, err := c.ListTasks(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ok, err := a.printJSON(cmd.OutOrStdout(), tasks); ok {
					return err
				}
				return printTasks(cmd.OutOrStdout(), tasks)
			},
		},
		add,
		update,
		&cobra.Command{
			Use:   "done <plan-id> <task-id>",
			Short: "Mark a task completed",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				completed := string(sharedplan.TaskCompleted)
				return a.updateTask(cmd, args[0], api.UpdateTaskRequest{TaskID: args[1], Status: &completed})
			},
		},
		&cobra.Command{
			Use:   "assign <plan-id> <task-id> [user-id]",
			Short: "Assign a task, or unassign it when no user is given",
			Args:  cobra.RangeArgs(2, 3),
			RunE: func(cmd *cobra.Command, args []string) error {
				user := ""
				if len(args) == 3 {
					user = args[2]
				}
				return a.updateTask(cmd, args[0], api.UpdateTaskRequest{TaskID: args[1], AssignedTo: assignment(user)})
			},
		},
		&cobra.Command{
			Use:   "delete <plan-id> <task-id>",
			Short: "Delete a task",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.client()
				if err != nil {
					return err
				}
				if err := c.DeleteTask(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", args[1])
				return nil
			},
		},
	)
	return cmd
}

func assignment(user string) api.Optional[string] {
	if user == "" {
		return api.Null[string]()
	}
	return api.Some(user)
}

func (a *app) updateTask(cmd *cobra.Command, planID string, req api.UpdateTaskRequest) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	task, err := c.UpdateTask(cmd.Context(), planID, req)
	if err != nil {
		return err
	}
	return a.printTask(cmd, "Updated", task)
}

func (a *app) printTask(cmd *cobra.Command, verb string, task sharedplan.Task) error {
	if ok, err := a.printJSON(cmd.OutOrStdout(), task); ok {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s task %s: %s [%s] %s\n", verb, task.ID, task.Title, task.Status, assigneeOf(task))
	return nil
}

func printTasks(out io.Writer, tasks []sharedplan.Task) error {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tASSIGNEE")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Status, assigneeOf(t))
	}
	return w.Flush()
}

func assigneeOf(t sharedplan.Task) string {
	if t.AssignedTo == nil {
		return "-"
	}
	return *t.AssignedTo
}
