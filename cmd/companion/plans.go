package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	api "github.com/dailycompanion/companion/internal/http"
	"github.com/dailycompanion/companion/internal/sharedplan"
)

func (a *app) plansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "plans",
		Aliases: []string{"plan"},
		Short:   "Manage shared plans",
	}

	var description string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a plan you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			plan, err := c.CreatePlan(cmd.Context(), args[0], description)
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(cmd.OutOrStdout(), plan); ok {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created plan %s (%s)\n", plan.Name, plan.ID)
			return nil
		},
	}
	create.Flags().StringVar(&description, "description", "", "plan description")

	var rename, redescribe string
	update := &cobra.Command{
		Use:   "update <plan-id>",
		Short: "Rename or re-describe a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req api.UpdatePlanRequest
			if cmd.Flags().Changed("name") {
				req.Name = &rename
			}
			if cmd.Flags().Changed("description") {
				req.Description = &redescribe
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			plan, err := c.UpdatePlan(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(cmd.OutOrStdout(), plan); ok {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated plan %s\n", plan.Name)
			return nil
		},
	}
	update.Flags().StringVar(&rename, "name", "", "new name")
	update.Flags().StringVar(&redescribe, "description", "", "new description")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List plans you own or belong to",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := a.client()
				if err != nil {
					return err
				}
				plans, err := c.ListPlans(cmd.Context())
				if err != nil {
					return err
				}
				if ok, err := a.printJSON(cmd.OutOrStdout(), plans); ok {
					return err
				}
				if len(plans) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No plans.")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tROLE\tMEMBERS\tUPDATED")
				for _, p := range plans {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
						p.ID, p.Name, p.Role, len(p.Members)+1, p.UpdatedAt.Local().Format(time.DateTime))
				}
				return w.Flush()
			},
		},
		create,
		&cobra.Command{
			Use:   "show <plan-id>",
			Short: "Show a plan with its members and tasks",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.client()
				if err != nil {
					return err
				}
				plan, err := c.GetPlan(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ok, err := a.printJSON(cmd.OutOrStdout(), plan); ok {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s)\n", plan.Name, plan.ID)
				if plan.Description != "" {
					fmt.Fprintf(out, "%s\n", plan.Description)
				}
				fmt.Fprintf(out, "Your role: %s\n", plan.Role)
				fmt.Fprintf(out, "Tasks done: %s\n\n", taskSummary(plan.Tasks))

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "MEMBER\tROLE")
				fmt.Fprintf(w, "%s\t%s\n", plan.OwnerID, sharedplan.RoleOwner)
				for _, m := range plan.Members {
					fmt.Fprintf(w, "%s\t%s\n", m.UserID, m.Role)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintln(out)
				return printTasks(out, plan.Tasks)
			},
		},
		update,
		&cobra.Command{
			Use:   "delete <plan-id>",
			Short: "Delete a plan and everything in it (owner only)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.client()
				if err != nil {
					return err
				}
				if err := c.DeletePlan(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted plan %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func taskSummary(tasks []sharedplan.Task) string {
	done := 0
	for _, t := range tasks {
		if t.Status == sharedplan.TaskCompleted {
			done++
		}
	}
	return fmt.Sprintf("%d/%d", done, len(tasks))
}
