package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dailycompanion/companion/internal/sharedplan"
)

func (a *app) invitationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "invitations",
		Aliases: []string{"invites"},
		Short:   "Send and answer plan invitations",
	}

	respond := func(action, verb string) *cobra.Command {
		return &cobra.Command{
			Use:   action + " <invitation-id>",
			Short: verb + " an invitation addressed to you",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.client()
				if err != nil {
					return err
				}
				inv, err := c.RespondInvitation(cmd.Context(), args[0], action)
				if err != nil {
					return err
				}
				if ok, err := a.printJSON(cmd.OutOrStdout(), inv); ok {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Invitation to %s %s\n", planLabel(inv), inv.Status)
				return nil
			},
		}
	}

	var role string
	send := &cobra.Command{
		Use:   "send <plan-id> <user-id>",
		Short: "Invite a user to a plan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			inv, err := c.Invite(cmd.Context(), args[0], args[1], role)
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(cmd.OutOrStdout(), inv); ok {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Invited %s as %s (%s)\n", inv.InvitedUser, inv.Role, inv.ID)
			return nil
		},
	}
	send.Flags().StringVar(&role, "role", string(sharedplan.RoleViewer), "editor or viewer")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list [plan-id]",
			Short: "List your pending invitations, or a plan's invitations",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.client()
				if err != nil {
					return err
				}
				var list []sharedplan.Invitation
				if len(args) == 1 {
					list, err = c.ListInvitations(cmd.Context(), args[0])
				} else {
					list, err = c.MyInvitations(cmd.Context())
				}
				if err != nil {
					return err
				}
				if ok, err := a.printJSON(cmd.OutOrStdout(), list); ok {
					return err
				}
				return printInvitations(cmd.OutOrStdout(), list)
			},
		},
		send,
		respond(sharedplan.ActionAccept, "Accept"),
		respond(sharedplan.ActionDecline, "Decline"),
		&cobra.Command{
			Use:   "cancel <plan-id> <invitation-id>",
			Short: "Withdraw a pending invitation",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.client()
				if err != nil {
					return err
				}
				if err := c.CancelInvitation(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled invitation %s\n", args[1])
				return nil
			},
		},
	)
	return cmd
}

func planLabel(inv sharedplan.Invitation) string {
	if inv.PlanName != "" {
		return inv.PlanName
	}
	return inv.PlanID
}

func printInvitations(out io.Writer, list []sharedplan.Invitation) error {
	if len(list) == 0 {
		fmt.Fprintln(out, "No invitations.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLAN\tUSER\tROLE\tSTATUS\tFROM")
	for _, inv := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", inv.ID, planLabel(inv), inv.InvitedUser, inv.Role, inv.Status, inv.InvitedBy)
	}
	return w.Flush()
}

func (a *app) membersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "members",
		Aliases: []string{"member"},
		Short:   "Change or remove plan members",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "role <plan-id> <user-id> <editor|viewer>",
			Short: "Change a member's role (owner only)",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.client()
				if err != nil {
					return err
				}
				m, err := c.UpdateMemberRole(cmd.Context(), args[0], args[1], args[2])
				if err != nil {
					return err
				}
				if ok, err := a.printJSON(cmd.OutOrStdout(), m); ok {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", m.UserID, m.Role)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <plan-id> <user-id>",
			Short: "Remove a member, or leave a plan by naming yourself",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.client()
				if err != nil {
					return err
				}
				if err := c.RemoveMember(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[1])
				return nil
			},
		},
	)
	return cmd
}

func (a *app) chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Read and post plan discussion messages",
	}

	var limit int
	history := &cobra.Command{
		Use:   "history <plan-id>",
		Short: "Print recent messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			msgs, err := c.Messages(cmd.Context(), args[0], time.Time{}, limit)
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(cmd.OutOrStdout(), msgs); ok {
				return err
			}
			printMessages(cmd.OutOrStdout(), msgs)
			return nil
		},
	}
	history.Flags().IntVar(&limit, "limit", 50, "number of messages")

	interval := a.cfg.PollInterval
	tail := &cobra.Command{
		Use:   "tail <plan-id>",
		Short: "Follow a plan discussion",
		Long: `Print the discussion and keep polling for new messages until
interrupted. The plan being deleted or losing access also ends the tail.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			err = c.PollMessages(cmd.Context(), args[0], interval, func(msgs []sharedplan.Message) error {
				if ok, err := a.printJSON(cmd.OutOrStdout(), msgs); ok {
					return err
				}
				printMessages(cmd.OutOrStdout(), msgs)
				return nil
			})
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}
	tail.Flags().DurationVar(&interval, "interval", interval, "poll interval")

	cmd.AddCommand(
		history,
		tail,
		&cobra.Command{
			Use:   "send <plan-id> <message>...",
			Short: "Post a message",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := a.client()
				if err != nil {
					return err
				}
				msg, err := c.PostMessage(cmd.Context(), args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				if ok, err := a.printJSON(cmd.OutOrStdout(), msg); ok {
					return err
				}
				printMessages(cmd.OutOrStdout(), []sharedplan.Message{msg})
				return nil
			},
		},
	)
	return cmd
}

func printMessages(out io.Writer, msgs []sharedplan.Message) {
	for _, m := range msgs {
		fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), m.SenderID, m.Content)
	}
}

func (a *app) notificationsCmd() *cobra.Command {
	var unread bool
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List your notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			list, err := c.Notifications(cmd.Context(), unread)
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(cmd.OutOrStdout(), list); ok {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No notifications.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWHEN\tREAD\tMESSAGE")
			for _, n := range list {
				read := "no"
				if n.ReadAt != nil {
					read = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.ID, n.CreatedAt.Local().Format(time.DateTime), read, n.Message)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread notifications")

	cmd.AddCommand(&cobra.Command{
		Use:   "read [notification-id]...",
		Short: "Mark notifications read, or all of them when none are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			n, err := c.MarkNotificationsRead(cmd.Context(), args...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d notification(s) read\n", n)
			return nil
		},
	})
	return cmd
}
