package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/dailycompanion/companion/internal/board"
)

func (a *app) boardCmd() *cobra.Command {
	interval := a.cfg.PollInterval
	cmd := &cobra.Command{
		Use:   "board <plan-id>",
		Short: "Open a live view of a plan's tasks, members and discussion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			p := tea.NewProgram(board.NewModel(c, args[0], interval),
				tea.WithContext(cmd.Context()),
				tea.WithAltScreen(),
			)
			final, err := p.Run()
			if m, ok := final.(board.Model); ok && m.Gone() {
				return fmt.Errorf("plan %s is no longer available: %w", args[0], m.Err())
			}
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", interval, "refresh interval")
	return cmd
}
