// Package main implements the companion CLI for working with shared plans
// on a companiond server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/dailycompanion/companion/internal/client"
)

var version = "dev"

// cliConfig is read from the environment; flags override it.
type cliConfig struct {
	Server       string        `env:"COMPANION_SERVER"        envDefault:"http://localhost:9191"`
	Token        string        `env:"COMPANION_TOKEN"`
	PollInterval time.Duration `env:"COMPANION_POLL_INTERVAL" envDefault:"5s"`
}

// app carries state shared by every command.
type app struct {
	cfg        cliConfig
	outputJSON bool
	newClient  func(cfg cliConfig) (*client.Client, error)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root, err := newRootCmd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, error) {
	a := &app{newClient: func(cfg cliConfig) (*client.Client, error) {
		return client.New(cfg.Server, client.WithToken(cfg.Token))
	}}
	if err := env.Parse(&a.cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return a.rootCmd(), nil
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "companion",
		Short: "Work with Daily Companion shared plans",
		Long: `companion is a command-line client for a companiond server.

The server URL and session token come from COMPANION_SERVER and
COMPANION_TOKEN, or from --server and --token. Mint a token for local
testing with "companiond token <user-id>".`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.cfg.Server, "server", a.cfg.Server, "companiond server URL")
	root.PersistentFlags().StringVar(&a.cfg.Token, "token", a.cfg.Token, "session token")
	root.PersistentFlags().BoolVar(&a.outputJSON, "json", false, "output results as JSON")

	root.AddCommand(
		a.healthCmd(),
		a.plansCmd(),
		a.invitationsCmd(),
		a.tasksCmd(),
		a.membersCmd(),
		a.chatCmd(),
		a.boardCmd(),
		a.notificationsCmd(),
	)
	return root
}

func (a *app) client() (*client.Client, error) {
	return a.newClient(a.cfg)
}

// printJSON writes v when --json is set and reports whether it did.
func (a *app) printJSON(w io.Writer, v any) (bool, error) {
	if !a.outputJSON {
		return false, nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			resp, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(cmd.OutOrStdout(), resp); ok {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", resp.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "Server URL: %s\n", a.cfg.Server)
			return nil
		},
	}
}
