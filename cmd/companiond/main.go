// Companiond serves the Daily Companion shared-plan API.
//
// Configuration is read from ~/.config/companion/config.yaml and COMPANION_*
// environment variables. See internal/config for the keys.
//
// Usage:
//
//	# Start the server
//	COMPANION_AUTH_JWT_SECRET=... companiond serve
//
//	# Mint a session token for local testing
//	companiond token alice
//
//	# Serve alice's plans to an MCP client over stdio
//	COMPANION_TOKEN=$(companiond token alice) companiond mcp
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/dailycompanion/companion/internal/auth"
	"github.com/dailycompanion/companion/internal/config"
	"github.com/dailycompanion/companion/internal/logging"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "companiond",
		Short:        "Daily Companion shared-plan server",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/companion/config.yaml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve()
			},
		},
		&cobra.Command{
			Use:   "token <user-id>",
			Short: "Print a session token for a user",
			Long: `Print a signed session token for a user.

The token is accepted in the session cookie or as an Authorization
bearer header. It is meant for local testing and the companion CLI.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				token, err := issueToken(cfg, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			},
		},
		mcpCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				printVersion(cmd)
			},
		},
	)
	return root
}

func printVersion(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "companiond\n")
	fmt.Fprintf(out, "Version:    %s\n", version)
	fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(out, "Build Date: %s\n", buildDate)
}

func issueToken(cfg *config.Config, userID string) (string, error) {
	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret.Value(), cfg.Auth.Issuer, cfg.Auth.TokenTTL.Duration())
	if err != nil {
		return "", err
	}
	return issuer.Issue(userID)
}

func serve() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logCfg, err := logging.ConfigFrom(cfg.Logging.Level, cfg.Logging.Format, cfg.Observability.EnableTelemetry)
	if err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, global.GetLoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info(ctx, "received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server error: %v", err)
		return err
	}
	logger.Info(ctx, "server shutdown complete")
	return nil
}
