package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/dailycompanion/companion/internal/auth"
	"github.com/dailycompanion/companion/internal/config"
	"github.com/dailycompanion/companion/internal/events"
	"github.com/dailycompanion/companion/internal/logging"
	"github.com/dailycompanion/companion/internal/mcp"
)

const tokenEnv = "COMPANION_TOKEN"

func mcpCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve shared plans to an MCP client over stdio",
		Long: `Serve shared plans to an MCP client over stdio.

The server acts as the user named by a session token, given with --token
or the COMPANION_TOKEN environment variable. Mint one with
"companiond token <user-id>". Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				token = os.Getenv(tokenEnv)
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			actor, err := actorFromToken(cfg, token)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serveMCP(ctx, cfg, actor)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "session token (default $"+tokenEnv+")")
	return cmd
}

// actorFromToken verifies token and returns the user it names.
func actorFromToken(cfg *config.Config, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("a session token is required (--token or $%s)", tokenEnv)
	}
	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret.Value(), cfg.Auth.Issuer, cfg.Auth.TokenTTL.Duration())
	if err != nil {
		return "", err
	}
	userID, err := issuer.Verify(token)
	if err != nil {
		return "", fmt.Errorf("invalid session token: %w", err)
	}
	return userID, nil
}

func serveMCP(ctx context.Context, cfg *config.Config, actor string) error {
	logCfg, err := logging.ConfigFrom(cfg.Logging.Level, cfg.Logging.Format, cfg.Observability.EnableTelemetry)
	if err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	logCfg.Output.Stdout = false
	logCfg.Output.Stderr = true
	logger, err := logging.NewLogger(logCfg, global.GetLoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// The embedded broker belongs to the HTTP server process, so only an
	// external NATS is joined here.
	local := *cfg
	local.Events.Enabled = false
	deps, err := initDependencies(ctx, &local, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close(ctx, logger)
	if cfg.Events.Enabled && !cfg.Events.Embedded {
		joinBus(ctx, cfg.Events.NATSURL, deps, logger)
	}

	plans, _, err := newServices(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "companion",
		Version: version,
		Actor:   actor,
		Logger:  logger.Named("mcp"),
		Meter:   deps.telemetry.Meter("github.com/dailycompanion/companion/internal/mcp"),
	}, plans)
	if err != nil {
		return err
	}
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// joinBus connects deps to the event bus at url. Failure leaves the
// process without live events.
func joinBus(ctx context.Context, url string, deps *dependencies, logger *logging.Logger) {
	nc, err := events.Connect(url, "companiond-mcp")
	if err != nil {
		logger.Warn(ctx, "event bus unavailable, continuing without live events", zap.String("url", url), zap.Error(err))
		return
	}
	bus, err := events.NewBus(nc)
	if err != nil {
		nc.Close()
		logger.Warn(ctx, "event bus unavailable, continuing without live events", zap.Error(err))
		return
	}
	deps.natsConn = nc
	deps.bus = bus
}
