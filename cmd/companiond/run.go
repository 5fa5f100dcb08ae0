package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/dailycompanion/companion/internal/auth"
	"github.com/dailycompanion/companion/internal/config"
	"github.com/dailycompanion/companion/internal/events"
	httpserver "github.com/dailycompanion/companion/internal/http"
	"github.com/dailycompanion/companion/internal/logging"
	"github.com/dailycompanion/companion/internal/moderation"
	"github.com/dailycompanion/companion/internal/notify"
	"github.com/dailycompanion/companion/internal/sharedplan"
	"github.com/dailycompanion/companion/internal/storage/sqlite"
	"github.com/dailycompanion/companion/internal/telemetry"
)

// dependencies holds the infrastructure the services run on.
type dependencies struct {
	store     *sqlite.Store
	telemetry *telemetry.Telemetry
	natsSrv   *natsserver.Server
	natsConn  *nats.Conn
	bus       *events.Bus
}

// Close releases infrastructure in reverse order of creation.
func (d *dependencies) Close(ctx context.Context, logger *logging.Logger) {
	if d.natsConn != nil {
		if err := d.natsConn.Drain(); err != nil {
			logger.Warn(ctx, "draining nats connection", zap.Error(err))
		}
	}
	if d.natsSrv != nil {
		d.natsSrv.Shutdown()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			logger.Warn(ctx, "closing store", zap.Error(err))
		}
	}
	if d.telemetry != nil {
		if err := d.telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "telemetry shutdown", zap.Error(err))
		}
	}
}

// run wires the server and blocks until ctx is cancelled. It returns
// http.ErrServerClosed after a clean shutdown.
func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	logger.Info(ctx, "starting companiond",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Path),
		zap.Bool("events", cfg.Events.Enabled),
	)

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close(ctx, logger)

	srv, err := newServer(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}

func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	deps := &dependencies{}

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return nil, err
	}
	deps.telemetry = tel
	if err := tel.Degraded(); err != nil {
		logger.Warn(ctx, "telemetry degraded, continuing without exporters", zap.Error(err))
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o700); err != nil {
		deps.Close(ctx, logger)
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	store, err := sqlite.Open(ctx, cfg.Storage.Path)
	if err != nil {
		deps.Close(ctx, logger)
		return nil, err
	}
	deps.store = store
	logger.Info(ctx, "store opened", zap.String("path", cfg.Storage.Path))

	if !cfg.Events.Enabled {
		return deps, nil
	}

	url := cfg.Events.NATSURL
	if cfg.Events.Embedded {
		ns, err := events.StartEmbedded(cfg.Events.EmbeddedPort)
		if err != nil {
			deps.Close(ctx, logger)
			return nil, err
		}
		deps.natsSrv = ns
		url = ns.ClientURL()
	}
	nc, err := events.Connect(url, "companiond")
	if err != nil {
		deps.Close(ctx, logger)
		return nil, err
	}
	deps.natsConn = nc
	deps.bus, err = events.NewBus(nc)
	if err != nil {
		deps.Close(ctx, logger)
		return nil, err
	}
	logger.Info(ctx, "event bus connected", zap.String("url", url), zap.Bool("embedded", cfg.Events.Embedded))
	return deps, nil
}

// newServices builds the plan and notification services shared by the
// HTTP and MCP front ends.
func newServices(ctx context.Context, cfg *config.Config, deps *dependencies, logger *logging.Logger) (*sharedplan.Service, *notify.Service, error) {
	var publisher events.Publisher = events.Nop{}
	if deps.bus != nil {
		publisher = deps.bus
	}

	notifications, err := notify.NewService(deps.store, publisher, logger)
	if err != nil {
		return nil, nil, err
	}
	filter, err := messageFilter(ctx, cfg.Chat, logger)
	if err != nil {
		return nil, nil, err
	}
	plans, err := sharedplan.NewService(deps.store, logger,
		sharedplan.WithPublisher(publisher),
		sharedplan.WithNotifier(notifications),
		sharedplan.WithMessageFilter(filter),
		sharedplan.WithMaxMessageLength(cfg.Chat.MaxMessageLength),
		sharedplan.WithTracer(deps.telemetry.Tracer("github.com/dailycompanion/companion/internal/sharedplan")),
	)
	if err != nil {
		return nil, nil, err
	}
	return plans, notifications, nil
}

func newServer(ctx context.Context, cfg *config.Config, deps *dependencies, logger *logging.Logger) (*httpserver.Server, error) {
	plans, notifications, err := newServices(ctx, cfg, deps, logger)
	if err != nil {
		return nil, err
	}

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret.Value(), cfg.Auth.Issuer, cfg.Auth.TokenTTL.Duration())
	if err != nil {
		return nil, err
	}

	return httpserver.NewServer(&httpserver.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
		CookieName:      cfg.Auth.CookieName,
		ChatRateLimit:   cfg.Chat.RateLimit,
		ChatRateBurst:   cfg.Chat.RateBurst,
		ServiceName:     cfg.Observability.ServiceName,
		Version:         version,
	}, httpserver.Deps{
		Plans:         plans,
		Notifications: notifications,
		Issuer:        issuer,
		Bus:           deps.bus,
		Health:        deps.store,
		Logger:        logger,
		Meter:         deps.telemetry.Meter("github.com/dailycompanion/companion/internal/http"),
	})
}

func messageFilter(ctx context.Context, cfg config.ChatConfig, logger *logging.Logger) (*moderation.Scrubber, error) {
	s := moderation.New(cfg.Moderation)
	if cfg.Gitleaks {
		if err := s.UseGitleaks(); err != nil {
			logger.Warn(ctx, "gitleaks rules unavailable, using built-in rules only", zap.Error(err))
		}
	}
	if cfg.Moderation && cfg.AllowlistPath != "" {
		if err := moderation.WatchAllowlist(ctx, s, cfg.AllowlistPath, logger.Named("moderation")); err != nil {
			return nil, fmt.Errorf("loading moderation allowlist: %w", err)
		}
	}
	return s, nil
}
