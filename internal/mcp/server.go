// Package mcp exposes shared plans to MCP clients over stdio.
//
// The server acts for exactly one user, fixed when it is created. Every
// tool call goes through sharedplan.Service with that identity, so the
// permission rules are the same as over HTTP.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/dailycompanion/companion/internal/logging"
	"github.com/dailycompanion/companion/internal/sharedplan"
)

// Server is an MCP server bound to a single acting user.
type Server struct {
	mcp     *mcp.Server
	plans   *sharedplan.Service
	actor   string
	metrics *Metrics
	logger  *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "companion")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Actor is the user every tool call acts as. Required.
	Actor string

	Logger *logging.Logger

	// Meter records tool metrics. Nil uses the global provider.
	Meter metric.Meter
}

// DefaultConfig returns defaults without an actor.
func DefaultConfig() *Config {
	return &Config{
		Name:    "companion",
		Version: "dev",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates a server and registers the plan tools.
func NewServer(cfg *Config, plans *sharedplan.Service) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if plans == nil {
		return nil, fmt.Errorf("plan service is required")
	}
	if cfg.Actor == "" {
		return nil, fmt.Errorf("actor is required")
	}
	name, version, logger := cfg.Name, cfg.Version, cfg.Logger
	if name == "" {
		name = "companion"
	}
	if version == "" {
		version = "dev"
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Server{
		mcp:     mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		plans:   plans,
		actor:   cfg.Actor,
		metrics: NewMetrics(cfg.Meter, logger),
		logger:  logger.With(zap.String("user_id", cfg.Actor)),
	}
	s.registerPlanTools()
	s.registerTaskTools()
	s.registerMessageTools()
	s.registerInvitationTools()
	return s, nil
}

// Run serves on stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.RunTransport(ctx, &mcp.StdioTransport{})
}

// RunTransport serves on t until ctx is cancelled or the client disconnects.
func (s *Server) RunTransport(ctx context.Context, t mcp.Transport) error {
	s.logger.Info(ctx, "starting MCP server")
	if err := s.mcp.Run(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// instrument wraps a tool call with metrics and maps its error to one that
// is safe to show the client.
func (s *Server) instrument(ctx context.Context, tool string, call func(context.Context) error) error {
	s.metrics.IncrementActive(ctx, tool)
	start := time.Now()
	err := call(logging.WithUserID(ctx, s.actor))
	s.metrics.DecrementActive(ctx, tool)
	s.metrics.RecordInvocation(ctx, tool, time.Since(start), err)
	return s.toolError(ctx, tool, err)
}

// toolError keeps classified errors and hides everything else.
func (s *Server) toolError(ctx context.Context, tool string, err error) error {
	if err == nil {
		return nil
	}
	var perr *sharedplan.Error
	if errors.As(err, &perr) {
		return perr
	}
	s.logger.Error(ctx, "tool failed", zap.String("tool", tool), zap.Error(err))
	return errors.New("internal error")
}
