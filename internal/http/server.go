package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dailycompanion/companion/internal/auth"
	"github.com/dailycompanion/companion/internal/events"
	"github.com/dailycompanion/companion/internal/logging"
	"github.com/dailycompanion/companion/internal/notify"
	"github.com/dailycompanion/companion/internal/sharedplan"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Pinger reports backend health for GET /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	// CookieName is the session cookie read by the auth middleware.
	CookieName string
	// ChatRateLimit is messages per second per user; 0 disables limiting.
	ChatRateLimit float64
	ChatRateBurst int
	ServiceName   string
	Version       string
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Plans         *sharedplan.Service
	Notifications *notify.Service
	Issuer        *auth.Issuer
	// Bus streams plan events over SSE. Nil disables the events route.
	Bus    *events.Bus
	Health Pinger
	Logger *logging.Logger
	Meter  metric.Meter
}

// Server serves the shared-plan API.
type Server struct {
	echo          *echo.Echo
	plans         *sharedplan.Service
	notifications *notify.Service
	bus           *events.Bus
	health        Pinger
	chatLimiter   *userLimiter
	logger        *logging.Logger
	config        *Config
	heartbeat     time.Duration

	// closing ends open event streams on shutdown.
	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer creates a new HTTP server.
func NewServer(cfg *Config, deps Deps) (*Server, error) {
	if deps.Plans == nil {
		return nil, errors.New("plan service is required")
	}
	if deps.Notifications == nil {
		return nil, errors.New("notification service is required")
	}
	if deps.Issuer == nil {
		return nil, errors.New("token issuer is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host:            "localhost",
			Port:            9191,
			ShutdownTimeout: 10 * time.Second,
			CookieName:      "token",
			ServiceName:     "companiond",
		}
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "token"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:          e,
		plans:         deps.Plans,
		notifications: deps.Notifications,
		bus:           deps.Bus,
		health:        deps.Health,
		chatLimiter:   newUserLimiter(cfg.ChatRateLimit, cfg.ChatRateBurst),
		logger:        deps.Logger.Named("http"),
		config:        cfg,
		heartbeat:     30 * time.Second,
		closing:       make(chan struct{}),
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestContext)
	e.Use(s.accessLog)
	e.Use(NewHTTPMetrics(deps.Meter, s.logger).MetricsMiddleware())
	e.Use(middleware.BodyLimit("1M"))

	s.registerRoutes(auth.Middleware(deps.Issuer, cfg.CookieName, s.logger))
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes(requireSession echo.MiddlewareFunc) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api", requireSession)

	// Static segments win over :id in echo's router.
	api.GET("/shared-plans/invitations", s.handleListMyInvitations)
	api.PATCH("/shared-plans/invitations", s.handleRespondInvitation)

	api.GET("/shared-plans", s.handleListPlans)
	api.POST("/shared-plans", s.handleCreatePlan)
	api.GET("/shared-plans/:id", s.handleGetPlan)
	api.PATCH("/shared-plans/:id", s.handleUpdatePlan)
	api.DELETE("/shared-plans/:id", s.handleDeletePlan)

	api.GET("/shared-plans/:id/invitations", s.handleListInvitations)
	api.POST("/shared-plans/:id/invitations", s.handleCreateInvitation)
	api.DELETE("/shared-plans/:id/invitations", s.handleCancelInvitation)

	api.GET("/shared-plans/:id/tasks", s.handleListTasks)
	api.POST("/shared-plans/:id/tasks", s.handleCreateTask)
	api.PATCH("/shared-plans/:id/tasks", s.handleUpdateTask)
	api.DELETE("/shared-plans/:id/tasks", s.handleDeleteTask)

	api.GET("/shared-plans/:id/messages", s.handleListMessages)
	api.POST("/shared-plans/:id/messages", s.handlePostMessage)

	api.PATCH("/shared-plans/:id/members/:userId", s.handleUpdateMember)
	api.DELETE("/shared-plans/:id/members/:userId", s.handleRemoveMember)

	api.GET("/shared-plans/:id/events", s.handleEvents)

	api.GET("/notifications", s.handleListNotifications)
	api.PATCH("/notifications", s.handleMarkNotifications)
}

// requestContext copies the request ID into the request context so service
// logs carry it.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		id := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithLogger(logging.WithRequestID(req.Context(), id), s.logger)
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

func (s *Server) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info(c.Request().Context(), "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

// handleHealth reports liveness and storage reachability.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Service: s.config.ServiceName, Version: s.config.Version}
	if s.health != nil {
		if err := s.health.Ping(c.Request().Context()); err != nil {
			s.logger.Warn(c.Request().Context(), "health check failed", zap.Error(err))
			resp.Status = "degraded"
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// actor returns the authenticated user set by the session middleware.
func actor(c echo.Context) (string, error) {
	id, ok := auth.UserID(c)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	return id, nil
}

// ServeHTTP lets the server be mounted in httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start serves until ctx is cancelled, then shuts down gracefully within
// the configured timeout. It returns http.ErrServerClosed after a clean
// shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	s.logger.Info(ctx, "starting http server", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	s.closeOnce.Do(func() { close(s.closing) })
	return s.echo.Shutdown(ctx)
}
