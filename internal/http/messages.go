package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dailycompanion/companion/internal/sharedplan"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// handleListMessages serves the chat poll. ?since= (RFC 3339) returns only
// newer messages; ?limit= caps the page.
func (s *Server) handleListMessages(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}

	var q sharedplan.MessageQuery
	if raw := c.QueryParam("since"); raw != "" {
		if q.Since, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return badRequest("since must be an RFC 3339 timestamp")
		}
	}
	if raw := c.QueryParam("limit"); raw != "" {
		if q.Limit, err = strconv.Atoi(raw); err != nil || q.Limit < 1 {
			return badRequest("limit must be a positive integer")
		}
	}

	msgs, err := s.plans.ListMessages(c.Request().Context(), user, c.Param("id"), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessagesResponse{Messages: msgs})
}

func (s *Server) handlePostMessage(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	if !s.chatLimiter.Allow(user) {
		s.logger.Warn(c.Request().Context(), "chat rate limit exceeded", zap.String("plan", c.Param("id")))
		return echo.NewHTTPError(http.StatusTooManyRequests, "Too many messages, slow down")
	}

	var req PostMessageRequest
	if err := decodeBody(c, &req, true); err != nil {
		return err
	}

	msg, err := s.plans.PostMessage(c.Request().Context(), user, c.Param("id"), req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, MessageResponse{Message: msg})
}
